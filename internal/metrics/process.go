package metrics

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessSnapshot ресурсы процесса
type ProcessSnapshot struct {
	RSSBytes       uint64  `json:"rss_bytes"`
	CPUPercent     float64 `json:"cpu_percent"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	NumGC          uint32  `json:"num_gc"`
	Goroutines     int     `json:"goroutines"`
	Uptime         string  `json:"uptime"`
}

// ProcessStats читает ресурсы текущего процесса через gopsutil
type ProcessStats struct {
	proc  *process.Process
	start time.Time
}

// NewProcessStats создаёт источник для текущего процесса
func NewProcessStats() (*ProcessStats, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("процесс %d: %w", os.Getpid(), err)
	}
	return &ProcessStats{proc: proc, start: time.Now()}, nil
}

// Snapshot снимает ресурсы; недоступные значения остаются нулевыми
func (p *ProcessStats) Snapshot() ProcessSnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := ProcessSnapshot{
		HeapAllocBytes: ms.HeapAlloc,
		NumGC:          ms.NumGC,
		Goroutines:     runtime.NumGoroutine(),
		Uptime:         FormatUptime(time.Since(p.start)),
	}
	if mem, err := p.proc.MemoryInfo(); err == nil {
		s.RSSBytes = mem.RSS
	}

	// Если не удалось получить метрику процесса, берём системную
	if pct, err := p.proc.CPUPercent(); err == nil {
		s.CPUPercent = pct
	} else if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		s.CPUPercent = pcts[0]
	}
	return s
}

// FormatUptime форматирует длительность работы
func FormatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}
