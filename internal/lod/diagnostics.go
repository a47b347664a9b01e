package lod

import (
	"github.com/annel0/chunkstream/internal/arena"
	"github.com/annel0/chunkstream/internal/jobs"
	"github.com/annel0/chunkstream/internal/world"
)

// LevelDiagnostics снимок одного уровня
type LevelDiagnostics struct {
	Level       int            `json:"level"`
	Radius      int            `json:"radius"`
	Resident    int            `json:"resident"`
	Covered     int            `json:"covered"`
	States      map[string]int `json:"states"`
	UploadQueue int            `json:"upload_queue"`
	Arena       arena.Stats    `json:"arena"`
}

// Count количество регионов в состоянии st
func (d LevelDiagnostics) Count(st world.State) int {
	return d.States[st.String()]
}

// Counters накопленные счётчики менеджера
type Counters struct {
	Generated          uint64 `json:"generated"`
	Meshed             uint64 `json:"meshed"`
	Uploaded           uint64 `json:"uploaded"`
	Evicted            uint64 `json:"evicted"`
	Freed              uint64 `json:"freed"`
	Stale              uint64 `json:"stale"`
	GenerationFailures uint64 `json:"generation_failures"`
	OOMRetries         uint64 `json:"oom_retries"`
}

// Diagnostics снимок менеджера LOD
type Diagnostics struct {
	ID       string             `json:"id"`
	Tick     uint64             `json:"tick"`
	Paused   bool               `json:"paused"`
	Levels   []LevelDiagnostics `json:"levels"`
	Pool     jobs.Stats         `json:"pool"`
	Counters Counters           `json:"counters"`
}

// Diagnostics безопасен из любой горутины
func (m *Manager) Diagnostics() Diagnostics {
	d := Diagnostics{
		ID:     m.id,
		Tick:   m.tick.Load(),
		Paused: m.paused.Load(),
		Pool:   m.pool.Stats(),
		Counters: Counters{
			Generated:          m.counters.generated.Load(),
			Meshed:             m.counters.meshed.Load(),
			Uploaded:           m.counters.uploaded.Load(),
			Evicted:            m.counters.evicted.Load(),
			Freed:              m.counters.freed.Load(),
			Stale:              m.counters.stale.Load(),
			GenerationFailures: m.counters.genFailures.Load(),
			OOMRetries:         m.counters.oomRetries.Load(),
		},
	}
	for _, lvl := range m.levels {
		ld := LevelDiagnostics{
			Level:       lvl.n,
			Radius:      lvl.radius,
			States:      make(map[string]int, world.StateCount),
			UploadQueue: lvl.uploads.Len(),
			Arena:       lvl.arena.Stats(),
		}
		lvl.store.ForEach(func(_ RegionKey, reg *Region) bool {
			ld.Resident++
			ld.States[reg.State().String()]++
			if reg.Covered() {
				ld.Covered++
			}
			return true
		})
		d.Levels = append(d.Levels, ld)
	}
	return d
}

// Level снимок уровня n из диагностики
func (d Diagnostics) Level(n int) (LevelDiagnostics, bool) {
	for _, ld := range d.Levels {
		if ld.Level == n {
			return ld, true
		}
	}
	return LevelDiagnostics{}, false
}
