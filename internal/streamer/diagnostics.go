package streamer

import (
	"github.com/annel0/chunkstream/internal/arena"
	"github.com/annel0/chunkstream/internal/jobs"
	"github.com/annel0/chunkstream/internal/world"
)

// Counters накопленные счётчики конвейера
type Counters struct {
	Generated          uint64 `json:"generated"`
	Meshed             uint64 `json:"meshed"`
	Uploaded           uint64 `json:"uploaded"`
	Evicted            uint64 `json:"evicted"`
	Stale              uint64 `json:"stale"`
	GenerationFailures uint64 `json:"generation_failures"`
	OOMRetries         uint64 `json:"oom_retries"`
}

// Diagnostics снимок состояния для внешнего оверлея. Согласован лишь
// в конечном счёте: счётчики снимаются без общей блокировки.
type Diagnostics struct {
	ID          string           `json:"id"`
	Tick        uint64           `json:"tick"`
	Paused      bool             `json:"paused"`
	Center      world.ChunkCoord `json:"center"`
	Resident    int              `json:"resident"`
	States      map[string]int   `json:"states"`
	UploadQueue int              `json:"upload_queue"`
	Generation  jobs.Stats       `json:"generation"`
	Meshing     jobs.Stats       `json:"meshing"`
	Arena       arena.Stats      `json:"arena"`
	Counters    Counters         `json:"counters"`
}

// Count количество чанков в состоянии st
func (d Diagnostics) Count(st world.State) int {
	return d.States[st.String()]
}

// Diagnostics безопасен из любой горутины
func (s *Streamer) Diagnostics() Diagnostics {
	d := Diagnostics{
		ID:          s.id,
		Tick:        s.tick.Load(),
		Paused:      s.paused.Load(),
		Center:      s.current().center,
		States:      make(map[string]int, world.StateCount),
		UploadQueue: s.uploads.Len(),
		Generation:  s.genPool.Stats(),
		Meshing:     s.mshPool.Stats(),
		Arena:       s.arena.Stats(),
		Counters: Counters{
			Generated:          s.counters.generated.Load(),
			Meshed:             s.counters.meshed.Load(),
			Uploaded:           s.counters.uploaded.Load(),
			Evicted:            s.counters.evicted.Load(),
			Stale:              s.counters.stale.Load(),
			GenerationFailures: s.counters.genFailures.Load(),
			OOMRetries:         s.counters.oomRetries.Load(),
		},
	}
	s.store.ForEach(func(_ world.ChunkCoord, ch *world.Chunk) bool {
		d.Resident++
		d.States[ch.State().String()]++
		return true
	})
	return d
}
