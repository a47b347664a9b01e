package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/annel0/chunkstream/internal/arena"
	"github.com/annel0/chunkstream/internal/eventbus"
	"github.com/annel0/chunkstream/internal/jobs"
	"github.com/annel0/chunkstream/internal/lod"
	"github.com/annel0/chunkstream/internal/storage"
	"github.com/annel0/chunkstream/internal/streamer"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreamer struct {
	mu sync.Mutex
	d  streamer.Diagnostics
}

func (f *fakeStreamer) Diagnostics() streamer.Diagnostics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.d
}

func (f *fakeStreamer) set(d streamer.Diagnostics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.d = d
}

type fakeLOD struct{ d lod.Diagnostics }

func (f *fakeLOD) Diagnostics() lod.Diagnostics { return f.d }

type fakeCache struct{ s storage.CacheStats }

func (f *fakeCache) Stats() storage.CacheStats { return f.s }

func TestExporter_StreamerGaugesAndCounters(t *testing.T) {
	src := &fakeStreamer{}
	src.set(streamer.Diagnostics{
		States:      map[string]int{"renderable": 5, "meshing": 2},
		UploadQueue: 3,
		Generation:  jobs.Stats{Name: "generation", Queued: 7, Active: 2},
		Meshing:     jobs.Stats{Name: "meshing", Queued: 1},
		Arena:       arena.Stats{Name: "chunks", UsedBytes: 1000, FreeBytes: 24, LargestFree: 24},
		Counters:    streamer.Counters{Generated: 10, OOMRetries: 1},
	})
	e := NewExporter(Sources{Streamer: src}, time.Second)

	e.Collect()
	assert.Equal(t, 5.0, testutil.ToFloat64(e.chunks.WithLabelValues("renderable")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.chunks.WithLabelValues("meshing")))
	assert.Equal(t, 3.0, testutil.ToFloat64(e.uploadQueue.WithLabelValues("0")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(e.arenaBytes.WithLabelValues("chunks", "used")))
	assert.Equal(t, 7.0, testutil.ToFloat64(e.poolJobs.WithLabelValues("generation", "queued")))
	assert.Equal(t, 10.0, testutil.ToFloat64(e.pipeline.WithLabelValues("streamer", "generated")))

	// счётчик растёт на дельту, а не на абсолютное значение
	src.set(streamer.Diagnostics{
		States:   map[string]int{"renderable": 8},
		Counters: streamer.Counters{Generated: 15, OOMRetries: 1},
	})
	e.Collect()
	assert.Equal(t, 15.0, testutil.ToFloat64(e.pipeline.WithLabelValues("streamer", "generated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.pipeline.WithLabelValues("streamer", "oom_retries")))
	assert.Equal(t, 8.0, testutil.ToFloat64(e.chunks.WithLabelValues("renderable")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.chunks.WithLabelValues("meshing")), "Исчезнувшее состояние сбрасывается")
}

func TestExporter_LODAndCache(t *testing.T) {
	l := &fakeLOD{d: lod.Diagnostics{
		Levels: []lod.LevelDiagnostics{
			{Level: 1, States: map[string]int{"renderable": 4}, Covered: 1, Arena: arena.Stats{Name: "lod1", UsedBytes: 64}},
			{Level: 2, States: map[string]int{"generating": 2}, UploadQueue: 1, Arena: arena.Stats{Name: "lod2"}},
		},
		Pool:     jobs.Stats{Name: "lod", Active: 1},
		Counters: lod.Counters{Freed: 3},
	}}
	c := &fakeCache{s: storage.CacheStats{Hits: 4, Misses: 6}}
	e := NewExporter(Sources{LOD: l, Cache: c}, time.Second)

	e.Collect()
	assert.Equal(t, 4.0, testutil.ToFloat64(e.regions.WithLabelValues("1", "renderable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.regions.WithLabelValues("1", "covered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.regions.WithLabelValues("2", "generating")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.uploadQueue.WithLabelValues("2")))
	assert.Equal(t, 64.0, testutil.ToFloat64(e.arenaBytes.WithLabelValues("lod1", "used")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.poolJobs.WithLabelValues("lod", "active")))
	assert.Equal(t, 3.0, testutil.ToFloat64(e.pipeline.WithLabelValues("lod", "freed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(e.cacheOps.WithLabelValues("hit")))
	assert.Equal(t, 6.0, testutil.ToFloat64(e.cacheOps.WithLabelValues("miss")))
}

func TestExporter_BusEvents(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()

	e := NewExporter(Sources{Bus: bus}, 10*time.Millisecond)
	require.NoError(t, e.Start())
	defer e.Stop()

	for i := 0; i < 3; i++ {
		ev, err := eventbus.NewEnvelope("test", eventbus.TypeChunkRenderable, 5, eventbus.ChunkEvent{X: int32(i)})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}
	ev, err := eventbus.NewEnvelope("test", eventbus.TypeArenaOOM, 5, eventbus.ArenaEvent{Arena: "chunks"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(e.events.WithLabelValues(eventbus.TypeChunkRenderable)) == 3 &&
			testutil.ToFloat64(e.events.WithLabelValues(eventbus.TypeArenaOOM)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(e.busMessages.WithLabelValues("published")) == 4
	}, 2*time.Second, 5*time.Millisecond)
}

func TestExporter_Handler(t *testing.T) {
	src := &fakeStreamer{}
	src.set(streamer.Diagnostics{States: map[string]int{"renderable": 1}})
	e := NewExporter(Sources{Streamer: src}, time.Second)
	e.Collect()

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chunkstream_chunks{state="renderable"} 1`)
}

func TestExporter_StopWithoutStart(t *testing.T) {
	e := NewExporter(Sources{}, time.Second)
	e.Stop()
	e.Stop()
}

func TestTwoExportersDoNotConflict(t *testing.T) {
	assert.NotPanics(t, func() {
		NewExporter(Sources{}, time.Second)
		NewExporter(Sources{}, time.Second)
	})
}
