package world

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetOrCreate(t *testing.T) {
	s := NewChunkStore()
	c := ChunkCoord{X: 1, Z: 2}

	ch, created := s.GetOrCreate(c)
	require.True(t, created)
	assert.Equal(t, StateMissing, ch.State())
	assert.NotZero(t, ch.Token())

	again, created := s.GetOrCreate(c)
	assert.False(t, created)
	assert.Same(t, ch, again)
	assert.Equal(t, 1, s.Len())
}

func TestStore_ConcurrentGetOrCreate(t *testing.T) {
	s := NewChunkStore()
	c := ChunkCoord{X: 7, Z: 7}

	var wg sync.WaitGroup
	results := make([]*Chunk, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.GetOrCreate(c)
		}(i)
	}
	wg.Wait()

	for _, ch := range results {
		assert.Same(t, results[0], ch, "Все горутины должны получить один и тот же чанк")
	}
}

func TestStore_PinnedChunkNeverRemoved(t *testing.T) {
	s := NewChunkStore()
	c := ChunkCoord{X: 100, Z: -100}
	ch, _ := s.GetOrCreate(c)
	ch.SetState(StateRenderable)

	_, lease, ok := s.Pin(c)
	require.True(t, ok)

	_, removed := s.Remove(c, nil)
	assert.False(t, removed, "Закреплённый чанк не выселяется")
	assert.Equal(t, StateRenderable, ch.State())

	lease.Release()
	lease.Release()
	assert.Equal(t, int32(0), ch.Pins(), "Повторный Release не уменьшает счётчик")

	got, removed := s.Remove(c, nil)
	require.True(t, removed)
	assert.Same(t, ch, got)
	assert.Equal(t, StateUnloading, ch.State())
	assert.Equal(t, 0, s.Len())
}

func TestStore_MidJobNotRemoved(t *testing.T) {
	s := NewChunkStore()
	for _, st := range []State{StateGenerating, StateMeshing, StateUploading} {
		c := ChunkCoord{X: int32(st)}
		ch, _ := s.GetOrCreate(c)
		ch.SetState(st)
		_, removed := s.Remove(c, nil)
		assert.False(t, removed, "Состояние %s", st)
	}

	c := ChunkCoord{X: 50}
	ch, _ := s.GetOrCreate(c)
	ch.SetState(StateGenerated)
	_, removed := s.Remove(c, func(*Chunk) bool { return false })
	assert.False(t, removed, "Предикат запрещает выселение")
}

func TestStore_RecreatedChunkGetsFreshToken(t *testing.T) {
	s := NewChunkStore()
	c := ChunkCoord{}
	first, _ := s.GetOrCreate(c)
	oldToken := first.Token()

	_, removed := s.Remove(c, nil)
	require.True(t, removed)
	assert.NotEqual(t, oldToken, first.Token(), "Выселение инвалидирует токен")

	second, created := s.GetOrCreate(c)
	require.True(t, created)
	assert.NotEqual(t, oldToken, second.Token())
	assert.Greater(t, second.Token(), first.Token())
}

func TestChunkStore_Neighbors(t *testing.T) {
	s := NewChunkStore()
	center := ChunkCoord{}
	s.GetOrCreate(center)
	east, _ := s.GetOrCreate(center.Neighbor(NeighborPosX))
	south, _ := s.GetOrCreate(center.Neighbor(NeighborNegZ))

	n := s.Neighbors(center)
	assert.Same(t, east, n[NeighborPosX])
	assert.Nil(t, n[NeighborNegX])
	assert.Nil(t, n[NeighborPosZ])
	assert.Same(t, south, n[NeighborNegZ])

	_, leases := s.PinNeighbors(center)
	assert.Len(t, leases, 2)
	assert.Equal(t, int32(1), east.Pins())
	ReleaseAll(leases)
	assert.Equal(t, int32(0), east.Pins())
}

func TestLifecycle_Transitions(t *testing.T) {
	var l Lifecycle
	assert.True(t, l.CompareAndSwapState(StateMissing, StateGenerating))
	assert.False(t, l.CompareAndSwapState(StateMissing, StateGenerating), "Повторный переход невозможен")
	assert.True(t, l.MidJob())

	l.MarkDirty()
	assert.True(t, l.TakeDirty())
	assert.False(t, l.TakeDirty())
	assert.Equal(t, "mesh_ready", StateMeshReady.String())
	assert.True(t, StateRenderable.HasData())
	assert.False(t, StateGenerating.HasData())
}
