package storage

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/annel0/chunkstream/internal/world"
	"github.com/annel0/chunkstream/internal/world/block"
	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T, seed int64) *ChunkCache {
	t.Helper()
	cache, err := OpenInMemoryChunkCache(seed)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

// countingGenerator считает вызовы вложенного генератора
type countingGenerator struct {
	calls   atomic.Int32
	heights atomic.Int32
	fail    error
}

func (g *countingGenerator) Generate(ch *world.Chunk, abort *atomic.Bool) error {
	g.calls.Add(1)
	if g.fail != nil {
		return g.fail
	}
	for z := 0; z < world.ChunkSize; z++ {
		for x := 0; x < world.ChunkSize; x++ {
			for y := 0; y <= 20+x; y++ {
				ch.SetBlock(x, y, z, block.StoneBlockID)
			}
			ch.Biomes[world.ColumnIndex(x, z)] = world.BiomeDesert
		}
	}
	ch.SetBlock(4, 40, 4, block.GlowstoneBlockID)
	ch.RecomputeHeights()
	world.RecomputeLight(ch)
	return nil
}

func (g *countingGenerator) GenerateHeightmap(hm *world.Heightmap, abort *atomic.Bool) error {
	g.heights.Add(1)
	return nil
}

func TestChunkCache_RoundTrip(t *testing.T) {
	cache := setupTestCache(t, 7)
	gen := &countingGenerator{}

	coord := world.ChunkCoord{X: -3, Z: 12}
	src := world.NewChunk(coord)
	require.NoError(t, gen.Generate(src, nil))
	require.NoError(t, cache.Store(src))

	dst := world.NewChunk(coord)
	hit, err := cache.Load(dst)
	require.NoError(t, err)
	require.True(t, hit)

	assert.Equal(t, src.Blocks, dst.Blocks)
	assert.Equal(t, src.Light, dst.Light)
	assert.Equal(t, src.Biomes, dst.Biomes)
	assert.Equal(t, src.Heights, dst.Heights)
	assert.Equal(t, uint8(13), dst.LightAt(4, 40, 4).G())

	assert.Equal(t, CacheStats{Hits: 1, Stores: 1}, cache.Stats())
}

func TestChunkCache_Miss(t *testing.T) {
	cache := setupTestCache(t, 7)

	ch := world.NewChunk(world.ChunkCoord{X: 1, Z: 1})
	hit, err := cache.Load(ch)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, uint64(1), cache.Stats().Misses)
	assert.Equal(t, block.AirBlockID, ch.Block(0, 0, 0), "Промах не меняет чанк")
}

func TestChunkCache_SeedIsolation(t *testing.T) {
	cache := setupTestCache(t, 1)
	coord := world.ChunkCoord{X: 0, Z: 0}
	src := world.NewChunk(coord)
	require.NoError(t, (&countingGenerator{}).Generate(src, nil))
	require.NoError(t, cache.Store(src))

	other := &ChunkCache{db: cache.db, seed: 2, enc: cache.enc, dec: cache.dec, logger: cache.logger}
	hit, err := other.Load(world.NewChunk(coord))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestChunkCache_CorruptPayload(t *testing.T) {
	cache := setupTestCache(t, 3)
	coord := world.ChunkCoord{X: 5, Z: 5}
	require.NoError(t, cache.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cache.key(coord), []byte("не zstd"))
	}))

	hit, err := cache.Load(world.NewChunk(coord))
	assert.False(t, hit)
	assert.ErrorIs(t, err, ErrCorruptPayload)
	assert.Equal(t, uint64(1), cache.Stats().Corrupt)
}

func TestChunkCache_DeleteAndClose(t *testing.T) {
	cache := setupTestCache(t, 3)
	coord := world.ChunkCoord{X: 2, Z: -2}
	ch := world.NewChunk(coord)
	require.NoError(t, (&countingGenerator{}).Generate(ch, nil))
	require.NoError(t, cache.Store(ch))
	require.NoError(t, cache.Delete(coord))

	hit, err := cache.Load(world.NewChunk(coord))
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Close())
	require.NoError(t, cache.Close())
	_, err = cache.Load(ch)
	assert.ErrorIs(t, err, ErrCacheClosed)
	assert.ErrorIs(t, cache.Store(ch), ErrCacheClosed)
}

func TestCachingGenerator(t *testing.T) {
	cache := setupTestCache(t, 11)
	inner := &countingGenerator{}
	gen := NewCachingGenerator(inner, cache)

	coord := world.ChunkCoord{X: 4, Z: 9}
	first := world.NewChunk(coord)
	require.NoError(t, gen.Generate(first, nil))
	assert.Equal(t, int32(1), inner.calls.Load())

	second := world.NewChunk(coord)
	require.NoError(t, gen.Generate(second, nil))
	assert.Equal(t, int32(1), inner.calls.Load(), "Второй запрос обслужен кэшем")
	assert.Equal(t, first.Blocks, second.Blocks)

	require.NoError(t, gen.GenerateHeightmap(world.NewHeightmap(0, 0, 2, 17), nil))
	assert.Equal(t, int32(1), inner.heights.Load())
}

func TestCachingGenerator_FailureNotCached(t *testing.T) {
	cache := setupTestCache(t, 11)
	boom := errors.New("сбой генератора")
	gen := NewCachingGenerator(&countingGenerator{fail: boom}, cache)

	err := gen.Generate(world.NewChunk(world.ChunkCoord{X: 1, Z: 2}), nil)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, cache.Stats().Stores)
}

func TestCachingGenerator_ClosedCacheFallsThrough(t *testing.T) {
	cache := setupTestCache(t, 11)
	inner := &countingGenerator{}
	gen := NewCachingGenerator(inner, cache)
	require.NoError(t, cache.Close())

	ch := world.NewChunk(world.ChunkCoord{X: 0, Z: 0})
	require.NoError(t, gen.Generate(ch, nil))
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, block.StoneBlockID, ch.Block(0, 0, 0))
}
