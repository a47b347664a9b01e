package world

import (
	"math"
	"testing"

	"github.com/annel0/chunkstream/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_CreateAndGetBlock(t *testing.T) {
	ch := NewChunk(ChunkCoord{X: 5, Z: -10})

	assert.Equal(t, ChunkCoord{X: 5, Z: -10}, ch.Coord)
	assert.Equal(t, block.AirBlockID, ch.Block(3, 64, 4), "Новый чанк заполнен воздухом")
	assert.Equal(t, StateMissing, ch.State())
	assert.Equal(t, -1, ch.Height(3, 4))

	ch.SetBlock(3, 64, 4, block.StoneBlockID)
	assert.Equal(t, block.StoneBlockID, ch.Block(3, 64, 4))
	assert.Equal(t, block.AirBlockID, ch.Block(16, 64, 4), "Вне чанка - воздух")

	ch.RecomputeHeights()
	assert.Equal(t, 64, ch.Height(3, 4))
}

func TestChunk_IndexLayout(t *testing.T) {
	assert.Equal(t, 0, Index(0, 0, 0))
	assert.Equal(t, 1, Index(1, 0, 0))
	assert.Equal(t, 16, Index(0, 0, 1))
	assert.Equal(t, 256, Index(0, 1, 0))
	assert.Equal(t, ChunkVolume-1, Index(15, 255, 15))
}

func TestChunk_SubchunkEmpty(t *testing.T) {
	ch := NewChunk(ChunkCoord{})
	assert.True(t, ch.SubchunkEmpty(4))
	ch.SetBlock(0, 4*SubchunkSize+15, 0, block.DirtBlockID)
	assert.False(t, ch.SubchunkEmpty(4))
	assert.True(t, ch.SubchunkEmpty(5))
}

func TestChunk_ApplyEditRelights(t *testing.T) {
	ch := NewChunk(ChunkCoord{})
	ch.SetBlock(5, 10, 5, block.StoneBlockID)
	ch.RecomputeHeights()
	RecomputeLight(ch)
	assert.Equal(t, uint8(0), ch.LightAt(5, 9, 5).Sky(), "Под камнем нет неба")

	require.True(t, ch.ApplyEdit(5, 10, 5, block.AirBlockID))
	assert.Equal(t, uint8(MaxLight), ch.LightAt(5, 9, 5).Sky())
	assert.Equal(t, -1, ch.Height(5, 5))
	assert.False(t, ch.ApplyEdit(5, 10, 5, block.AirBlockID), "Правка без изменений")
}

func TestChunkMesh_HasGeometry(t *testing.T) {
	var m ChunkMesh
	assert.False(t, m.HasGeometry())
	m.Fluid.Size = 44
	assert.True(t, m.HasGeometry())
}

func TestChunkCoord(t *testing.T) {
	assert.Equal(t, ChunkCoord{X: -1, Z: 2}, CoordFromBlock(-1, 40))
	x, z := ChunkCoord{X: -2, Z: 3}.Origin()
	assert.Equal(t, -32, x)
	assert.Equal(t, 48, z)
	assert.Equal(t, ChunkCoord{X: 0, Z: -1}, ChunkCoord{}.Neighbor(NeighborNegZ))
	assert.Equal(t, int64(25), ChunkCoord{X: 3, Z: 4}.DistanceSq(ChunkCoord{}))

	far := ChunkCoord{X: math.MaxInt32, Z: math.MinInt32}
	assert.Equal(t, int64(2)*int64(math.MaxInt32)*int64(math.MaxInt32), far.DistanceSq(ChunkCoord{X: 0, Z: -1}), "Разность считается в int64 без переполнения")
}
