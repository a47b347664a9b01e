package world

import (
	"sync/atomic"
	"testing"

	"github.com/annel0/chunkstream/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerlinGenerator_Deterministic(t *testing.T) {
	gen := NewPerlinGenerator(12345, 62)
	a := NewChunk(ChunkCoord{X: 3, Z: -2})
	b := NewChunk(ChunkCoord{X: 3, Z: -2})

	require.NoError(t, gen.Generate(a, nil))
	require.NoError(t, NewPerlinGenerator(12345, 62).Generate(b, nil))

	assert.Equal(t, a.Blocks, b.Blocks, "Одинаковый сид и координаты дают одинаковый чанк")
	assert.Equal(t, a.Biomes, b.Biomes)
	assert.Equal(t, a.Light, b.Light)
}

func TestPerlinGenerator_ColumnStructure(t *testing.T) {
	gen := NewPerlinGenerator(1, 62)
	ch := NewChunk(ChunkCoord{})
	require.NoError(t, gen.Generate(ch, nil))

	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			assert.Equal(t, block.BedrockBlockID, ch.Block(x, 0, z), "Дно мира - бедрок")
			h := ch.Height(x, z)
			require.GreaterOrEqual(t, h, gen.SeaLevel-1, "Вода заполняет столбец до уровня моря")
			assert.Equal(t, block.AirBlockID, ch.Block(x, h+1, z))
			assert.Equal(t, uint8(MaxLight), ch.LightAt(x, h+1, z).Sky())
		}
	}
}

func TestPerlinGenerator_Abort(t *testing.T) {
	gen := NewPerlinGenerator(1, 62)
	var abort atomic.Bool
	abort.Store(true)

	err := gen.Generate(NewChunk(ChunkCoord{}), &abort)
	assert.ErrorIs(t, err, ErrAborted)

	err = gen.GenerateHeightmap(NewHeightmap(0, 0, 2, 17), &abort)
	assert.ErrorIs(t, err, ErrAborted)
}

func TestPerlinGenerator_HeightmapMatchesChunk(t *testing.T) {
	gen := NewPerlinGenerator(99, 62)
	ch := NewChunk(ChunkCoord{X: 2, Z: 2})
	require.NoError(t, gen.Generate(ch, nil))

	ox, oz := ch.Coord.Origin()
	hm := NewHeightmap(ox, oz, 1, 4)
	require.NoError(t, gen.GenerateHeightmap(hm, nil))

	for j := 0; j < hm.Size; j++ {
		for i := 0; i < hm.Size; i++ {
			h, _ := gen.sample(ox+i, oz+j)
			if h < gen.SeaLevel {
				h = gen.SeaLevel
			}
			assert.Equal(t, float32(h+1), hm.HeightAt(i, j))
		}
	}
	assert.Equal(t, hm.HeightAt(3, 3), hm.HeightAt(10, 10), "Координаты за краем сетки ограничиваются")
}
