package mesher

import (
	"testing"

	"github.com/annel0/chunkstream/internal/geom"
	"github.com/annel0/chunkstream/internal/world"
	"github.com/annel0/chunkstream/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadedChunk создаёт чанк в состоянии generated
func loadedChunk(c world.ChunkCoord) *world.Chunk {
	ch := world.NewChunk(c)
	ch.SetState(world.StateGenerated)
	return ch
}

func build(ch *world.Chunk, neighbors [4]*world.Chunk, opts Options) geom.MeshData {
	return Build(NewVolume(ch, neighbors, opts), opts)
}

// facesOf возвращает вершины с заданным направлением грани
func facesOf(vs []geom.Vertex, face geom.Face) []geom.Vertex {
	var out []geom.Vertex
	for _, v := range vs {
		if v.Face == face {
			out = append(out, v)
		}
	}
	return out
}

func TestGreedy_FlatRegionSingleQuad(t *testing.T) {
	sizes := [][2]int{{1, 1}, {3, 5}, {16, 16}, {7, 16}}
	for _, s := range sizes {
		ch := loadedChunk(world.ChunkCoord{})
		for x := 0; x < s[0]; x++ {
			for z := 0; z < s[1]; z++ {
				ch.SetBlock(x, 20, z, block.StoneBlockID)
			}
		}

		mesh := build(ch, [4]*world.Chunk{}, DefaultOptions())
		top := facesOf(mesh.Solid, geom.FacePosY)
		require.Len(t, top, 6, "%dx%d верхних граней дают один квад", s[0], s[1])
		bottom := facesOf(mesh.Solid, geom.FaceNegY)
		assert.Len(t, bottom, 6)

		var maxX, maxZ float32
		for _, v := range top {
			assert.Equal(t, float32(21), v.Pos[1], "Верхняя грань на плоскости y+1")
			if v.Pos[0] > maxX {
				maxX = v.Pos[0]
			}
			if v.Pos[2] > maxZ {
				maxZ = v.Pos[2]
			}
		}
		assert.Equal(t, float32(s[0]), maxX)
		assert.Equal(t, float32(s[1]), maxZ)
	}
}

func TestGreedy_NoInternalFaces(t *testing.T) {
	ch := loadedChunk(world.ChunkCoord{})
	ch.SetBlock(5, 40, 5, block.StoneBlockID)
	ch.SetBlock(6, 40, 5, block.DirtBlockID)

	mesh := build(ch, [4]*world.Chunk{}, DefaultOptions())
	for _, v := range mesh.Solid {
		if v.Face.Axis() == 0 {
			assert.NotEqual(t, float32(6), v.Pos[0], "На общей границе X=6 граней быть не должно")
		}
	}
	assert.Len(t, facesOf(mesh.Solid, geom.FacePosX), 6)
	assert.Len(t, facesOf(mesh.Solid, geom.FaceNegX), 6)
	assert.Len(t, facesOf(mesh.Solid, geom.FacePosY), 12, "Разные блоки не сливаются")

	ch.SetBlock(6, 41, 5, block.StoneBlockID)
	mesh = build(ch, [4]*world.Chunk{}, DefaultOptions())
	for _, v := range facesOf(mesh.Solid, geom.FacePosY) {
		if v.Pos[0] > 6 {
			assert.NotEqual(t, float32(41), v.Pos[1], "Верх земли закрыт камнем")
		}
	}
}

func TestGreedy_SubchunkBoundaryNoDuplicates(t *testing.T) {
	ch := loadedChunk(world.ChunkCoord{})
	ch.SetBlock(0, 15, 0, block.StoneBlockID)

	mesh := build(ch, [4]*world.Chunk{}, DefaultOptions())
	assert.Len(t, facesOf(mesh.Solid, geom.FacePosY), 6, "Верх блока на границе подчанков ровно один раз")
	assert.Len(t, mesh.Solid, 36, "Одиночный блок - шесть квадов")

	ch.SetBlock(0, 16, 0, block.StoneBlockID)
	mesh = build(ch, [4]*world.Chunk{}, DefaultOptions())
	for _, v := range facesOf(mesh.Solid, geom.FacePosY) {
		assert.Equal(t, float32(17), v.Pos[1])
	}
	assert.Len(t, facesOf(mesh.Solid, geom.FaceNegY), 6)
}

func TestGreedy_CrossChunkCulling(t *testing.T) {
	ch := loadedChunk(world.ChunkCoord{})
	ch.SetBlock(15, 30, 3, block.StoneBlockID)

	east := loadedChunk(world.ChunkCoord{X: 1})
	east.SetBlock(0, 30, 3, block.StoneBlockID)

	var neighbors [4]*world.Chunk
	neighbors[world.NeighborPosX] = east
	mesh := build(ch, neighbors, DefaultOptions())
	assert.Empty(t, facesOf(mesh.Solid, geom.FacePosX), "Сосед закрывает грань на границе чанков")

	// отсутствующий сосед - воздух, грань рисуется
	mesh = build(ch, [4]*world.Chunk{}, DefaultOptions())
	px := facesOf(mesh.Solid, geom.FacePosX)
	require.Len(t, px, 6)
	assert.Equal(t, float32(16), px[0].Pos[0])

	// сосед без данных тоже считается отсутствующим
	east.SetState(world.StateGenerating)
	mesh = build(ch, neighbors, DefaultOptions())
	assert.Len(t, facesOf(mesh.Solid, geom.FacePosX), 6)

	opts := DefaultOptions()
	opts.MissingNeighborSolid = true
	mesh = build(ch, [4]*world.Chunk{}, opts)
	assert.Empty(t, facesOf(mesh.Solid, geom.FacePosX), "Пессимистичный режим скрывает грань")
}

func TestGreedy_NeighborFacesNotOwned(t *testing.T) {
	ch := loadedChunk(world.ChunkCoord{})
	west := loadedChunk(world.ChunkCoord{X: -1})
	west.SetBlock(15, 50, 8, block.StoneBlockID)

	var neighbors [4]*world.Chunk
	neighbors[world.NeighborNegX] = west
	mesh := build(ch, neighbors, DefaultOptions())
	assert.True(t, mesh.Empty(), "Грани блоков соседа принадлежат соседу")
}

func TestGreedy_FluidPass(t *testing.T) {
	ch := loadedChunk(world.ChunkCoord{X: 2, Z: -1})
	for x := 0; x < 4; x++ {
		ch.SetBlock(x, 60, 0, block.WaterBlockID)
	}
	ch.SetBlock(0, 59, 0, block.StoneBlockID)

	mesh := build(ch, [4]*world.Chunk{}, DefaultOptions())
	require.NotEmpty(t, mesh.Fluid)
	for _, v := range mesh.Fluid {
		if v.Face.Axis() == 0 {
			assert.NotContains(t, []float32{33, 34, 35}, v.Pos[0], "Внутренних граней воды нет")
		}
		assert.Equal(t, block.Get(block.WaterBlockID).Tiles[v.Face], v.Tile)
	}
	assert.Len(t, facesOf(mesh.Fluid, geom.FacePosY), 6, "Поверхность воды сливается в один квад")
	assert.Len(t, facesOf(mesh.Solid, geom.FacePosY), 6, "Вода не закрывает верх камня")
	assert.Len(t, facesOf(mesh.Fluid, geom.FaceNegY), 6, "Низ воды над камнем не рисуется")
}

func TestGreedy_LightTolerance(t *testing.T) {
	ch := loadedChunk(world.ChunkCoord{})
	for x := 0; x < 3; x++ {
		ch.SetBlock(x, 10, 0, block.StoneBlockID)
	}
	ch.SetLight(0, 11, 0, world.NewLight(15, 0, 0, 0))
	ch.SetLight(1, 11, 0, world.NewLight(14, 0, 0, 0))
	ch.SetLight(2, 11, 0, world.NewLight(13, 0, 0, 0))

	mesh := build(ch, [4]*world.Chunk{}, DefaultOptions())
	top := facesOf(mesh.Solid, geom.FacePosY)
	assert.Len(t, top, 12, "Разница в 2 уровня от затравки разбивает квад")

	var skies []float32
	for _, v := range top[:6] {
		skies = append(skies, v.Sky)
	}
	assert.Contains(t, skies, float32(1.0))
	assert.Contains(t, skies, float32(14)/15, "Угловой свет берётся из угловой ячейки")
}

func TestGreedy_TintAverage(t *testing.T) {
	ch := loadedChunk(world.ChunkCoord{})
	ch.SetBlock(8, 64, 8, block.GrassBlockID)
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			ch.Biomes[world.ColumnIndex(8+dx, 8+dz)] = world.BiomeDesert
		}
	}
	ch.Biomes[world.ColumnIndex(9, 9)] = world.BiomeForest

	mesh := build(ch, [4]*world.Chunk{}, DefaultOptions())
	top := facesOf(mesh.Solid, geom.FacePosY)
	require.Len(t, top, 6)

	desert := world.BiomeDesert.Tint(block.TintGrass)
	forest := world.BiomeForest.Tint(block.TintGrass)
	want := (desert[0]*8 + forest[0]) / 9
	assert.InDelta(t, want, top[0].Color[0], 1e-5, "Оттенок - среднее по 3x3 столбцам")

	side := facesOf(mesh.Solid, geom.FacePosX)
	require.Len(t, side, 6)
	assert.Equal(t, [3]float32{0.8, 0.8, 0.8}, side[0].Color, "Бок травы не окрашивается, только затенение")
}

func TestGreedy_TintToleranceSplitsQuads(t *testing.T) {
	ch := loadedChunk(world.ChunkCoord{})
	for x := 0; x < 16; x++ {
		ch.SetBlock(x, 64, 0, block.GrassBlockID)
	}
	for x := 8; x < 16; x++ {
		for z := 0; z < 16; z++ {
			ch.Biomes[world.ColumnIndex(x, z)] = world.BiomeDesert
		}
	}

	mesh := build(ch, [4]*world.Chunk{}, DefaultOptions())
	assert.Greater(t, len(facesOf(mesh.Solid, geom.FacePosY)), 6, "Разные биомы не сливаются")
}

func TestGreedy_DeterministicWorldSpace(t *testing.T) {
	gen := world.NewPerlinGenerator(2024, 62)
	ch := loadedChunk(world.ChunkCoord{X: -3, Z: 5})
	require.NoError(t, gen.Generate(ch, nil))

	a := build(ch, [4]*world.Chunk{}, DefaultOptions())
	b := build(ch, [4]*world.Chunk{}, DefaultOptions())
	assert.Equal(t, a, b)
	require.NotEmpty(t, a.Solid)
	assert.Zero(t, len(a.Solid)%6)

	for _, v := range a.Solid {
		assert.GreaterOrEqual(t, v.Pos[0], float32(-48))
		assert.LessOrEqual(t, v.Pos[0], float32(-32))
		assert.GreaterOrEqual(t, v.Pos[2], float32(80))
		assert.LessOrEqual(t, v.Pos[2], float32(96))
	}
}

func TestVolume_SnapshotIsolation(t *testing.T) {
	ch := loadedChunk(world.ChunkCoord{})
	ch.SetBlock(1, 1, 1, block.StoneBlockID)
	vol := NewVolume(ch, [4]*world.Chunk{}, DefaultOptions())

	ch.SetBlock(1, 1, 1, block.AirBlockID)
	assert.Equal(t, block.StoneBlockID, vol.Block(1, 1, 1), "Снимок не видит последующих правок")
	assert.False(t, vol.SubchunkEmpty(0))
	assert.True(t, vol.SubchunkEmpty(1))
	assert.Equal(t, block.BedrockBlockID, vol.Block(0, -1, 0))
	assert.Equal(t, world.FullSky, vol.Light(0, 256, 0))
}
