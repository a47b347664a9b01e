package world

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/annel0/chunkstream/internal/util"
	"github.com/annel0/chunkstream/internal/world/block"
)

var (
	// ErrAborted генерация прервана флагом отмены (пауза очереди)
	ErrAborted = errors.New("генерация прервана")
	// ErrChunkNotLoaded данные чанка ещё не сгенерированы
	ErrChunkNotLoaded = errors.New("чанк не загружен")
)

// Generator внешний генератор ландшафта. Реализация обязана быть
// детерминированной по координатам и сиду и периодически проверять abort.
type Generator interface {
	Generate(ch *Chunk, abort *atomic.Bool) error
	GenerateHeightmap(hm *Heightmap, abort *atomic.Bool) error
}

// PerlinGenerator генерирует ландшафт на шуме Перлина
type PerlinGenerator struct {
	Seed         int64
	SeaLevel     int
	TerrainScale float64 // масштаб основного шума высоты
	DetailScale  float64 // масштаб мелкого рельефа
	ClimateScale float64 // масштаб шума температуры и влажности
	TreeDensity  float64 // вероятность дерева на столбец в лесу

	height      *util.Noise
	detail      *util.Noise
	temperature *util.Noise
	moisture    *util.Noise
}

// NewPerlinGenerator создаёт генератор с указанным сидом
func NewPerlinGenerator(seed int64, seaLevel int) *PerlinGenerator {
	if seaLevel <= 0 || seaLevel >= ChunkHeight-1 {
		seaLevel = 62
	}
	return &PerlinGenerator{
		Seed:         seed,
		SeaLevel:     seaLevel,
		TerrainScale: 0.004,
		DetailScale:  0.03,
		ClimateScale: 0.0025,
		TreeDensity:  0.02,
		height:       util.NewNoise(seed),
		detail:       util.NewNoise(seed + 1),
		temperature:  util.NewNoise(seed + 42),
		moisture:     util.NewNoise(seed + 77),
	}
}

// sample возвращает высоту поверхности и биом мирового столбца
func (g *PerlinGenerator) sample(wx, wz int) (int, Biome) {
	x, z := float64(wx), float64(wz)

	continental := g.height.Octaves(x*g.TerrainScale, z*g.TerrainScale, 4, 0.5)
	detail := g.detail.Noise2D(x*g.DetailScale, z*g.DetailScale)

	h := float64(g.SeaLevel) + (continental-0.5)*120 + (detail-0.5)*10
	if continental > 0.62 {
		// горы
		h += (continental - 0.62) * 260
	}
	height := int(math.Round(h))
	if height < 1 {
		height = 1
	}
	if height > ChunkHeight-12 {
		height = ChunkHeight - 12
	}

	temp := g.temperature.Noise2D(x*g.ClimateScale, z*g.ClimateScale)
	moist := g.moisture.Noise2D(x*g.ClimateScale, z*g.ClimateScale)

	var biome Biome
	switch {
	case height < g.SeaLevel-2:
		biome = BiomeOcean
	case height > g.SeaLevel+40:
		biome = BiomeMountains
	case temp < 0.38:
		biome = BiomeTundra
	case temp > 0.6 && moist < 0.5:
		biome = BiomeDesert
	case moist > 0.52:
		biome = BiomeForest
	default:
		biome = BiomePlains
	}
	return height, biome
}

// surfaceBlocks возвращает верхний и подповерхностный блок столбца
func (g *PerlinGenerator) surfaceBlocks(height int, biome Biome) (top, filler block.BlockID) {
	switch {
	case biome == BiomeOcean:
		return block.GravelBlockID, block.SandBlockID
	case biome == BiomeDesert || height <= g.SeaLevel+1:
		return block.SandBlockID, block.SandBlockID
	case biome == BiomeMountains && height > g.SeaLevel+70:
		return block.SnowBlockID, block.StoneBlockID
	case biome == BiomeMountains:
		return block.StoneBlockID, block.StoneBlockID
	case biome == BiomeTundra:
		return block.SnowBlockID, block.DirtBlockID
	default:
		return block.GrassBlockID, block.DirtBlockID
	}
}

// Generate заполняет чанк блоками, биомами, высотами и светом
func (g *PerlinGenerator) Generate(ch *Chunk, abort *atomic.Bool) error {
	ox, oz := ch.Coord.Origin()

	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			if abort != nil && abort.Load() {
				return ErrAborted
			}

			height, biome := g.sample(ox+x, oz+z)
			top, filler := g.surfaceBlocks(height, biome)
			ch.Biomes[ColumnIndex(x, z)] = biome

			ch.SetBlock(x, 0, z, block.BedrockBlockID)
			for y := 1; y <= height; y++ {
				id := block.StoneBlockID
				switch {
				case y == height:
					id = top
				case y > height-4:
					id = filler
				}
				ch.SetBlock(x, y, z, id)
			}

			for y := height + 1; y <= g.SeaLevel; y++ {
				if y == g.SeaLevel && biome == BiomeTundra {
					ch.SetBlock(x, y, z, block.IceBlockID)
				} else {
					ch.SetBlock(x, y, z, block.WaterBlockID)
				}
			}
		}
	}

	g.placeTrees(ch, ox, oz)
	g.placeGlowstone(ch, ox, oz)

	ch.RecomputeHeights()
	RecomputeLight(ch)
	return nil
}

// placeTrees ставит деревья целиком внутри чанка, чтобы генерация не
// зависела от соседей
func (g *PerlinGenerator) placeTrees(ch *Chunk, ox, oz int) {
	for z := 2; z < ChunkSize-2; z++ {
		for x := 2; x < ChunkSize-2; x++ {
			biome := ch.Biome(x, z)
			chance := 0.0
			switch biome {
			case BiomeForest:
				chance = g.TreeDensity
			case BiomePlains:
				chance = g.TreeDensity / 5
			}
			if chance == 0 || util.Hash2(g.Seed, ox+x, oz+z) >= chance {
				continue
			}

			ground := -1
			for y := ChunkHeight - 1; y > 0; y-- {
				if ch.Block(x, y, z) != block.AirBlockID {
					ground = y
					break
				}
			}
			if ground < 0 || ch.Block(x, ground, z) != block.GrassBlockID || ground+8 >= ChunkHeight {
				continue
			}

			trunk := 4 + int(util.Hash2(g.Seed+1, ox+x, oz+z)*3)
			ch.SetBlock(x, ground, z, block.DirtBlockID)
			for y := 1; y <= trunk; y++ {
				ch.SetBlock(x, ground+y, z, block.LogBlockID)
			}
			top := ground + trunk
			for dy := -1; dy <= 1; dy++ {
				r := 2
				if dy == 1 {
					r = 1
				}
				for dz := -r; dz <= r; dz++ {
					for dx := -r; dx <= r; dx++ {
						if ch.Block(x+dx, top+dy, z+dz) == block.AirBlockID {
							ch.SetBlock(x+dx, top+dy, z+dz, block.LeavesBlockID)
						}
					}
				}
			}
			ch.SetBlock(x, top+2, z, block.LeavesBlockID)
		}
	}
}

// placeGlowstone изредка ставит светящийся блок на поверхность
func (g *PerlinGenerator) placeGlowstone(ch *Chunk, ox, oz int) {
	if util.Hash2(g.Seed+7, ox, oz) >= 0.05 {
		return
	}
	x, z := 8, 8
	for y := ChunkHeight - 2; y > 0; y-- {
		id := ch.Block(x, y, z)
		if id != block.AirBlockID && !block.Get(id).Fluid {
			ch.SetBlock(x, y+1, z, block.GlowstoneBlockID)
			return
		}
	}
}

// GenerateHeightmap заполняет упрощённую сетку для LOD
func (g *PerlinGenerator) GenerateHeightmap(hm *Heightmap, abort *atomic.Bool) error {
	for j := 0; j < hm.Size; j++ {
		if abort != nil && abort.Load() {
			return ErrAborted
		}
		for i := 0; i < hm.Size; i++ {
			wx, wz := hm.World(i, j)
			height, biome := g.sample(wx, wz)
			idx := hm.Index(i, j)

			info := biome.Info()
			color := info.Surface
			if height < g.SeaLevel {
				height = g.SeaLevel
				color = info.Water
			}
			hm.Heights[idx] = float32(height) + 1 // верхняя грань блока
			hm.Biomes[idx] = biome
			hm.Colors[idx] = color
		}
	}
	return nil
}
