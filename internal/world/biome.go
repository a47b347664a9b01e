package world

import "github.com/annel0/chunkstream/internal/world/block"

// Biome тип биома столбца
type Biome uint8

const (
	BiomePlains Biome = iota
	BiomeForest
	BiomeDesert
	BiomeMountains
	BiomeOcean
	BiomeTundra

	biomeCount
)

// BiomeInfo цвета биома (RGB 0-1)
type BiomeInfo struct {
	Name    string
	Grass   [3]float32
	Foliage [3]float32
	Water   [3]float32
	Surface [3]float32 // средний цвет поверхности для дальних LOD
}

var biomes = [biomeCount]BiomeInfo{
	BiomePlains: {
		Name:    "plains",
		Grass:   [3]float32{0.55, 0.74, 0.33},
		Foliage: [3]float32{0.47, 0.67, 0.25},
		Water:   [3]float32{0.25, 0.46, 0.89},
		Surface: [3]float32{0.45, 0.62, 0.28},
	},
	BiomeForest: {
		Name:    "forest",
		Grass:   [3]float32{0.47, 0.69, 0.29},
		Foliage: [3]float32{0.35, 0.58, 0.20},
		Water:   [3]float32{0.24, 0.42, 0.85},
		Surface: [3]float32{0.28, 0.46, 0.18},
	},
	BiomeDesert: {
		Name:    "desert",
		Grass:   [3]float32{0.75, 0.72, 0.42},
		Foliage: [3]float32{0.68, 0.64, 0.36},
		Water:   [3]float32{0.26, 0.50, 0.80},
		Surface: [3]float32{0.86, 0.80, 0.56},
	},
	BiomeMountains: {
		Name:    "mountains",
		Grass:   [3]float32{0.54, 0.71, 0.49},
		Foliage: [3]float32{0.44, 0.60, 0.40},
		Water:   [3]float32{0.22, 0.40, 0.80},
		Surface: [3]float32{0.52, 0.52, 0.52},
	},
	BiomeOcean: {
		Name:    "ocean",
		Grass:   [3]float32{0.55, 0.74, 0.33},
		Foliage: [3]float32{0.47, 0.67, 0.25},
		Water:   [3]float32{0.15, 0.30, 0.75},
		Surface: [3]float32{0.15, 0.30, 0.70},
	},
	BiomeTundra: {
		Name:    "tundra",
		Grass:   [3]float32{0.50, 0.70, 0.60},
		Foliage: [3]float32{0.38, 0.56, 0.45},
		Water:   [3]float32{0.22, 0.34, 0.76},
		Surface: [3]float32{0.92, 0.94, 0.97},
	},
}

// Info возвращает описание биома; неизвестный биом трактуется как равнина
func (b Biome) Info() *BiomeInfo {
	if b >= biomeCount {
		return &biomes[BiomePlains]
	}
	return &biomes[b]
}

func (b Biome) String() string {
	return b.Info().Name
}

// Tint цвет окраски по биому для вида окраски блока
func (b Biome) Tint(kind block.TintKind) [3]float32 {
	info := b.Info()
	switch kind {
	case block.TintGrass:
		return info.Grass
	case block.TintFoliage:
		return info.Foliage
	case block.TintWater:
		return info.Water
	default:
		return [3]float32{1, 1, 1}
	}
}
