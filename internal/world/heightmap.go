package world

// Heightmap упрощённая сетка рельефа для дальних LOD: высоты, биомы и
// средние цвета поверхности в узлах решётки.
type Heightmap struct {
	OriginX int // мировая X координата узла (0, 0)
	OriginZ int // мировая Z координата узла (0, 0)
	Step    int // блоков между соседними узлами
	Size    int // узлов по каждой стороне

	Heights []float32
	Biomes  []Biome
	Colors  [][3]float32
}

// NewHeightmap создаёт сетку size x size узлов
func NewHeightmap(originX, originZ, step, size int) *Heightmap {
	n := size * size
	return &Heightmap{
		OriginX: originX,
		OriginZ: originZ,
		Step:    step,
		Size:    size,
		Heights: make([]float32, n),
		Biomes:  make([]Biome, n),
		Colors:  make([][3]float32, n),
	}
}

// Index индекс узла (i по X, j по Z)
func (h *Heightmap) Index(i, j int) int {
	return j*h.Size + i
}

// HeightAt высота узла с ограничением координат краями сетки
func (h *Heightmap) HeightAt(i, j int) float32 {
	return h.Heights[h.Index(clampInt(i, 0, h.Size-1), clampInt(j, 0, h.Size-1))]
}

// World мировые координаты узла
func (h *Heightmap) World(i, j int) (int, int) {
	return h.OriginX + i*h.Step, h.OriginZ + j*h.Step
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
