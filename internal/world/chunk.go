package world

import (
	"sync"

	"github.com/annel0/chunkstream/internal/arena"
	"github.com/annel0/chunkstream/internal/geom"
	"github.com/annel0/chunkstream/internal/world/block"
)

// ChunkMesh геометрия чанка в арене и ожидающие загрузки буферы.
// Аллокации трогает только поток, владеющий GPU; Pending* пишет
// воркер мешинга до перехода в mesh_ready.
type ChunkMesh struct {
	Solid arena.Allocation
	Fluid arena.Allocation

	PendingSolid []geom.Vertex
	PendingFluid []geom.Vertex
}

// HasGeometry сообщает, загружена ли хоть одна аллокация
func (m *ChunkMesh) HasGeometry() bool {
	return !m.Solid.IsZero() || !m.Fluid.IsZero()
}

// ClearPending освобождает ожидающие буферы
func (m *ChunkMesh) ClearPending() {
	m.PendingSolid = nil
	m.PendingFluid = nil
}

// Chunk столбец мира 16x256x16 блоков
type Chunk struct {
	Lifecycle

	Coord ChunkCoord

	// Blocks и Light индексируются через Index(x, y, z)
	Blocks []block.BlockID
	Light  []Light

	Biomes  [ColumnCount]Biome
	Heights [ColumnCount]int16 // высота верхнего непустого блока, -1 для пустого столбца

	Mesh ChunkMesh

	// Mu защищает данные вокселей от правок основного потока во время снимка
	Mu sync.RWMutex
}

// NewChunk создаёт пустой чанк (воздух, полный небесный свет)
func NewChunk(coord ChunkCoord) *Chunk {
	ch := &Chunk{
		Coord:  coord,
		Blocks: make([]block.BlockID, ChunkVolume),
		Light:  make([]Light, ChunkVolume),
	}
	ch.Reset()
	return ch
}

// Index индекс вокселя в плоских массивах. Слои по Y идут подряд,
// поэтому подчанк занимает непрерывный диапазон.
func Index(x, y, z int) int {
	return y<<8 | z<<4 | x
}

// ColumnIndex индекс столбца в Biomes/Heights
func ColumnIndex(x, z int) int {
	return z<<4 | x
}

// InBounds проверяет локальные координаты
func InBounds(x, y, z int) bool {
	return x >= 0 && x < ChunkSize && z >= 0 && z < ChunkSize && y >= 0 && y < ChunkHeight
}

// Block возвращает блок по локальным координатам; вне чанка - воздух
func (c *Chunk) Block(x, y, z int) block.BlockID {
	if !InBounds(x, y, z) {
		return block.AirBlockID
	}
	return c.Blocks[Index(x, y, z)]
}

// SetBlock записывает блок без блокировок и пересчёта света.
// Правки из основного потока идут через стример, который держит Mu.
func (c *Chunk) SetBlock(x, y, z int, id block.BlockID) {
	if !InBounds(x, y, z) {
		return
	}
	c.Blocks[Index(x, y, z)] = id
}

// LightAt свет по локальным координатам; выше чанка - открытое небо
func (c *Chunk) LightAt(x, y, z int) Light {
	if y >= ChunkHeight {
		return FullSky
	}
	if !InBounds(x, y, z) {
		return 0
	}
	return c.Light[Index(x, y, z)]
}

// SetLight записывает свет по локальным координатам
func (c *Chunk) SetLight(x, y, z int, l Light) {
	if !InBounds(x, y, z) {
		return
	}
	c.Light[Index(x, y, z)] = l
}

// Biome биом столбца
func (c *Chunk) Biome(x, z int) Biome {
	return c.Biomes[ColumnIndex(x, z)]
}

// Height высота столбца
func (c *Chunk) Height(x, z int) int {
	return int(c.Heights[ColumnIndex(x, z)])
}

// RecomputeHeights пересчитывает высоты всех столбцов
func (c *Chunk) RecomputeHeights() {
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			c.recomputeColumnHeight(x, z)
		}
	}
}

func (c *Chunk) recomputeColumnHeight(x, z int) {
	h := int16(-1)
	for y := ChunkHeight - 1; y >= 0; y-- {
		if c.Blocks[Index(x, y, z)] != block.AirBlockID {
			h = int16(y)
			break
		}
	}
	c.Heights[ColumnIndex(x, z)] = h
}

// SubchunkEmpty сообщает, что подчанк sy состоит только из воздуха
func (c *Chunk) SubchunkEmpty(sy int) bool {
	start := Index(0, sy*SubchunkSize, 0)
	end := Index(0, (sy+1)*SubchunkSize, 0)
	for _, id := range c.Blocks[start:end] {
		if id != block.AirBlockID {
			return false
		}
	}
	return true
}

// Reset очищает данные вокселей перед повторной генерацией
func (c *Chunk) Reset() {
	for i := range c.Blocks {
		c.Blocks[i] = block.AirBlockID
	}
	for i := range c.Light {
		c.Light[i] = FullSky
	}
	for i := range c.Heights {
		c.Heights[i] = -1
		c.Biomes[i] = BiomePlains
	}
}

// ApplyEdit записывает блок и обновляет высоту и освещение.
// Вызывающий держит Mu на запись.
func (c *Chunk) ApplyEdit(x, y, z int, id block.BlockID) bool {
	if !InBounds(x, y, z) || c.Blocks[Index(x, y, z)] == id {
		return false
	}
	c.Blocks[Index(x, y, z)] = id
	c.recomputeColumnHeight(x, z)
	RecomputeLight(c)
	return true
}
