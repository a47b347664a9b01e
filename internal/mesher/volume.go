package mesher

import (
	"github.com/annel0/chunkstream/internal/world"
	"github.com/annel0/chunkstream/internal/world/block"
)

// Ширина снимка по X и Z: чанк плюс по одному столбцу от каждого соседа
const volSize = world.ChunkSize + 2

// Volume снимок чанка с граничными полосами четырёх соседей.
// Мешер работает только со снимком, поэтому правки основного потока
// после снимка не влияют на результат.
type Volume struct {
	Coord   world.ChunkCoord
	OriginX int
	OriginZ int

	blocks []block.BlockID
	light  []world.Light

	biomes [volSize * volSize]world.Biome
	known  [volSize * volSize]bool // столбец есть в снимке (для усреднения оттенка)

	empty [world.SubchunkCount]bool
}

// vidx индекс в снимке; x и z в диапазоне -1..16
func vidx(x, y, z int) int {
	return (y*volSize+(z+1))*volSize + (x + 1)
}

// cidx индекс столбца снимка
func cidx(x, z int) int {
	return (z+1)*volSize + (x + 1)
}

// neighborUsable сообщает, можно ли читать данные соседа
func neighborUsable(n *world.Chunk) bool {
	return n != nil && n.State().HasData()
}

// NewVolume копирует чанк и граничные полосы соседей под их блокировками
// чтения. Отсутствующий сосед (nil или ещё без данных) заполняется
// воздухом, либо камнем при opts.MissingNeighborSolid.
func NewVolume(ch *world.Chunk, neighbors [4]*world.Chunk, opts Options) *Volume {
	v := &Volume{
		Coord:  ch.Coord,
		blocks: make([]block.BlockID, volSize*volSize*world.ChunkHeight),
		light:  make([]world.Light, volSize*volSize*world.ChunkHeight),
	}
	v.OriginX, v.OriginZ = ch.Coord.Origin()

	fillID, fillLight := block.AirBlockID, world.FullSky
	if opts.MissingNeighborSolid {
		fillID, fillLight = block.StoneBlockID, world.Light(0)
	}
	for i := range v.blocks {
		v.blocks[i] = fillID
		v.light[i] = fillLight
	}

	ch.Mu.RLock()
	for y := 0; y < world.ChunkHeight; y++ {
		for z := 0; z < world.ChunkSize; z++ {
			src := world.Index(0, y, z)
			dst := vidx(0, y, z)
			copy(v.blocks[dst:dst+world.ChunkSize], ch.Blocks[src:src+world.ChunkSize])
			copy(v.light[dst:dst+world.ChunkSize], ch.Light[src:src+world.ChunkSize])
		}
	}
	for z := 0; z < world.ChunkSize; z++ {
		for x := 0; x < world.ChunkSize; x++ {
			v.biomes[cidx(x, z)] = ch.Biome(x, z)
			v.known[cidx(x, z)] = true
		}
	}
	ch.Mu.RUnlock()

	for dir, n := range neighbors {
		if !neighborUsable(n) {
			continue
		}
		v.copyStrip(dir, n)
	}

	for sy := 0; sy < world.SubchunkCount; sy++ {
		v.empty[sy] = v.scanEmpty(sy)
	}
	return v
}

// copyStrip копирует граничный столбец соседа, прилегающий к чанку
func (v *Volume) copyStrip(dir int, n *world.Chunk) {
	// (sx, sz) - координаты в соседе, (dx, dz) - в снимке
	var cells [world.ChunkSize][4]int
	for i := 0; i < world.ChunkSize; i++ {
		switch dir {
		case world.NeighborPosX:
			cells[i] = [4]int{0, i, world.ChunkSize, i}
		case world.NeighborNegX:
			cells[i] = [4]int{world.ChunkSize - 1, i, -1, i}
		case world.NeighborPosZ:
			cells[i] = [4]int{i, 0, i, world.ChunkSize}
		default:
			cells[i] = [4]int{i, world.ChunkSize - 1, i, -1}
		}
	}

	n.Mu.RLock()
	defer n.Mu.RUnlock()

	for _, c := range cells {
		sx, sz, dx, dz := c[0], c[1], c[2], c[3]
		for y := 0; y < world.ChunkHeight; y++ {
			src := world.Index(sx, y, sz)
			dst := vidx(dx, y, dz)
			v.blocks[dst] = n.Blocks[src]
			v.light[dst] = n.Light[src]
		}
		v.biomes[cidx(dx, dz)] = n.Biome(sx, sz)
		v.known[cidx(dx, dz)] = true
	}
}

func (v *Volume) scanEmpty(sy int) bool {
	for y := sy * world.SubchunkSize; y < (sy+1)*world.SubchunkSize; y++ {
		for z := 0; z < world.ChunkSize; z++ {
			row := vidx(0, y, z)
			for _, id := range v.blocks[row : row+world.ChunkSize] {
				if id != block.AirBlockID {
					return false
				}
			}
		}
	}
	return true
}

// SubchunkEmpty сообщает, что подчанк чанка состоит только из воздуха
func (v *Volume) SubchunkEmpty(sy int) bool {
	return v.empty[sy]
}

// Block блок снимка; ниже мира - бедрок, выше - воздух
func (v *Volume) Block(x, y, z int) block.BlockID {
	if y < 0 {
		return block.BedrockBlockID
	}
	if y >= world.ChunkHeight {
		return block.AirBlockID
	}
	return v.blocks[vidx(x, y, z)]
}

// Light свет снимка; выше мира - открытое небо
func (v *Volume) Light(x, y, z int) world.Light {
	if y < 0 {
		return 0
	}
	if y >= world.ChunkHeight {
		return world.FullSky
	}
	return v.light[vidx(x, y, z)]
}

// Tint средний цвет окраски по 3x3 соседним столбцам (неизвестные
// столбцы пропускаются)
func (v *Volume) Tint(x, z int, kind block.TintKind) [3]float32 {
	var sum [3]float32
	n := 0
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			cx, cz := x+dx, z+dz
			if cx < -1 || cx > world.ChunkSize || cz < -1 || cz > world.ChunkSize {
				continue
			}
			if !v.known[cidx(cx, cz)] {
				continue
			}
			c := v.biomes[cidx(cx, cz)].Tint(kind)
			sum[0] += c[0]
			sum[1] += c[1]
			sum[2] += c[2]
			n++
		}
	}
	if n == 0 {
		return [3]float32{1, 1, 1}
	}
	inv := 1 / float32(n)
	return [3]float32{sum[0] * inv, sum[1] * inv, sum[2] * inv}
}
