package world

import "github.com/annel0/chunkstream/internal/world/block"

// Light упакованное значение освещения вокселя:
//
//	биты 0-3   небесный свет
//	биты 4-7   красный канал блочного света
//	биты 8-11  зелёный канал
//	биты 12-15 синий канал
type Light uint16

// MaxLight максимальный уровень любого канала
const MaxLight = 15

// NewLight упаковывает каналы (значения больше 15 обрезаются)
func NewLight(sky, r, g, b uint8) Light {
	return Light(clampLevel(sky)) |
		Light(clampLevel(r))<<4 |
		Light(clampLevel(g))<<8 |
		Light(clampLevel(b))<<12
}

// Sky уровень небесного света
func (l Light) Sky() uint8 { return uint8(l & 0xF) }

// R красный канал блочного света
func (l Light) R() uint8 { return uint8(l>>4) & 0xF }

// G зелёный канал блочного света
func (l Light) G() uint8 { return uint8(l>>8) & 0xF }

// B синий канал блочного света
func (l Light) B() uint8 { return uint8(l>>12) & 0xF }

// BlockLevel максимальный из каналов блочного света
func (l Light) BlockLevel() uint8 {
	m := l.R()
	if g := l.G(); g > m {
		m = g
	}
	if b := l.B(); b > m {
		m = b
	}
	return m
}

// WithSky возвращает значение с заменённым небесным светом
func (l Light) WithSky(sky uint8) Light {
	return l&^0xF | Light(clampLevel(sky))
}

// WithBlock возвращает значение с заменёнными каналами блочного света
func (l Light) WithBlock(r, g, b uint8) Light {
	return NewLight(l.Sky(), r, g, b)
}

func clampLevel(v uint8) uint8 {
	if v > MaxLight {
		return MaxLight
	}
	return v
}

// FullSky свет открытого неба без блочного освещения
var FullSky = NewLight(MaxLight, 0, 0, 0)

// RecomputeLight пересчитывает небесный и блочный свет всего чанка.
// Небесный свет идёт сверху вниз по столбцу, ослабевая в жидкостях и
// листве; блочный свет распространяется от излучателей в пределах чанка.
func RecomputeLight(ch *Chunk) {
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			relightColumn(ch, x, z)
		}
	}
	propagateBlockLight(ch)
}

// relightColumn пересчитывает небесный свет одного столбца и сбрасывает блочный
func relightColumn(ch *Chunk, x, z int) {
	level := uint8(MaxLight)
	for y := ChunkHeight - 1; y >= 0; y-- {
		idx := Index(x, y, z)
		p := block.Get(ch.Blocks[idx])
		switch {
		case p.Opaque:
			level = 0
		case p.Fluid:
			level = attenuate(level, 2)
		case p.Transparent && p.Tint != block.TintNone:
			level = attenuate(level, 1)
		}
		ch.Light[idx] = NewLight(level, 0, 0, 0)
	}
}

func attenuate(level, by uint8) uint8 {
	if level <= by {
		return 0
	}
	return level - by
}

// propagateBlockLight заливка в ширину от излучающих блоков
func propagateBlockLight(ch *Chunk) {
	var queue []int32
	for idx, id := range ch.Blocks {
		p := block.Get(id)
		if !p.Emits() {
			continue
		}
		ch.Light[idx] = ch.Light[idx].WithBlock(p.Emission[0], p.Emission[1], p.Emission[2])
		queue = append(queue, int32(idx))
	}

	for len(queue) > 0 {
		idx := int(queue[0])
		queue = queue[1:]

		src := ch.Light[idx]
		r, g, b := attenuate(src.R(), 1), attenuate(src.G(), 1), attenuate(src.B(), 1)
		if r|g|b == 0 {
			continue
		}

		x, y, z := idx&0xF, idx>>8, (idx>>4)&0xF
		for _, d := range [6][3]int{{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1}} {
			nx, ny, nz := x+d[0], y+d[1], z+d[2]
			if nx < 0 || nx >= ChunkSize || nz < 0 || nz >= ChunkSize || ny < 0 || ny >= ChunkHeight {
				continue
			}
			n := Index(nx, ny, nz)
			if block.Get(ch.Blocks[n]).Opaque {
				continue
			}
			cur := ch.Light[n]
			nr, ng, nb := maxU8(cur.R(), r), maxU8(cur.G(), g), maxU8(cur.B(), b)
			if nr == cur.R() && ng == cur.G() && nb == cur.B() {
				continue
			}
			ch.Light[n] = cur.WithBlock(nr, ng, nb)
			queue = append(queue, int32(n))
		}
	}
}

func maxU8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}
