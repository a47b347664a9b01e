package mesher

import (
	"github.com/annel0/chunkstream/internal/geom"
	"github.com/annel0/chunkstream/internal/world"
	"github.com/annel0/chunkstream/internal/world/block"
)

const (
	size   = world.SubchunkSize
	planes = size + 1
)

// Options параметры мешера
type Options struct {
	// MissingNeighborSolid трактует отсутствующего соседа как сплошной камень
	// вместо воздуха. По умолчанию выключено: грани на краю загруженного
	// мира рисуются сразу и пропадают после прихода соседа.
	MissingNeighborSolid bool

	// LightTolerance допустимая разница уровней света (0-15) при слиянии
	LightTolerance uint8
	// TintTolerance допустимая разница оттенка по каждому каналу при слиянии
	TintTolerance float32
}

// DefaultOptions параметры по умолчанию
func DefaultOptions() Options {
	return Options{
		LightTolerance: 1,
		TintTolerance:  0.02,
	}
}

// cell ячейка маски грани
type cell struct {
	set   bool
	id    block.BlockID
	light world.Light // свет ячейки по другую сторону грани
	tint  [3]float32
}

// matches проверяет, можно ли слить ячейку c с затравочной ячейкой seed
func (c *cell) matches(seed *cell, opts *Options) bool {
	if !c.set || c.id != seed.id {
		return false
	}
	if absDiff(c.light.Sky(), seed.light.Sky()) > opts.LightTolerance ||
		absDiff(c.light.R(), seed.light.R()) > opts.LightTolerance ||
		absDiff(c.light.G(), seed.light.G()) > opts.LightTolerance ||
		absDiff(c.light.B(), seed.light.B()) > opts.LightTolerance {
		return false
	}
	for i := 0; i < 3; i++ {
		d := c.tint[i] - seed.tint[i]
		if d > opts.TintTolerance || d < -opts.TintTolerance {
			return false
		}
	}
	return true
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// mask двумерная маска граней плоскости, индекс v*size+u
type mask [size * size]cell

// builder накапливает вершины для одного чанка
type builder struct {
	vol  *Volume
	opts Options
	out  geom.MeshData

	pos mask // грани, смотрящие в +ось (блок до плоскости)
	neg mask // грани, смотрящие в -ось (блок после плоскости)
}

// Build строит меш чанка по снимку. Детерминирован: одинаковый снимок
// даёт одинаковые массивы вершин.
func Build(vol *Volume, opts Options) geom.MeshData {
	b := &builder{vol: vol, opts: opts}
	for sy := 0; sy < world.SubchunkCount; sy++ {
		if vol.SubchunkEmpty(sy) {
			continue
		}
		for axis := 0; axis < 3; axis++ {
			for d := 0; d < planes; d++ {
				b.plane(sy, axis, d)
			}
		}
	}
	return b.out
}

// local переводит (координата по оси, u, v) в локальные координаты чанка.
// Базис (u, v) правый: X -> (Y, Z), Y -> (Z, X), Z -> (X, Y).
func local(sy, axis, p, u, v int) (x, y, z int) {
	base := sy * size
	switch axis {
	case 0:
		return p, base + u, v
	case 1:
		return v, base + p, u
	default:
		return u, base + v, p
	}
}

// plane заполняет маски граней плоскости d и сливает их. Грань блока
// принадлежит подчанку, в котором лежит блок: у плоскости 0 нет граней
// «до», у плоскости 16 нет граней «после», поэтому грани не дублируются.
func (b *builder) plane(sy, axis, d int) {
	anyFace := false
	for v := 0; v < size; v++ {
		for u := 0; u < size; u++ {
			i := v*size + u
			b.pos[i] = cell{}
			b.neg[i] = cell{}

			ax, ay, az := local(sy, axis, d-1, u, v)
			bx, by, bz := local(sy, axis, d, u, v)
			ida := b.vol.Block(ax, ay, az)
			idb := b.vol.Block(bx, by, bz)

			if d >= 1 && block.EmitsFace(ida, idb) {
				b.pos[i] = b.faceCell(ida, geom.FaceFor(axis, true), ax, az, b.vol.Light(bx, by, bz))
				anyFace = true
			}
			if d <= size-1 && block.EmitsFace(idb, ida) {
				b.neg[i] = b.faceCell(idb, geom.FaceFor(axis, false), bx, bz, b.vol.Light(ax, ay, az))
				anyFace = true
			}
		}
	}
	if !anyFace {
		return
	}
	b.merge(&b.pos, sy, axis, d, geom.FaceFor(axis, true))
	b.merge(&b.neg, sy, axis, d, geom.FaceFor(axis, false))
}

func (b *builder) faceCell(id block.BlockID, face geom.Face, x, z int, light world.Light) cell {
	c := cell{set: true, id: id, light: light, tint: [3]float32{1, 1, 1}}
	p := block.Get(id)
	if p.TintedFace(int(face)) {
		c.tint = b.vol.Tint(x, z, p.Tint)
	}
	return c
}

// merge жадно сливает маску в прямоугольники: сначала по u, затем по v
// на всю ширину
func (b *builder) merge(m *mask, sy, axis, d int, face geom.Face) {
	for v := 0; v < size; v++ {
		for u := 0; u < size; {
			seed := m[v*size+u]
			if !seed.set {
				u++
				continue
			}

			w := 1
			for u+w < size && m[v*size+u+w].matches(&seed, &b.opts) {
				w++
			}

			h := 1
		grow:
			for v+h < size {
				for k := 0; k < w; k++ {
					if !m[(v+h)*size+u+k].matches(&seed, &b.opts) {
						break grow
					}
				}
				h++
			}

			b.emit(m, sy, axis, d, face, u, v, w, h)

			for dv := 0; dv < h; dv++ {
				for du := 0; du < w; du++ {
					m[(v+dv)*size+u+du].set = false
				}
			}
			u += w
		}
	}
}

// emit добавляет квад прямоугольника [u, u+w) x [v, v+h) плоскости d.
// Свет в углах берётся из угловых ячеек и интерполируется по кваду.
func (b *builder) emit(m *mask, sy, axis, d int, face geom.Face, u, v, w, h int) {
	seed := &m[v*size+u]
	p := block.Get(seed.id)
	shade := face.Shade()
	color := [3]float32{seed.tint[0] * shade, seed.tint[1] * shade, seed.tint[2] * shade}
	tile := p.Tiles[face]

	corner := func(cu, cv, lu, lv int) geom.Vertex {
		lx, ly, lz := local(sy, axis, d, cu, cv)
		l := m[lv*size+lu].light
		return geom.Vertex{
			Pos: [3]float32{
				float32(b.vol.OriginX + lx),
				float32(ly),
				float32(b.vol.OriginZ + lz),
			},
			Sky:   float32(l.Sky()) / world.MaxLight,
			Block: [3]float32{float32(l.R()) / world.MaxLight, float32(l.G()) / world.MaxLight, float32(l.B()) / world.MaxLight},
			Color: color,
			Tile:  tile,
			Face:  face,
		}
	}

	u1, v1 := u+w, v+h
	c00 := corner(u, v, u, v)
	c10 := corner(u1, v, u1-1, v)
	c11 := corner(u1, v1, u1-1, v1-1)
	c01 := corner(u, v1, u, v1-1)

	var quad [4]geom.Vertex
	if face.Positive() {
		quad = [4]geom.Vertex{c00, c10, c11, c01}
	} else {
		quad = [4]geom.Vertex{c00, c01, c11, c10}
	}

	if p.Fluid {
		b.out.Fluid = geom.AppendQuad(b.out.Fluid, quad)
	} else {
		b.out.Solid = geom.AppendQuad(b.out.Solid, quad)
	}
}
