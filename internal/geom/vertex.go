package geom

import (
	"encoding/binary"
	"fmt"
	"math"
)

// VertexStride размер вершины в GPU буфере в байтах
const VertexStride = 44

// Vertex формат вершины для проходов solid и fluid.
// Раскладка в буфере (little endian):
//
//	0  Pos   3 x float32
//	12 Sky   float32 (0-1)
//	16 Block 3 x float32 (0-1, RGB)
//	28 Color 3 x float32 (оттенок грани)
//	40 Tile  uint16 (тайл атласа)
//	42 Face  uint8
//	43 padding
type Vertex struct {
	Pos   [3]float32
	Sky   float32
	Block [3]float32
	Color [3]float32
	Tile  uint16
	Face  Face
}

// MeshData результат мешинга: два плоских массива вершин
type MeshData struct {
	Solid []Vertex
	Fluid []Vertex
}

// Empty сообщает, что мешинг не дал геометрии
func (m MeshData) Empty() bool {
	return len(m.Solid) == 0 && len(m.Fluid) == 0
}

// VertexCount общее количество вершин
func (m MeshData) VertexCount() int {
	return len(m.Solid) + len(m.Fluid)
}

// EncodeVertices дописывает бинарное представление вершин в dst
func EncodeVertices(dst []byte, vs []Vertex) []byte {
	start := len(dst)
	need := start + len(vs)*VertexStride
	if cap(dst) < need {
		grown := make([]byte, start, need)
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:need]

	le := binary.LittleEndian
	off := start
	for i := range vs {
		v := &vs[i]
		b := dst[off : off+VertexStride]
		le.PutUint32(b[0:], math.Float32bits(v.Pos[0]))
		le.PutUint32(b[4:], math.Float32bits(v.Pos[1]))
		le.PutUint32(b[8:], math.Float32bits(v.Pos[2]))
		le.PutUint32(b[12:], math.Float32bits(v.Sky))
		le.PutUint32(b[16:], math.Float32bits(v.Block[0]))
		le.PutUint32(b[20:], math.Float32bits(v.Block[1]))
		le.PutUint32(b[24:], math.Float32bits(v.Block[2]))
		le.PutUint32(b[28:], math.Float32bits(v.Color[0]))
		le.PutUint32(b[32:], math.Float32bits(v.Color[1]))
		le.PutUint32(b[36:], math.Float32bits(v.Color[2]))
		le.PutUint16(b[40:], v.Tile)
		b[42] = byte(v.Face)
		b[43] = 0
		off += VertexStride
	}
	return dst
}

// DecodeVertices разбирает бинарное представление вершин
func DecodeVertices(b []byte) ([]Vertex, error) {
	if len(b)%VertexStride != 0 {
		return nil, fmt.Errorf("длина %d не кратна размеру вершины %d", len(b), VertexStride)
	}

	le := binary.LittleEndian
	f := func(p []byte) float32 { return math.Float32frombits(le.Uint32(p)) }

	out := make([]Vertex, len(b)/VertexStride)
	for i := range out {
		p := b[i*VertexStride:]
		out[i] = Vertex{
			Pos:   [3]float32{f(p[0:]), f(p[4:]), f(p[8:])},
			Sky:   f(p[12:]),
			Block: [3]float32{f(p[16:]), f(p[20:]), f(p[24:])},
			Color: [3]float32{f(p[28:]), f(p[32:]), f(p[36:])},
			Tile:  le.Uint16(p[40:]),
			Face:  Face(p[42]),
		}
	}
	return out, nil
}

// AppendQuad дописывает прямоугольник из четырёх вершин (против часовой
// стрелки, если смотреть снаружи) как два треугольника
func AppendQuad(dst []Vertex, q [4]Vertex) []Vertex {
	return append(dst, q[0], q[1], q[2], q[0], q[2], q[3])
}
