package lod

import (
	"math"

	"github.com/annel0/chunkstream/internal/geom"
	"github.com/annel0/chunkstream/internal/world"
)

// SkirtDepth глубина юбки региона в блоках
func SkirtDepth(level int) float32 {
	return float32(int(4) << uint(level))
}

// BuildRegion строит гладкую поверхность по сетке высот и четыре юбки по
// краям, закрывающие щели на стыке с соседними уровнями. Освещение
// запекается в цвет по нормали из разностей высот.
func BuildRegion(grid *world.Heightmap, level int) []geom.Vertex {
	cells := grid.Size - 1
	if cells < 1 {
		return nil
	}
	out := make([]geom.Vertex, 0, cells*cells*6+4*cells*6)

	node := func(i, j int) geom.Vertex {
		wx, wz := grid.World(i, j)
		c := grid.Colors[grid.Index(i, j)]
		shade := surfaceShade(grid, i, j)
		return geom.Vertex{
			Pos:   [3]float32{float32(wx), grid.HeightAt(i, j), float32(wz)},
			Sky:   1,
			Color: [3]float32{c[0] * shade, c[1] * shade, c[2] * shade},
			Face:  geom.FacePosY,
		}
	}

	for j := 0; j < cells; j++ {
		for i := 0; i < cells; i++ {
			out = geom.AppendQuad(out, [4]geom.Vertex{
				node(i, j), node(i, j+1), node(i+1, j+1), node(i+1, j),
			})
		}
	}

	depth := SkirtDepth(level)
	skirt := func(i0, j0, i1, j1 int, face geom.Face) {
		a, b := node(i0, j0), node(i1, j1)
		shade := face.Shade()
		a.Face, b.Face = face, face
		base := grid.Colors[grid.Index(i0, j0)]
		a.Color = [3]float32{base[0] * shade, base[1] * shade, base[2] * shade}
		base = grid.Colors[grid.Index(i1, j1)]
		b.Color = [3]float32{base[0] * shade, base[1] * shade, base[2] * shade}
		a0, b0 := a, b
		a0.Pos[1] -= depth
		b0.Pos[1] -= depth

		// a и b упорядочены по возрастанию координаты вдоль края
		var quad [4]geom.Vertex
		switch face {
		case geom.FaceNegZ, geom.FaceNegX:
			quad = [4]geom.Vertex{a0, a, b, b0}
		default:
			quad = [4]geom.Vertex{a0, b0, b, a}
		}
		if face == geom.FacePosX || face == geom.FaceNegX {
			quad[1], quad[3] = quad[3], quad[1]
		}
		out = geom.AppendQuad(out, quad)
	}

	for k := 0; k < cells; k++ {
		skirt(k, 0, k+1, 0, geom.FaceNegZ)
		skirt(k, cells, k+1, cells, geom.FacePosZ)
		skirt(0, k, 0, k+1, geom.FaceNegX)
		skirt(cells, k, cells, k+1, geom.FacePosX)
	}
	return out
}

// surfaceShade затенение узла по вертикальной составляющей нормали
func surfaceShade(grid *world.Heightmap, i, j int) float32 {
	step := float64(grid.Step)
	dx := float64(grid.HeightAt(i+1, j)-grid.HeightAt(i-1, j)) / (2 * step)
	dz := float64(grid.HeightAt(i, j+1)-grid.HeightAt(i, j-1)) / (2 * step)
	ny := 1 / math.Sqrt(dx*dx+1+dz*dz)
	return float32(0.55 + 0.45*ny)
}
