package world

import (
	"fmt"

	"github.com/annel0/chunkstream/internal/vec"
)

// Размеры чанка
const (
	ChunkSize     = 16
	ChunkHeight   = 256
	SubchunkSize  = 16
	SubchunkCount = ChunkHeight / SubchunkSize
	ColumnCount   = ChunkSize * ChunkSize
	ChunkVolume   = ColumnCount * ChunkHeight
)

// Направления соседей по горизонтали
const (
	NeighborPosX = iota
	NeighborNegX
	NeighborPosZ
	NeighborNegZ
)

// ChunkCoord координаты чанка (cx, cz)
type ChunkCoord struct {
	X, Z int32
}

// CoordFromBlock координаты чанка, содержащего блок (wx, wz)
func CoordFromBlock(wx, wz int) ChunkCoord {
	c := vec.Vec2{X: wx, Y: wz}.ToChunkCoords()
	return ChunkCoord{X: int32(c.X), Z: int32(c.Y)}
}

// CoordFromPosition координаты чанка, содержащего мировую точку
func CoordFromPosition(p vec.Vec3Float) ChunkCoord {
	b := p.Block()
	return CoordFromBlock(b.X, b.Z)
}

// Origin мировые координаты блока (0, 0) чанка
func (c ChunkCoord) Origin() (int, int) {
	return int(c.X) * ChunkSize, int(c.Z) * ChunkSize
}

// Center мировой центр чанка на плоскости XZ
func (c ChunkCoord) Center() vec.Vec2Float {
	x, z := c.Origin()
	return vec.Vec2Float{X: float64(x) + ChunkSize/2, Y: float64(z) + ChunkSize/2}
}

// Neighbor соседний чанк в направлении dir
func (c ChunkCoord) Neighbor(dir int) ChunkCoord {
	switch dir {
	case NeighborPosX:
		return ChunkCoord{X: c.X + 1, Z: c.Z}
	case NeighborNegX:
		return ChunkCoord{X: c.X - 1, Z: c.Z}
	case NeighborPosZ:
		return ChunkCoord{X: c.X, Z: c.Z + 1}
	default:
		return ChunkCoord{X: c.X, Z: c.Z - 1}
	}
}

// DistanceSq квадрат расстояния в чанках
func (c ChunkCoord) DistanceSq(o ChunkCoord) int64 {
	dx := int64(c.X) - int64(o.X)
	dz := int64(c.Z) - int64(o.Z)
	return dx*dx + dz*dz
}

// Vec2 координаты как vec.Vec2
func (c ChunkCoord) Vec2() vec.Vec2 {
	return vec.Vec2{X: int(c.X), Y: int(c.Z)}
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Z)
}
