package vec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVec2_ChunkCoordsNegative(t *testing.T) {
	assert.Equal(t, Vec2{X: 0, Y: 0}, Vec2{X: 15, Y: 0}.ToChunkCoords())
	assert.Equal(t, Vec2{X: -1, Y: -1}, Vec2{X: -1, Y: -16}.ToChunkCoords(), "Отрицательные координаты округляются вниз")
	assert.Equal(t, Vec2{X: 15, Y: 0}, Vec2{X: -1, Y: -16}.LocalInChunk())
}

func TestVec2_RegionCoords(t *testing.T) {
	assert.Equal(t, Vec2{X: 1, Y: -1}, Vec2{X: 3, Y: -1}.ToRegionCoords(1))
	assert.Equal(t, Vec2{X: -1, Y: 0}, Vec2{X: -8, Y: 7}.ToRegionCoords(3))
}

func TestVec2Float_Dot(t *testing.T) {
	a := Vec2Float{X: 1, Y: 0}
	assert.Equal(t, 0.0, a.Dot(Vec2Float{X: 0, Y: 5}))
	assert.Equal(t, -2.0, a.Dot(Vec2Float{X: -2, Y: 0}))
	assert.Equal(t, 5.0, Vec2Float{X: 3, Y: 4}.Length())

	cos, ok := Vec2Float{X: 2, Y: 2}.Cos(Vec2Float{X: 0, Y: 3})
	assert.True(t, ok)
	assert.InDelta(t, math.Sqrt2/2, cos, 1e-9)
	_, ok = a.Cos(Vec2Float{})
	assert.False(t, ok, "Угол с нулевым вектором не определён")
}

func TestVec3Float_BlockAndXZ(t *testing.T) {
	p := Vec3Float{X: -0.5, Y: 70.2, Z: 31.9}
	assert.Equal(t, Vec3{X: -1, Y: 70, Z: 31}, p.Block())
	assert.Equal(t, Vec2Float{X: -0.5, Y: 31.9}, p.XZ())
	assert.Equal(t, Vec2{X: -1, Y: 31}, p.Block().XZ())
}
