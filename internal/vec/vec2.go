package vec

import "math"

// Vec2 представляет целочисленные координаты на плоскости XZ мира
// (Y хранит мировую координату Z).
type Vec2 struct {
	X, Y int
}

// ToChunkCoords преобразует координаты блока в координаты чанка
func (v Vec2) ToChunkCoords() Vec2 {
	return Vec2{X: v.X >> 4, Y: v.Y >> 4} // Деление на 16 с округлением вниз
}

// ToRegionCoords преобразует координаты чанка в координаты региона уровня level
func (v Vec2) ToRegionCoords(level int) Vec2 {
	return Vec2{X: v.X >> level, Y: v.Y >> level}
}

// LocalInChunk возвращает локальные координаты внутри чанка
func (v Vec2) LocalInChunk() Vec2 {
	return Vec2{X: v.X & 0xF, Y: v.Y & 0xF} // Модуль 16
}

// Add складывает два вектора
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// DistanceSq возвращает квадрат расстояния
func (v Vec2) DistanceSq(other Vec2) int {
	dx := v.X - other.X
	dy := v.Y - other.Y
	return dx*dx + dy*dy
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec2) DistanceTo(other Vec2) float64 {
	return math.Sqrt(float64(v.DistanceSq(other)))
}
