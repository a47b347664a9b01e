package vec

import "math"

// epsilon длина, ниже которой вектор считается нулевым
const epsilon = 1e-9

// Vec2Float точка или направление на плоскости XZ мира
type Vec2Float struct {
	X, Y float64
}

func (v Vec2Float) Sub(other Vec2Float) Vec2Float {
	return Vec2Float{X: v.X - other.X, Y: v.Y - other.Y}
}

func (v Vec2Float) Mul(scalar float64) Vec2Float {
	return Vec2Float{X: v.X * scalar, Y: v.Y * scalar}
}

func (v Vec2Float) Dot(other Vec2Float) float64 {
	return v.X*other.X + v.Y*other.Y
}

func (v Vec2Float) LengthSq() float64 {
	return v.Dot(v)
}

func (v Vec2Float) Length() float64 {
	return math.Sqrt(v.LengthSq())
}

// DistanceTo расстояние до другой точки
func (v Vec2Float) DistanceTo(other Vec2Float) float64 {
	return other.Sub(v).Length()
}

// Cos косинус угла между векторами; ok=false, если один из них нулевой
func (v Vec2Float) Cos(other Vec2Float) (cos float64, ok bool) {
	a, b := v.Length(), other.Length()
	if a < epsilon || b < epsilon {
		return 0, false
	}
	return v.Dot(other) / (a * b), true
}
