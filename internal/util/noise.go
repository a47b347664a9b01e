package util

import (
	"math"

	"github.com/aquilax/go-perlin"
)

// Noise детерминированный генератор шума Перлина. Экземпляр не хранит
// изменяемого состояния после создания и безопасен для параллельного чтения.
type Noise struct {
	perlin *perlin.Perlin
	seed   int64
}

// NewNoise создаёт генератор шума с указанным сидом
func NewNoise(seed int64) *Noise {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &Noise{
		perlin: perlin.NewPerlin(alpha, beta, n, seed),
		seed:   seed,
	}
}

// Seed возвращает сид генератора
func (n *Noise) Seed() int64 {
	return n.seed
}

// Noise2D возвращает значение шума для указанных координат (от 0 до 1)
func (n *Noise) Noise2D(x, y float64) float64 {
	// Получаем значение шума (от -1 до 1)
	v := n.perlin.Noise2D(x, y)

	// Преобразуем в диапазон от 0 до 1
	return clamp01((v + 1.0) / 2.0)
}

// Octaves суммирует несколько октав шума с убывающей амплитудой (результат от 0 до 1)
func (n *Noise) Octaves(x, y float64, octaves int, persistence float64) float64 {
	total, amplitude, frequency, norm := 0.0, 1.0, 1.0, 0.0
	for i := 0; i < octaves; i++ {
		total += n.Noise2D(x*frequency, y*frequency) * amplitude
		norm += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	if norm == 0 {
		return 0
	}
	return total / norm
}

// Hash2 возвращает детерминированное псевдослучайное значение [0, 1) для целой точки
func Hash2(seed int64, x, z int) float64 {
	h := uint64(seed) ^ uint64(int64(x))*0x9E3779B97F4A7C15 ^ uint64(int64(z))*0xC2B2AE3D27D4EB4F
	h ^= h >> 33
	h *= 0xFF51AFD7ED558CCD
	h ^= h >> 33
	h *= 0xC4CEB9FE1A85EC53
	h ^= h >> 33
	return float64(h>>11) / float64(1<<53)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
