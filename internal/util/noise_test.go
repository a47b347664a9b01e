package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoise_Deterministic(t *testing.T) {
	a := NewNoise(42)
	b := NewNoise(42)
	for i := 0; i < 20; i++ {
		x, y := float64(i)*0.37, float64(i)*-0.91
		assert.Equal(t, a.Noise2D(x, y), b.Noise2D(x, y), "Одинаковый сид должен давать одинаковый шум")
	}
}

func TestNoise_Range(t *testing.T) {
	n := NewNoise(7)
	for i := -50; i < 50; i++ {
		v := n.Octaves(float64(i)*0.13, float64(i)*0.07, 4, 0.5)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestHash2(t *testing.T) {
	assert.Equal(t, Hash2(1, 3, -4), Hash2(1, 3, -4))
	assert.NotEqual(t, Hash2(1, 3, -4), Hash2(2, 3, -4))
	for x := -10; x < 10; x++ {
		v := Hash2(99, x, x*3)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}
