package jobs

import (
	"fmt"
	"math"

	"github.com/annel0/chunkstream/internal/vec"
)

// Kind тип задания
type Kind uint8

const (
	KindGenerate Kind = iota
	KindMesh
	KindUpload
)

// MaxLevel самый грубый уровень детализации
const MaxLevel = 3

func (k Kind) String() string {
	switch k {
	case KindGenerate:
		return "generate"
	case KindMesh:
		return "mesh"
	case KindUpload:
		return "upload"
	default:
		return "unknown"
	}
}

// Job задание конвейера. Token фиксируется при постановке в очередь и
// сверяется с живым токеном цели перед работой и перед фиксацией результата.
type Job struct {
	Kind     Kind
	Level    uint8 // 0 - полная детализация, 1..3 - уровни LOD
	X, Z     int32 // координаты чанка или региона
	Priority uint64
	Token    uint64

	seq uint64
}

func (j Job) String() string {
	return fmt.Sprintf("%s L%d (%d,%d) prio=%d token=%d", j.Kind, j.Level, j.X, j.Z, j.Priority, j.Token)
}

const (
	levelShift    = 56
	distanceMask  = uint64(1)<<levelShift - 1
	distanceScale = 256 // 8 бит дробной части
)

// PriorityKey кодирует приоритет: старшие 8 бит - (maxLevel - level), чтобы
// грубые уровни шли раньше; младшие 56 бит - взвешенный квадрат расстояния
// в фиксированной точке. Меньшее значение выполняется раньше.
func PriorityKey(level, maxLevel int, weightedDistSq float64) uint64 {
	lvl := maxLevel - level
	if lvl < 0 {
		lvl = 0
	}
	if lvl > 255 {
		lvl = 255
	}

	var dist uint64
	switch {
	case weightedDistSq <= 0 || math.IsNaN(weightedDistSq):
		dist = 0
	case weightedDistSq*distanceScale >= float64(distanceMask):
		dist = distanceMask
	default:
		dist = uint64(weightedDistSq * distanceScale)
	}
	return uint64(lvl)<<levelShift | dist
}

// LevelOf извлекает уровневую часть ключа
func LevelOf(key uint64) int {
	return int(key >> levelShift)
}

// DirectionWeight множитель расстояния по направлению движения:
// 1 - bias*cos(угол между rel и velocity). Цели впереди получают
// меньший (более срочный) вес, сзади - больший.
func DirectionWeight(rel, velocity vec.Vec2Float, bias float64) float64 {
	cos, ok := rel.Cos(velocity)
	if !ok || bias == 0 {
		return 1
	}
	return 1 - bias*cos
}

// WeightedDistanceSq квадрат расстояния с учётом направления движения
func WeightedDistanceSq(rel, velocity vec.Vec2Float, bias float64) float64 {
	return rel.LengthSq() * DirectionWeight(rel, velocity, bias)
}
