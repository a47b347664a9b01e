package lod

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/annel0/chunkstream/internal/arena"
	"github.com/annel0/chunkstream/internal/geom"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world"
)

// GridCells ячеек сетки по стороне региона на любом уровне
const GridCells = 16

// RegionKey регион уровня Level покрывает 2^Level x 2^Level чанков
type RegionKey struct {
	X, Z  int32
	Level uint8
}

// RegionOf регион уровня level, содержащий чанк c
func RegionOf(c world.ChunkCoord, level int) RegionKey {
	return RegionKey{X: floorShift(c.X, level), Z: floorShift(c.Z, level), Level: uint8(level)}
}

// floorShift деление на 2^n с округлением вниз
func floorShift(v int32, n int) int32 {
	return v >> uint(n)
}

// ChunksPerSide чанков по стороне региона
func (k RegionKey) ChunksPerSide() int {
	return 1 << k.Level
}

// Span ширина региона в блоках
func (k RegionKey) Span() int {
	return world.ChunkSize << k.Level
}

// FirstChunk чанк в углу (min X, min Z) региона
func (k RegionKey) FirstChunk() world.ChunkCoord {
	n := int32(k.ChunksPerSide())
	return world.ChunkCoord{X: k.X * n, Z: k.Z * n}
}

// Chunks все чанки, покрываемые регионом
func (k RegionKey) Chunks() []world.ChunkCoord {
	n := k.ChunksPerSide()
	first := k.FirstChunk()
	out := make([]world.ChunkCoord, 0, n*n)
	for dz := 0; dz < n; dz++ {
		for dx := 0; dx < n; dx++ {
			out = append(out, world.ChunkCoord{X: first.X + int32(dx), Z: first.Z + int32(dz)})
		}
	}
	return out
}

// Origin мировые координаты угла региона
func (k RegionKey) Origin() (int, int) {
	return int(k.X) * k.Span(), int(k.Z) * k.Span()
}

// Center мировой центр региона
func (k RegionKey) Center() vec.Vec2Float {
	x, z := k.Origin()
	half := float64(k.Span()) / 2
	return vec.Vec2Float{X: float64(x) + half, Y: float64(z) + half}
}

// Step блоков между узлами сетки
func (k RegionKey) Step() int {
	return k.Span() / GridCells
}

// ChunkDistance расстояние от центра региона до точки в чанках
func (k RegionKey) ChunkDistance(p vec.Vec2Float) float64 {
	return k.Center().DistanceTo(p) / world.ChunkSize
}

// HalfDiagonal половина диагонали региона в чанках
func (k RegionKey) HalfDiagonal() float64 {
	return float64(k.ChunksPerSide()) * math.Sqrt2 / 2
}

func (k RegionKey) String() string {
	return fmt.Sprintf("L%d(%d,%d)", k.Level, k.X, k.Z)
}

// Region аналог чанка для грубого уровня: сетка высот вместо вокселей
type Region struct {
	world.Lifecycle

	Key  RegionKey
	Grid *world.Heightmap

	// Mesh трогает только основной поток
	Mesh    arena.Allocation
	covered atomic.Bool

	// mu защищает Grid и Pending: задание, прерванное паузой, может ещё
	// выполняться рядом с заданием новой эпохи
	mu sync.Mutex

	// Pending пишет воркер мешинга до перехода в mesh_ready
	Pending []geom.Vertex
}

// commit применяет результат задания, только если задание с токеном token
// всё ещё владеет регионом в состоянии from, и переводит его в to
func (r *Region) commit(token uint64, from, to world.State, apply func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Token() != token || r.State() != from {
		return false
	}
	apply()
	return r.CompareAndSwapState(from, to)
}

func (r *Region) grid() *world.Heightmap {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Grid
}

func (r *Region) pending() []geom.Vertex {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Pending
}

func (r *Region) clearPending() {
	r.mu.Lock()
	r.Pending = nil
	r.mu.Unlock()
}

// NewRegion создаёт пустой регион
func NewRegion(key RegionKey) *Region {
	return &Region{Key: key}
}

// Covered сообщает, что регион целиком закрыт чанками полной детализации
func (r *Region) Covered() bool {
	return r.covered.Load()
}
