// Package lod ведёт грубые уровни детализации: регионы 2x2, 4x4 и 8x8
// чанков с упрощённой сеткой высот, собственной ареной на уровень и общим
// пулом воркеров, в котором уровень закодирован в приоритете.
package lod

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/annel0/chunkstream/internal/arena"
	"github.com/annel0/chunkstream/internal/config"
	"github.com/annel0/chunkstream/internal/eventbus"
	"github.com/annel0/chunkstream/internal/gpu"
	"github.com/annel0/chunkstream/internal/jobs"
	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/observability"
	"github.com/annel0/chunkstream/internal/streamer"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Coverage сообщает, загружен ли чанк полной детализации
type Coverage interface {
	IsRenderable(c world.ChunkCoord) bool
}

// Option настройка менеджера
type Option func(*Manager)

// WithLogger задаёт логгер
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithEventBus включает публикацию событий регионов
func WithEventBus(bus eventbus.EventBus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithTracer задаёт трассировщик для заданий
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// level конвейер одного грубого уровня
type level struct {
	n      int
	radius int // в чанках
	inner  int // радиус предыдущего грубого уровня, 0 для самого детального

	store   *world.Store[RegionKey, *Region]
	arena   *arena.Allocator
	uploads *jobs.Queue
	queued  map[RegionKey]struct{}
}

type view struct {
	position vec.Vec2Float
	velocity vec.Vec2Float
	center   world.ChunkCoord
}

type pendingDelete struct {
	lvl   *level
	alloc arena.Allocation
}

// Manager менеджер грубых уровней
type Manager struct {
	id       string
	cfg      config.LODConfig
	bias     float64
	gen      world.Generator
	gpu      gpu.GPU
	coverage Coverage
	logger   *logging.Logger
	bus      eventbus.EventBus
	tracer   trace.Tracer

	levels  []*level // от грубого к детальному
	byLevel [jobs.MaxLevel + 1]*level
	pool    *jobs.Pool

	view        atomic.Pointer[view]
	haveLast    bool
	last        world.ChunkCoord
	retarget    atomic.Bool
	paused      atomic.Bool
	request     atomic.Int32
	closed      bool
	tick        atomic.Uint64
	lastCleanup uint64

	deletes  []pendingDelete
	counters counters
}

const (
	requestNone int32 = iota
	requestPause
	requestResume
)

// New создаёт менеджер LOD. coverage сообщает о готовых чанках уровня 0
// и используется при очистке перекрытых регионов.
func New(cfg *config.Config, gen world.Generator, g gpu.GPU, coverage Coverage, opts ...Option) (*Manager, error) {
	m := &Manager{
		id:       uuid.NewString(),
		cfg:      cfg.LOD,
		bias:     cfg.Streaming.DirectionBias,
		gen:      gen,
		gpu:      g,
		coverage: coverage,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.GetLODLogger()
	}
	if m.tracer == nil {
		m.tracer = observability.Tracer("lod")
	}

	levels := append([]config.LODLevelConfig(nil), cfg.LOD.Levels...)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })

	inner := 0
	for _, lc := range levels {
		if lc.Level < 1 || lc.Level > jobs.MaxLevel {
			m.closeArenas()
			return nil, fmt.Errorf("уровень %d: %w", lc.Level, config.ErrInvalidLODLevel)
		}
		a, err := arena.New(g, arena.Options{
			Name:           fmt.Sprintf("lod%d", lc.Level),
			Capacity:       lc.ArenaBytes,
			FramesInFlight: cfg.Arena.FramesInFlight,
		})
		if err != nil {
			m.closeArenas()
			return nil, fmt.Errorf("lod: %w", err)
		}
		lvl := &level{
			n:       lc.Level,
			radius:  lc.Radius,
			inner:   inner,
			store:   world.NewStore[RegionKey, *Region](NewRegion),
			arena:   a,
			uploads: jobs.NewQueue(),
			queued:  make(map[RegionKey]struct{}),
		}
		inner = lc.Radius
		m.byLevel[lc.Level] = lvl
		m.levels = append([]*level{lvl}, m.levels...)
	}

	m.pool = jobs.NewPool("lod", cfg.LOD.Workers, &executor{m: m})
	m.view.Store(&view{})

	m.logger.Info("lod %s: уровней %d, воркеров %d, очистка каждые %d тиков",
		m.id, len(m.levels), cfg.LOD.Workers, cfg.LOD.CleanupIntervalTicks)
	return m, nil
}

func (m *Manager) closeArenas() {
	for _, lvl := range m.byLevel {
		if lvl != nil {
			lvl.arena.Close()
		}
	}
}

// ID идентификатор экземпляра (источник событий)
func (m *Manager) ID() string {
	return m.id
}

// Region возвращает регион, если он загружен
func (m *Manager) Region(key RegionKey) (*Region, bool) {
	lvl := m.level(int(key.Level))
	if lvl == nil {
		return nil, false
	}
	return lvl.store.Get(key)
}

// Arena арена уровня или nil
func (m *Manager) Arena(n int) *arena.Allocator {
	if lvl := m.level(n); lvl != nil {
		return lvl.arena
	}
	return nil
}

func (m *Manager) level(n int) *level {
	if n < 0 || n >= len(m.byLevel) {
		return nil
	}
	return m.byLevel[n]
}

// Update выполняет один тик грубых уровней
func (m *Manager) Update(obs streamer.Observer) {
	if m.closed {
		return
	}
	tick := m.tick.Add(1)

	switch m.request.Swap(requestNone) {
	case requestPause:
		m.SetPaused(true)
	case requestResume:
		m.SetPaused(false)
	}

	v := &view{
		position: obs.Position.XZ(),
		velocity: obs.Velocity.XZ(),
		center:   world.CoordFromPosition(obs.Position),
	}
	m.view.Store(v)

	if !m.paused.Load() {
		if !m.haveLast || v.center != m.last || m.retarget.Swap(false) {
			for _, lvl := range m.levels {
				m.enqueueTargets(lvl, v)
			}
		}
		m.haveLast = true
		m.last = v.center
	}

	for _, lvl := range m.levels {
		m.scan(lvl, v)
	}
	m.drainUploads()
	for _, lvl := range m.levels {
		m.evict(lvl, v)
	}

	if tick-m.lastCleanup >= uint64(m.cfg.CleanupIntervalTicks) {
		m.lastCleanup = tick
		m.RunCleanup()
	}
	for _, lvl := range m.levels {
		lvl.arena.Collect()
	}
}

// inRing регион входит в кольцо уровня: центр в пределах радиуса и
// регион не лежит целиком внутри предыдущего уровня
func (lvl *level) inRing(key RegionKey, p vec.Vec2Float) bool {
	d := key.ChunkDistance(p)
	return d <= float64(lvl.radius) && d+key.HalfDiagonal() > float64(lvl.inner)
}

// outside регион вышел за кольцо с запасом в один регион
func (lvl *level) outside(key RegionKey, p vec.Vec2Float) bool {
	d := key.ChunkDistance(p)
	margin := float64(key.ChunksPerSide())
	if d > float64(lvl.radius)+margin {
		return true
	}
	return lvl.inner > 0 && d+key.HalfDiagonal() < float64(lvl.inner)-margin
}

func (m *Manager) priority(key RegionKey, v *view) uint64 {
	rel := key.Center().Sub(v.position).Mul(1.0 / world.ChunkSize)
	return jobs.PriorityKey(int(key.Level), jobs.MaxLevel, jobs.WeightedDistanceSq(rel, v.velocity, m.bias))
}

// enqueueTargets ставит построение сетки для отсутствующих регионов кольца
func (m *Manager) enqueueTargets(lvl *level, v *view) {
	center := RegionOf(v.center, lvl.n)
	r := int32(math.Ceil(float64(lvl.radius)/float64(int(1)<<lvl.n))) + 1

	enqueued := 0
	for dz := -r; dz <= r; dz++ {
		for dx := -r; dx <= r; dx++ {
			key := RegionKey{X: center.X + dx, Z: center.Z + dz, Level: uint8(lvl.n)}
			if !lvl.inRing(key, v.position) {
				continue
			}
			reg, _ := lvl.store.GetOrCreate(key)
			if !reg.CompareAndSwapState(world.StateMissing, world.StateGenerating) {
				continue
			}
			job := jobs.Job{Kind: jobs.KindGenerate, Level: uint8(lvl.n), X: key.X, Z: key.Z, Priority: m.priority(key, v), Token: reg.Token()}
			if err := m.pool.Push(job); err != nil {
				reg.CompareAndSwapState(world.StateGenerating, world.StateMissing)
				return
			}
			enqueued++
		}
	}
	if enqueued > 0 {
		m.logger.Debug("уровень %d: поставлено регионов %d", lvl.n, enqueued)
	}
}

// scan ставит мешинг готовым сеткам и собирает очередь загрузки
func (m *Manager) scan(lvl *level, v *view) {
	for _, reg := range lvl.store.Snapshot() {
		switch reg.State() {
		case world.StateGenerated:
			if m.paused.Load() || reg.Covered() || !lvl.inRing(reg.Key, v.position) {
				continue
			}
			if !reg.CompareAndSwapState(world.StateGenerated, world.StateMeshing) {
				continue
			}
			job := jobs.Job{Kind: jobs.KindMesh, Level: uint8(lvl.n), X: reg.Key.X, Z: reg.Key.Z, Priority: m.priority(reg.Key, v), Token: reg.Token()}
			if err := m.pool.Push(job); err != nil {
				reg.CompareAndSwapState(world.StateMeshing, world.StateGenerated)
			}

		case world.StateMeshReady:
			if _, ok := lvl.queued[reg.Key]; ok {
				continue
			}
			lvl.queued[reg.Key] = struct{}{}
			lvl.uploads.Push(jobs.Job{Kind: jobs.KindUpload, Level: uint8(lvl.n), X: reg.Key.X, Z: reg.Key.Z, Priority: m.priority(reg.Key, v), Token: reg.Token()})
		}
	}
}

// drainUploads загружает регионы в арены уровней, грубые первыми, не
// больше upload_budget за тик на все уровни
func (m *Manager) drainUploads() {
	budget := m.cfg.UploadBudget
	for _, lvl := range m.levels {
		for budget > 0 {
			job, ok := lvl.uploads.Pop()
			if !ok {
				break
			}
			key := RegionKey{X: job.X, Z: job.Z, Level: job.Level}
			delete(lvl.queued, key)

			reg, ok := lvl.store.Get(key)
			if !ok || reg.Token() != job.Token {
				continue
			}
			if !reg.CompareAndSwapState(world.StateMeshReady, world.StateUploading) {
				continue
			}
			budget--

			alloc, err := lvl.arena.Allocate(reg.pending())
			if err != nil {
				reg.SetState(world.StateMeshReady)
				m.counters.oomRetries.Add(1)
				continue
			}
			m.release(lvl, reg)
			reg.Mesh = alloc
			reg.clearPending()
			reg.SetState(world.StateRenderable)
			m.counters.uploaded.Add(1)
			m.publish(eventbus.TypeRegionRenderable, eventbus.PriorityNormal, eventbus.ChunkEvent{X: key.X, Z: key.Z, Level: lvl.n, State: world.StateRenderable.String()})
		}
	}
}

// release отдаёт геометрию региона на отложенное освобождение
func (m *Manager) release(lvl *level, reg *Region) {
	if reg.Mesh.IsZero() {
		return
	}
	if err := lvl.arena.Free(reg.Mesh); err != nil {
		m.logger.Error("освобождение %s: %v", reg.Key, err)
	}
	reg.Mesh = arena.Allocation{}
}

// evict выселяет регионы, вышедшие из кольца уровня
func (m *Manager) evict(lvl *level, v *view) {
	budget := m.cfg.DeleteBatchSize
	for _, key := range lvl.store.Keys() {
		if budget == 0 {
			return
		}
		if !lvl.outside(key, v.position) {
			continue
		}
		reg, ok := lvl.store.Remove(key, nil)
		if !ok {
			continue
		}
		budget--
		m.release(lvl, reg)
		reg.clearPending()
		delete(lvl.queued, key)
		m.counters.evicted.Add(1)
	}
}

// Render рисует загруженные и не перекрытые регионы, грубые первыми
func (m *Manager) Render() int {
	if m.closed {
		return 0
	}
	draws := 0
	for _, lvl := range m.levels {
		buf := lvl.arena.Buffer()
		for _, reg := range lvl.store.Snapshot() {
			if reg.Mesh.IsZero() || reg.Covered() {
				continue
			}
			m.gpu.Draw(buf, reg.Mesh.Count, reg.Mesh.FirstVertex())
			draws++
		}
	}
	return draws
}

// SetPaused останавливает или возобновляет пул LOD, возвращая выполняющиеся
// регионы в предыдущее состояние
func (m *Manager) SetPaused(paused bool) {
	if m.closed || m.paused.Load() == paused {
		return
	}
	m.paused.Store(paused)

	if !paused {
		m.pool.SetPaused(false)
		m.retarget.Store(true)
		return
	}

	m.pool.SetPaused(true)
	for _, lvl := range m.levels {
		for _, reg := range lvl.store.Snapshot() {
			switch reg.State() {
			case world.StateGenerating:
				reg.Recycle(lvl.store.NextToken())
				reg.CompareAndSwapState(world.StateGenerating, world.StateMissing)
			case world.StateMeshing:
				reg.Recycle(lvl.store.NextToken())
				reg.CompareAndSwapState(world.StateMeshing, world.StateGenerated)
			}
		}
	}
}

// RequestPause безопасен из любой горутины: пауза применяется в начале
// следующего Update
func (m *Manager) RequestPause(paused bool) {
	if paused {
		m.request.Store(requestPause)
	} else {
		m.request.Store(requestResume)
	}
}

// Paused сообщает, приостановлен ли менеджер
func (m *Manager) Paused() bool {
	return m.paused.Load()
}

// Close останавливает пул и освобождает арены
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.pool.Close()
	m.deletes = nil
	for _, lvl := range m.levels {
		for _, reg := range lvl.store.Snapshot() {
			reg.Mesh = arena.Allocation{}
			reg.clearPending()
		}
		lvl.arena.Close()
	}
	m.logger.Info("lod %s остановлен", m.id)
}

func (m *Manager) publish(eventType string, priority int, payload any) {
	if m.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(m.id, eventType, priority, payload)
	if err != nil {
		m.logger.Warn("событие %s: %v", eventType, err)
		return
	}
	if err := m.bus.Publish(context.Background(), ev); err != nil {
		m.logger.Debug("событие %s не опубликовано: %v", eventType, err)
	}
}
