// Package streamer ведёт конвейер чанков полной детализации вокруг
// движущегося наблюдателя: генерация, мешинг, загрузка в арену и выселение.
//
// Update, Render, SetBlock, SetPaused и Close вызываются только из потока,
// владеющего GPU. Воркеры меняют состояние чанка лишь из состояний
// generating и meshing, которые им передал основной поток.
package streamer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/annel0/chunkstream/internal/arena"
	"github.com/annel0/chunkstream/internal/config"
	"github.com/annel0/chunkstream/internal/eventbus"
	"github.com/annel0/chunkstream/internal/gpu"
	"github.com/annel0/chunkstream/internal/jobs"
	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/mesher"
	"github.com/annel0/chunkstream/internal/observability"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Observer положение и скорость наблюдателя, снимаемые раз в тик
type Observer struct {
	Position vec.Vec3Float
	Velocity vec.Vec3Float
}

// view позиция наблюдателя, видимая воркерам
type view struct {
	center   world.ChunkCoord
	position vec.Vec2Float
	velocity vec.Vec2Float
}

// Option настройка стримера
type Option func(*Streamer)

// WithLogger задаёт логгер
func WithLogger(l *logging.Logger) Option {
	return func(s *Streamer) { s.logger = l }
}

// WithEventBus включает публикацию событий жизненного цикла
func WithEventBus(bus eventbus.EventBus) Option {
	return func(s *Streamer) { s.bus = bus }
}

// WithMesherOptions задаёт параметры мешера
func WithMesherOptions(o mesher.Options) Option {
	return func(s *Streamer) { s.meshOpts = o }
}

// WithTracer задаёт трассировщик для заданий
func WithTracer(t trace.Tracer) Option {
	return func(s *Streamer) { s.tracer = t }
}

// Streamer оркестратор конвейера полной детализации
type Streamer struct {
	id       string
	cfg      config.StreamingConfig
	gen      world.Generator
	gpu      gpu.GPU
	logger   *logging.Logger
	bus      eventbus.EventBus
	tracer   trace.Tracer
	meshOpts mesher.Options

	store   *world.ChunkStore
	arena   *arena.Allocator
	genPool *jobs.Pool
	mshPool *jobs.Pool

	uploads *jobs.Queue
	queued  map[world.ChunkCoord]struct{} // чанки в очереди загрузки

	view     atomic.Pointer[view]
	haveLast bool
	last     world.ChunkCoord
	retarget atomic.Bool // пересчитать целевой набор, даже если наблюдатель стоит
	paused   atomic.Bool
	request  atomic.Int32 // отложенная пауза из других горутин
	closed   bool
	tick     atomic.Uint64

	counters counters
}

const (
	requestNone int32 = iota
	requestPause
	requestResume
)

// New создаёт стример, его пулы воркеров и арену
func New(cfg *config.Config, gen world.Generator, g gpu.GPU, opts ...Option) (*Streamer, error) {
	s := &Streamer{
		id:       uuid.NewString(),
		cfg:      cfg.Streaming,
		gen:      gen,
		gpu:      g,
		meshOpts: mesher.DefaultOptions(),
		store:    world.NewChunkStore(),
		uploads:  jobs.NewQueue(),
		queued:   make(map[world.ChunkCoord]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.GetStreamerLogger()
	}
	if s.tracer == nil {
		s.tracer = observability.Tracer("streamer")
	}

	a, err := arena.New(g, arena.Options{
		Name:           "chunks",
		Capacity:       cfg.Arena.CapacityBytes,
		FramesInFlight: cfg.Arena.FramesInFlight,
	})
	if err != nil {
		return nil, fmt.Errorf("стример: %w", err)
	}
	s.arena = a

	s.genPool = jobs.NewPool("generation", s.cfg.GenerationWorkers, &generationExecutor{s: s})
	s.mshPool = jobs.NewPool("meshing", s.cfg.MeshingWorkers, &meshExecutor{s: s})
	s.view.Store(&view{})

	s.logger.Info("стример %s: дальность %d (+%d), мешинг %d, воркеры %d/%d, арена %d байт",
		s.id, s.cfg.RenderDistance, s.cfg.Hysteresis, s.cfg.EffectiveMeshRadius(),
		s.cfg.GenerationWorkers, s.cfg.MeshingWorkers, cfg.Arena.CapacityBytes)
	return s, nil
}

// ID идентификатор экземпляра (источник событий)
func (s *Streamer) ID() string {
	return s.id
}

// Store хранилище чанков
func (s *Streamer) Store() *world.ChunkStore {
	return s.store
}

// Arena арена вершин чанков
func (s *Streamer) Arena() *arena.Allocator {
	return s.arena
}

// Update выполняет один тик конвейера
func (s *Streamer) Update(obs Observer) {
	if s.closed {
		return
	}
	s.tick.Add(1)

	switch s.request.Swap(requestNone) {
	case requestPause:
		s.SetPaused(true)
	case requestResume:
		s.SetPaused(false)
	}

	v := &view{
		center:   world.CoordFromPosition(obs.Position),
		position: obs.Position.XZ(),
		velocity: obs.Velocity.XZ(),
	}
	s.view.Store(v)

	if !s.paused.Load() {
		moved := !s.haveLast || v.center != s.last
		if moved || s.retarget.Swap(false) {
			s.enqueueTargets(v)
		}
		s.haveLast = true
		s.last = v.center
	}

	s.scanResidents(v)
	s.drainUploads()
	s.evict(v)
	s.arena.Collect()
}

// enqueueTargets ставит генерацию для всех отсутствующих чанков круга
// render_distance вокруг наблюдателя
func (s *Streamer) enqueueTargets(v *view) {
	r := s.cfg.RenderDistance
	enqueued := 0
	for dz := -r; dz <= r; dz++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dz*dz > r*r {
				continue
			}
			c := world.ChunkCoord{X: v.center.X + int32(dx), Z: v.center.Z + int32(dz)}
			ch, _ := s.store.GetOrCreate(c)
			if !ch.CompareAndSwapState(world.StateMissing, world.StateGenerating) {
				continue
			}
			job := jobs.Job{Kind: jobs.KindGenerate, X: c.X, Z: c.Z, Priority: s.priority(c, v), Token: ch.Token()}
			if err := s.genPool.Push(job); err != nil {
				ch.CompareAndSwapState(world.StateGenerating, world.StateMissing)
				return
			}
			enqueued++
		}
	}
	if enqueued > 0 {
		s.logger.Debug("центр %s: поставлено генераций %d", v.center, enqueued)
	}
}

// scanResidents ставит мешинг готовым чанкам, собирает очередь загрузки
// и возвращает изменённые чанки на перестроение
func (s *Streamer) scanResidents(v *view) {
	meshR := s.cfg.EffectiveMeshRadius()
	for _, ch := range s.store.Snapshot() {
		switch ch.State() {
		case world.StateGenerated:
			if s.paused.Load() || !inRadius(ch.Coord, v.center, meshR) {
				continue
			}
			if !ch.CompareAndSwapState(world.StateGenerated, world.StateMeshing) {
				continue
			}
			ch.TakeDirty()
			job := jobs.Job{Kind: jobs.KindMesh, X: ch.Coord.X, Z: ch.Coord.Z, Priority: s.priority(ch.Coord, v), Token: ch.Token()}
			if err := s.mshPool.Push(job); err != nil {
				ch.CompareAndSwapState(world.StateMeshing, world.StateGenerated)
			}

		case world.StateMeshReady:
			if _, ok := s.queued[ch.Coord]; ok {
				continue
			}
			if s.uploads.Len() >= s.cfg.UploadQueueSize {
				continue
			}
			s.queued[ch.Coord] = struct{}{}
			s.uploads.Push(jobs.Job{Kind: jobs.KindUpload, X: ch.Coord.X, Z: ch.Coord.Z, Priority: s.priority(ch.Coord, v), Token: ch.Token()})

		case world.StateRenderable:
			if ch.Dirty() {
				ch.CompareAndSwapState(world.StateRenderable, world.StateGenerated)
			}
		}
	}
}

// priority ключ приоритета уровня 0 с учётом направления движения
func (s *Streamer) priority(c world.ChunkCoord, v *view) uint64 {
	rel := c.Center().Sub(v.position)
	return jobs.PriorityKey(0, jobs.MaxLevel, jobs.WeightedDistanceSq(rel, v.velocity, s.cfg.DirectionBias))
}

// current текущая позиция наблюдателя для проверок воркеров
func (s *Streamer) current() *view {
	return s.view.Load()
}

func inRadius(c, center world.ChunkCoord, r int) bool {
	return c.DistanceSq(center) <= int64(r)*int64(r)
}

// IsRenderable сообщает, что чанк загружен в арену
func (s *Streamer) IsRenderable(c world.ChunkCoord) bool {
	ch, ok := s.store.Get(c)
	return ok && ch.State() == world.StateRenderable
}

// SetPaused останавливает или возобновляет генерацию и мешинг.
// Пауза снимает задания с очередей и возвращает выполняющиеся чанки
// в предыдущее состояние с новым токеном, так что их результат будет
// отброшен. Возобновление не ждёт прерванные задания: их результат
// отсекается токеном.
func (s *Streamer) SetPaused(paused bool) {
	if s.closed || s.paused.Load() == paused {
		return
	}
	s.paused.Store(paused)

	if !paused {
		s.genPool.SetPaused(false)
		s.mshPool.SetPaused(false)
		s.retarget.Store(true)
		s.logger.Info("стример возобновлён")
		return
	}

	s.genPool.SetPaused(true)
	s.mshPool.SetPaused(true)

	reverted := 0
	for _, ch := range s.store.Snapshot() {
		switch ch.State() {
		case world.StateGenerating:
			ch.Recycle(s.store.NextToken())
			if ch.CompareAndSwapState(world.StateGenerating, world.StateMissing) {
				reverted++
			}
		case world.StateMeshing:
			ch.Recycle(s.store.NextToken())
			if ch.CompareAndSwapState(world.StateMeshing, world.StateGenerated) {
				reverted++
			}
		}
	}
	s.logger.Info("стример приостановлен, возвращено чанков: %d", reverted)
}

// RequestPause безопасен из любой горутины: пауза применяется в начале
// следующего Update
func (s *Streamer) RequestPause(paused bool) {
	if paused {
		s.request.Store(requestPause)
	} else {
		s.request.Store(requestResume)
	}
}

// Paused сообщает, приостановлен ли стример
func (s *Streamer) Paused() bool {
	return s.paused.Load()
}

// Close останавливает пулы и освобождает всю геометрию и арену
func (s *Streamer) Close() {
	if s.closed {
		return
	}
	s.closed = true

	s.genPool.Close()
	s.mshPool.Close()

	for _, ch := range s.store.Snapshot() {
		ch.Mesh.Solid = arena.Allocation{}
		ch.Mesh.Fluid = arena.Allocation{}
		ch.Mesh.ClearPending()
	}
	s.uploads.Drain()
	s.queued = make(map[world.ChunkCoord]struct{})
	s.arena.Close()
	s.logger.Info("стример %s остановлен", s.id)
}

// publish отправляет событие в шину, если она задана
func (s *Streamer) publish(eventType string, priority int, payload any) {
	if s.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(s.id, eventType, priority, payload)
	if err != nil {
		s.logger.Warn("событие %s: %v", eventType, err)
		return
	}
	if err := s.bus.Publish(context.Background(), ev); err != nil {
		s.logger.Debug("событие %s не опубликовано: %v", eventType, err)
	}
}
