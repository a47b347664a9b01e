package streamer

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/annel0/chunkstream/internal/eventbus"
	"github.com/annel0/chunkstream/internal/jobs"
	"github.com/annel0/chunkstream/internal/mesher"
	"github.com/annel0/chunkstream/internal/world"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// counters счётчики конвейера для диагностики
type counters struct {
	generated   atomic.Uint64
	meshed      atomic.Uint64
	uploaded    atomic.Uint64
	evicted     atomic.Uint64
	stale       atomic.Uint64
	genFailures atomic.Uint64
	oomRetries  atomic.Uint64
}

func chunkAttrs(job jobs.Job) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.Int("chunk.x", int(job.X)),
		attribute.Int("chunk.z", int(job.Z)),
		attribute.Int64("job.token", int64(job.Token)),
	)
}

// generationExecutor выполняет задания генерации
type generationExecutor struct {
	s *Streamer
}

func (e *generationExecutor) Execute(job jobs.Job, abort *atomic.Bool) {
	s := e.s
	coord := world.ChunkCoord{X: job.X, Z: job.Z}

	ch, lease, ok := s.store.Pin(coord)
	if !ok {
		return
	}
	defer lease.Release()

	// Чанк пересоздан или задание отменено паузой: результат не нужен,
	// состояние принадлежит другому заданию
	if ch.Token() != job.Token {
		s.counters.stale.Add(1)
		s.logger.Trace("генерация %s: устаревший токен %d", coord, job.Token)
		return
	}
	if !inRadius(coord, s.current().center, s.cfg.RenderDistance) {
		s.counters.stale.Add(1)
		s.logger.Trace("генерация %s: вне радиуса", coord)
		e.revert(ch, job)
		return
	}

	_, span := s.tracer.Start(context.Background(), "chunk.generate", chunkAttrs(job))
	defer span.End()

	ch.Mu.Lock()
	ch.Reset()
	err := s.gen.Generate(ch, abort)
	ch.Mu.Unlock()

	if err != nil {
		if errors.Is(err, world.ErrAborted) {
			s.logger.Trace("генерация %s прервана", coord)
		} else {
			s.counters.genFailures.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Warn("генерация %s: %v", coord, err)
			s.publish(eventbus.TypeChunkFailed, eventbus.PriorityHigh, eventbus.ChunkEvent{X: coord.X, Z: coord.Z, Error: err.Error()})
		}
		e.revert(ch, job)
		return
	}

	if ch.Token() != job.Token || !ch.CompareAndSwapState(world.StateGenerating, world.StateGenerated) {
		s.counters.stale.Add(1)
		return
	}
	s.counters.generated.Add(1)

	// Соседи перестраивают границу с учётом нового чанка
	for _, n := range s.store.Neighbors(coord) {
		if n != nil && n.State().HasData() {
			n.MarkDirty()
		}
	}
}

// revert возвращает чанк в missing, если задание ещё владеет им
func (e *generationExecutor) revert(ch *world.Chunk, job jobs.Job) {
	if ch.Token() == job.Token && ch.CompareAndSwapState(world.StateGenerating, world.StateMissing) {
		e.s.retarget.Store(true)
	}
}

func (e *generationExecutor) Abandon(job jobs.Job) {
	ch, ok := e.s.store.Get(world.ChunkCoord{X: job.X, Z: job.Z})
	if !ok {
		return
	}
	e.revert(ch, job)
}

// meshExecutor выполняет задания мешинга
type meshExecutor struct {
	s *Streamer
}

func (e *meshExecutor) Execute(job jobs.Job, abort *atomic.Bool) {
	s := e.s
	coord := world.ChunkCoord{X: job.X, Z: job.Z}

	ch, lease, ok := s.store.Pin(coord)
	if !ok {
		return
	}
	defer lease.Release()

	if ch.Token() != job.Token {
		s.counters.stale.Add(1)
		s.logger.Trace("мешинг %s: устаревший токен %d", coord, job.Token)
		return
	}
	if abort.Load() || !inRadius(coord, s.current().center, s.cfg.EffectiveMeshRadius()) {
		s.counters.stale.Add(1)
		e.revert(ch, job)
		return
	}

	_, span := s.tracer.Start(context.Background(), "chunk.mesh", chunkAttrs(job))
	defer span.End()

	neighbors, leases := s.store.PinNeighbors(coord)
	vol := mesher.NewVolume(ch, neighbors, s.meshOpts)
	world.ReleaseAll(leases)

	if abort.Load() {
		e.revert(ch, job)
		return
	}
	data := mesher.Build(vol, s.meshOpts)
	span.SetAttributes(attribute.Int("mesh.vertices", data.VertexCount()))

	// Проверка токена и запись буферов под Mu: прерванное паузой задание
	// не перепишет результат задания новой эпохи
	ch.Mu.Lock()
	defer ch.Mu.Unlock()
	if ch.Token() != job.Token || ch.State() != world.StateMeshing {
		s.counters.stale.Add(1)
		return
	}
	ch.Mesh.PendingSolid = data.Solid
	ch.Mesh.PendingFluid = data.Fluid
	if ch.CompareAndSwapState(world.StateMeshing, world.StateMeshReady) {
		s.counters.meshed.Add(1)
	}
}

// revert возвращает чанк в generated, если задание ещё владеет им
func (e *meshExecutor) revert(ch *world.Chunk, job jobs.Job) {
	if ch.Token() == job.Token {
		ch.CompareAndSwapState(world.StateMeshing, world.StateGenerated)
	}
}

func (e *meshExecutor) Abandon(job jobs.Job) {
	ch, ok := e.s.store.Get(world.ChunkCoord{X: job.X, Z: job.Z})
	if !ok {
		return
	}
	e.revert(ch, job)
}
