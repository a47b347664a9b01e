package lod

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/annel0/chunkstream/internal/jobs"
	"github.com/annel0/chunkstream/internal/world"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type counters struct {
	generated   atomic.Uint64
	meshed      atomic.Uint64
	uploaded    atomic.Uint64
	evicted     atomic.Uint64
	freed       atomic.Uint64
	stale       atomic.Uint64
	genFailures atomic.Uint64
	oomRetries  atomic.Uint64
}

// executor выполняет задания всех уровней в общем пуле
type executor struct {
	m *Manager
}

func (e *executor) Execute(job jobs.Job, abort *atomic.Bool) {
	lvl := e.m.level(int(job.Level))
	if lvl == nil {
		return
	}
	key := RegionKey{X: job.X, Z: job.Z, Level: job.Level}

	reg, lease, ok := lvl.store.Pin(key)
	if !ok {
		return
	}
	defer lease.Release()

	if reg.Token() != job.Token {
		e.m.counters.stale.Add(1)
		return
	}
	if abort.Load() || !lvl.inRing(key, e.m.view.Load().position) {
		e.m.counters.stale.Add(1)
		e.revert(reg, job)
		return
	}

	switch job.Kind {
	case jobs.KindGenerate:
		e.generate(reg, job, abort)
	case jobs.KindMesh:
		e.mesh(reg, job)
	}
}

func (e *executor) span(name string, job jobs.Job) trace.Span {
	_, span := e.m.tracer.Start(context.Background(), name, trace.WithAttributes(
		attribute.Int("region.x", int(job.X)),
		attribute.Int("region.z", int(job.Z)),
		attribute.Int("region.level", int(job.Level)),
	))
	return span
}

func (e *executor) generate(reg *Region, job jobs.Job, abort *atomic.Bool) {
	span := e.span("region.heightmap", job)
	defer span.End()

	key := reg.Key
	ox, oz := key.Origin()
	grid := world.NewHeightmap(ox, oz, key.Step(), GridCells+1)
	if err := e.m.gen.GenerateHeightmap(grid, abort); err != nil {
		if !errors.Is(err, world.ErrAborted) {
			e.m.counters.genFailures.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.m.logger.Warn("сетка %s: %v", key, err)
		}
		e.revert(reg, job)
		return
	}

	if !reg.commit(job.Token, world.StateGenerating, world.StateGenerated, func() { reg.Grid = grid }) {
		e.m.counters.stale.Add(1)
		return
	}
	e.m.counters.generated.Add(1)
}

func (e *executor) mesh(reg *Region, job jobs.Job) {
	span := e.span("region.mesh", job)
	defer span.End()

	grid := reg.grid()
	if grid == nil {
		e.revert(reg, job)
		return
	}
	verts := BuildRegion(grid, int(job.Level))
	span.SetAttributes(attribute.Int("mesh.vertices", len(verts)))

	if !reg.commit(job.Token, world.StateMeshing, world.StateMeshReady, func() { reg.Pending = verts }) {
		e.m.counters.stale.Add(1)
		return
	}
	e.m.counters.meshed.Add(1)
}

// revert возвращает регион в состояние до задания, если задание ещё владеет им
func (e *executor) revert(reg *Region, job jobs.Job) {
	if reg.Token() != job.Token {
		return
	}
	switch job.Kind {
	case jobs.KindGenerate:
		if reg.CompareAndSwapState(world.StateGenerating, world.StateMissing) {
			e.m.retarget.Store(true)
		}
	case jobs.KindMesh:
		reg.CompareAndSwapState(world.StateMeshing, world.StateGenerated)
	}
}

func (e *executor) Abandon(job jobs.Job) {
	lvl := e.m.level(int(job.Level))
	if lvl == nil {
		return
	}
	if reg, ok := lvl.store.Get(RegionKey{X: job.X, Z: job.Z, Level: job.Level}); ok {
		e.revert(reg, job)
	}
}
