package streamer

import (
	"errors"

	"github.com/annel0/chunkstream/internal/arena"
	"github.com/annel0/chunkstream/internal/eventbus"
	"github.com/annel0/chunkstream/internal/geom"
	"github.com/annel0/chunkstream/internal/world"
)

// drainUploads загружает в арену не больше upload_budget чанков за тик.
// При нехватке памяти чанк остаётся в mesh_ready и повторяется в
// следующем тике.
func (s *Streamer) drainUploads() {
	for budget := s.cfg.UploadBudget; budget > 0; {
		job, ok := s.uploads.Pop()
		if !ok {
			return
		}
		coord := world.ChunkCoord{X: job.X, Z: job.Z}
		delete(s.queued, coord)

		ch, ok := s.store.Get(coord)
		if !ok || ch.Token() != job.Token {
			continue
		}
		if !ch.CompareAndSwapState(world.StateMeshReady, world.StateUploading) {
			continue
		}
		budget--

		if err := s.upload(ch); err != nil {
			ch.SetState(world.StateMeshReady)
			s.counters.oomRetries.Add(1)
			continue
		}
		ch.SetState(world.StateRenderable)
		s.counters.uploaded.Add(1)
		s.publish(eventbus.TypeChunkRenderable, eventbus.PriorityNormal, eventbus.ChunkEvent{X: coord.X, Z: coord.Z, State: world.StateRenderable.String()})
	}
}

// upload размещает ожидающие буферы в арене и отдаёт старую геометрию
// на отложенное освобождение. При ошибке старая геометрия остаётся.
func (s *Streamer) upload(ch *world.Chunk) error {
	ch.Mu.RLock()
	pendingSolid, pendingFluid := ch.Mesh.PendingSolid, ch.Mesh.PendingFluid
	ch.Mu.RUnlock()

	solid, err := s.allocate(pendingSolid)
	if err != nil {
		return err
	}
	fluid, err := s.allocate(pendingFluid)
	if err != nil {
		// Новая аллокация ещё не попала ни в один кадр
		if !solid.IsZero() {
			if ferr := s.arena.FreeNow(solid); ferr != nil {
				s.logger.Error("откат загрузки %s: %v", ch.Coord, ferr)
			}
		}
		return err
	}

	s.release(ch)
	ch.Mesh.Solid = solid
	ch.Mesh.Fluid = fluid
	ch.Mu.Lock()
	ch.Mesh.ClearPending()
	ch.Mu.Unlock()
	return nil
}

func (s *Streamer) allocate(vertices []geom.Vertex) (arena.Allocation, error) {
	alloc, err := s.arena.Allocate(vertices)
	if err != nil && errors.Is(err, arena.ErrOutOfMemory) {
		st := s.arena.Stats()
		s.publish(eventbus.TypeArenaOOM, eventbus.PriorityHigh, eventbus.ArenaEvent{
			Arena:     st.Name,
			Requested: len(vertices) * geom.VertexStride,
			Free:      st.FreeBytes,
			Largest:   st.LargestFree,
		})
	}
	return alloc, err
}

// release отдаёт геометрию чанка на отложенное освобождение
func (s *Streamer) release(ch *world.Chunk) {
	for _, alloc := range []arena.Allocation{ch.Mesh.Solid, ch.Mesh.Fluid} {
		if alloc.IsZero() {
			continue
		}
		if err := s.arena.Free(alloc); err != nil {
			s.logger.Error("освобождение геометрии %s: %v", ch.Coord, err)
		}
	}
	ch.Mesh.Solid = arena.Allocation{}
	ch.Mesh.Fluid = arena.Allocation{}
}

// evict выселяет чанки за пределами render_distance + hysteresis, не больше
// unload_budget за тик. Закреплённые и занятые заданием чанки пропускаются.
func (s *Streamer) evict(v *view) {
	limit := s.cfg.RenderDistance + s.cfg.Hysteresis
	budget := s.cfg.UnloadBudget

	for _, c := range s.store.Keys() {
		if budget == 0 {
			return
		}
		if inRadius(c, v.center, limit) {
			continue
		}
		ch, ok := s.store.Remove(c, nil)
		if !ok {
			continue
		}
		budget--

		s.release(ch)
		ch.Mesh.ClearPending()
		delete(s.queued, c)
		s.counters.evicted.Add(1)
		s.publish(eventbus.TypeChunkEvicted, eventbus.PriorityLow, eventbus.ChunkEvent{X: c.X, Z: c.Z})
	}
}

// Render отправляет по одному вызову отрисовки на проход для каждого чанка
// с геометрией: сначала все непрозрачные, затем жидкости. Возвращает
// количество вызовов.
func (s *Streamer) Render() int {
	if s.closed {
		return 0
	}
	chunks := s.store.Snapshot()
	draws := 0
	buf := s.arena.Buffer()
	for pass := 0; pass < 2; pass++ {
		for _, ch := range chunks {
			alloc := ch.Mesh.Solid
			if pass == 1 {
				alloc = ch.Mesh.Fluid
			}
			if alloc.IsZero() {
				continue
			}
			s.gpu.Draw(buf, alloc.Count, alloc.FirstVertex())
			draws++
		}
	}
	return draws
}
