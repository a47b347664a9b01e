package lod

import (
	"github.com/annel0/chunkstream/internal/arena"
	"github.com/annel0/chunkstream/internal/eventbus"
	"github.com/annel0/chunkstream/internal/world"
)

// RunCleanup освобождает геометрию регионов, целиком закрытых готовыми
// чанками полной детализации, и снимает отметку с регионов, которые снова
// открылись. Освобождение пакетное: один WaitIdle на пакет, после чего
// участки возвращаются в арену сразу. Возвращает число освобождённых регионов.
func (m *Manager) RunCleanup() int {
	if m.closed || m.coverage == nil {
		return 0
	}
	freed := 0
	for _, lvl := range m.levels {
		for _, reg := range lvl.store.Snapshot() {
			if reg.Covered() {
				if !m.fullyCovered(reg.Key) {
					reg.covered.Store(false)
					m.logger.Debug("регион %s снова открыт", reg.Key)
				}
				continue
			}

			switch reg.State() {
			case world.StateRenderable, world.StateMeshReady, world.StateGenerated:
			default:
				continue
			}
			if !m.fullyCovered(reg.Key) {
				continue
			}

			reg.covered.Store(true)
			reg.clearPending()
			if !reg.Mesh.IsZero() {
				m.deletes = append(m.deletes, pendingDelete{lvl: lvl, alloc: reg.Mesh})
				reg.Mesh = arena.Allocation{}
			}
			reg.SetState(world.StateGenerated)
			delete(lvl.queued, reg.Key)

			freed++
			m.counters.freed.Add(1)
			m.publish(eventbus.TypeRegionFreed, eventbus.PriorityLow, eventbus.ChunkEvent{X: reg.Key.X, Z: reg.Key.Z, Level: lvl.n})

			if len(m.deletes) >= m.cfg.DeleteBatchSize {
				m.flushDeletes()
			}
		}
	}
	m.flushDeletes()
	if freed > 0 {
		m.logger.Debug("очистка: освобождено регионов %d", freed)
	}
	return freed
}

// fullyCovered все чанки футпринта региона готовы на уровне 0
func (m *Manager) fullyCovered(key RegionKey) bool {
	for _, c := range key.Chunks() {
		if !m.coverage.IsRenderable(c) {
			return false
		}
	}
	return true
}

// flushDeletes дожидается GPU один раз и возвращает накопленные участки
func (m *Manager) flushDeletes() {
	if len(m.deletes) == 0 {
		return
	}
	m.gpu.WaitIdle()
	for _, d := range m.deletes {
		if err := d.lvl.arena.FreeNow(d.alloc); err != nil {
			m.logger.Error("пакетное освобождение уровня %d: %v", d.lvl.n, err)
		}
	}
	m.deletes = m.deletes[:0]
}
