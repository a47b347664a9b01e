package streamer

import (
	"fmt"

	"github.com/annel0/chunkstream/internal/world"
	"github.com/annel0/chunkstream/internal/world/block"
)

// SetBlock меняет блок по мировым координатам. Чанк должен иметь данные;
// он и соседи, граничащие с изменённым блоком, помечаются на перестроение.
func (s *Streamer) SetBlock(wx, y, wz int, id block.BlockID) error {
	if !block.IsValidBlockID(id) {
		return fmt.Errorf("блок %d: неизвестный тип", id)
	}
	if y < 0 || y >= world.ChunkHeight {
		return fmt.Errorf("высота %d вне мира", y)
	}

	coord := world.CoordFromBlock(wx, wz)
	ch, ok := s.store.Get(coord)
	if !ok || !ch.State().HasData() {
		return fmt.Errorf("чанк %s: %w", coord, world.ErrChunkNotLoaded)
	}

	ox, oz := coord.Origin()
	lx, lz := wx-ox, wz-oz

	ch.Mu.Lock()
	changed := ch.ApplyEdit(lx, y, lz, id)
	ch.Mu.Unlock()
	if !changed {
		return nil
	}
	ch.MarkDirty()

	var border []int
	switch lx {
	case 0:
		border = append(border, world.NeighborNegX)
	case world.ChunkSize - 1:
		border = append(border, world.NeighborPosX)
	}
	switch lz {
	case 0:
		border = append(border, world.NeighborNegZ)
	case world.ChunkSize - 1:
		border = append(border, world.NeighborPosZ)
	}
	for _, dir := range border {
		if n, ok := s.store.Get(coord.Neighbor(dir)); ok && n.State().HasData() {
			n.MarkDirty()
		}
	}
	return nil
}

// Block возвращает блок по мировым координатам, если чанк загружен
func (s *Streamer) Block(wx, y, wz int) (block.BlockID, error) {
	coord := world.CoordFromBlock(wx, wz)
	ch, ok := s.store.Get(coord)
	if !ok || !ch.State().HasData() {
		return block.AirBlockID, fmt.Errorf("чанк %s: %w", coord, world.ErrChunkNotLoaded)
	}
	ox, oz := coord.Origin()

	ch.Mu.RLock()
	defer ch.Mu.RUnlock()
	return ch.Block(wx-ox, y, wz-oz), nil
}
