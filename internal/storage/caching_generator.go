package storage

import (
	"errors"
	"sync/atomic"

	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/world"
)

// CachingGenerator сначала ищет чанк в кэше и только при промахе зовёт
// вложенный генератор; результат генерации сохраняется. Ошибки кэша не
// прерывают генерацию. Сетки LOD не кэшируются.
type CachingGenerator struct {
	inner  world.Generator
	cache  *ChunkCache
	logger *logging.Logger
}

// NewCachingGenerator оборачивает генератор кэшем
func NewCachingGenerator(inner world.Generator, cache *ChunkCache) *CachingGenerator {
	return &CachingGenerator{
		inner:  inner,
		cache:  cache,
		logger: logging.GetStorageLogger(),
	}
}

func (g *CachingGenerator) Generate(ch *world.Chunk, abort *atomic.Bool) error {
	hit, err := g.cache.Load(ch)
	switch {
	case err == nil && hit:
		return nil
	case errors.Is(err, ErrCorruptPayload):
		g.logger.Warn("%v, генерируем заново", err)
		ch.Reset()
	case err != nil:
		g.logger.Warn("кэш чанков недоступен: %v", err)
	}

	if err := g.inner.Generate(ch, abort); err != nil {
		return err
	}
	if err := g.cache.Store(ch); err != nil && !errors.Is(err, ErrCacheClosed) {
		g.logger.Warn("чанк %s не сохранён в кэш: %v", ch.Coord, err)
	}
	return nil
}

func (g *CachingGenerator) GenerateHeightmap(hm *world.Heightmap, abort *atomic.Bool) error {
	return g.inner.GenerateHeightmap(hm, abort)
}
