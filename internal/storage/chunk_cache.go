package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/world"
	"github.com/annel0/chunkstream/internal/world/block"
	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrCacheClosed кэш уже закрыт
	ErrCacheClosed = errors.New("кэш чанков закрыт")
	// ErrCorruptPayload запись кэша не соответствует формату
	ErrCorruptPayload = errors.New("повреждённая запись кэша")
)

// payloadVersion меняется при изменении формата записи; старые записи
// становятся промахами
const payloadVersion = 1

const (
	blocksSize  = world.ChunkVolume
	lightSize   = world.ChunkVolume * 2
	biomesSize  = world.ColumnCount
	heightsSize = world.ColumnCount * 2
	payloadSize = blocksSize + lightSize + biomesSize + heightsSize
)

// CacheStats счётчики кэша
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Stores  uint64 `json:"stores"`
	Corrupt uint64 `json:"corrupt"`
}

// ChunkCache хранит сгенерированные чанки в BadgerDB. Запись содержит
// блоки, свет, биомы и высоты, сжатые zstd. Ключ включает сид мира,
// поэтому смена сида не подхватывает чужие данные.
type ChunkCache struct {
	db     *badger.DB
	seed   int64
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	logger *logging.Logger

	mu     sync.RWMutex
	closed bool

	hits    atomic.Uint64
	misses  atomic.Uint64
	stores  atomic.Uint64
	corrupt atomic.Uint64
}

// OpenChunkCache открывает кэш в каталоге dir
func OpenChunkCache(dir string, seed int64) (*ChunkCache, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Отключаем логирование BadgerDB
	return openChunkCache(opts, seed)
}

// OpenInMemoryChunkCache кэш без диска (тесты, одноразовые прогоны)
func OpenInMemoryChunkCache(seed int64) (*ChunkCache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openChunkCache(opts, seed)
}

func openChunkCache(opts badger.Options, seed int64) (*ChunkCache, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &ChunkCache{
		db:     db,
		seed:   seed,
		enc:    enc,
		dec:    dec,
		logger: logging.GetStorageLogger(),
	}, nil
}

func (c *ChunkCache) key(coord world.ChunkCoord) []byte {
	return []byte(fmt.Sprintf("chunk:v%d:%d:%d:%d", payloadVersion, c.seed, coord.X, coord.Z))
}

// Load заполняет чанк из кэша. Возвращает false при промахе; при
// повреждённой записи чанк не трогается и возвращается ErrCorruptPayload.
func (c *ChunkCache) Load(ch *world.Chunk) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false, ErrCacheClosed
	}

	var compressed []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(ch.Coord))
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		c.misses.Add(1)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	raw, err := c.dec.DecodeAll(compressed, make([]byte, 0, payloadSize))
	if err != nil || len(raw) != payloadSize {
		c.corrupt.Add(1)
		return false, fmt.Errorf("чанк %s: %w", ch.Coord, ErrCorruptPayload)
	}

	decodePayload(ch, raw)
	c.hits.Add(1)
	return true, nil
}

// Store сохраняет данные чанка
func (c *ChunkCache) Store(ch *world.Chunk) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrCacheClosed
	}

	data := c.enc.EncodeAll(encodePayload(ch), nil)
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(c.key(ch.Coord), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	c.stores.Add(1)
	return nil
}

// Delete удаляет запись чанка
func (c *ChunkCache) Delete(coord world.ChunkCoord) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrCacheClosed
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(c.key(coord))
	})
}

// Stats снимок счётчиков
func (c *ChunkCache) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Stores:  c.stores.Load(),
		Corrupt: c.corrupt.Load(),
	}
}

// Close закрывает базу; повторный вызов ничего не делает
func (c *ChunkCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.enc.Close()
	c.dec.Close()
	s := c.Stats()
	c.logger.Info("кэш чанков закрыт: попаданий %d, промахов %d, записей %d", s.Hits, s.Misses, s.Stores)
	return c.db.Close()
}

// encodePayload раскладывает чанк в плоский буфер: блоки, свет (LE),
// биомы, высоты (LE)
func encodePayload(ch *world.Chunk) []byte {
	buf := make([]byte, payloadSize)
	off := 0
	for _, id := range ch.Blocks {
		buf[off] = byte(id)
		off++
	}
	for _, l := range ch.Light {
		binary.LittleEndian.PutUint16(buf[off:], uint16(l))
		off += 2
	}
	for _, b := range ch.Biomes {
		buf[off] = byte(b)
		off++
	}
	for _, h := range ch.Heights {
		binary.LittleEndian.PutUint16(buf[off:], uint16(h))
		off += 2
	}
	return buf
}

func decodePayload(ch *world.Chunk, raw []byte) {
	off := 0
	for i := range ch.Blocks {
		ch.Blocks[i] = block.BlockID(raw[off])
		off++
	}
	for i := range ch.Light {
		ch.Light[i] = world.Light(binary.LittleEndian.Uint16(raw[off:]))
		off += 2
	}
	for i := range ch.Biomes {
		ch.Biomes[i] = world.Biome(raw[off])
		off++
	}
	for i := range ch.Heights {
		ch.Heights[i] = int16(binary.LittleEndian.Uint16(raw[off:]))
		off += 2
	}
}
