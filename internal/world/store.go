package world

import (
	"sync"
	"sync/atomic"
)

// Resident объект хранилища с жизненным циклом конвейера
type Resident interface {
	Life() *Lifecycle
}

// Lease закрепление объекта на время работы задания. Пока аренда не
// освобождена, выселение объект не удалит. Повторный Release ничего не делает.
type Lease struct {
	life     *Lifecycle
	released atomic.Bool
}

func newLease(l *Lifecycle) *Lease {
	l.Pin()
	return &Lease{life: l}
}

// Release снимает закрепление
func (l *Lease) Release() {
	if l == nil {
		return
	}
	if l.released.CompareAndSwap(false, true) {
		l.life.Unpin()
	}
}

// ReleaseAll освобождает набор аренд
func ReleaseAll(leases []*Lease) {
	for _, l := range leases {
		l.Release()
	}
}

// Store конкурентная карта объектов конвейера под RWMutex. Токены заданий
// выдаются из общего монотонного счётчика, поэтому пересозданный объект
// никогда не получит токен своего предшественника.
type Store[K comparable, T Resident] struct {
	mu     sync.RWMutex
	items  map[K]T
	create func(K) T
	tokens atomic.Uint64
}

// NewStore создаёт хранилище с фабрикой объектов
func NewStore[K comparable, T Resident](create func(K) T) *Store[K, T] {
	return &Store[K, T]{
		items:  make(map[K]T),
		create: create,
	}
}

// NextToken выдаёт новый уникальный токен
func (s *Store[K, T]) NextToken() uint64 {
	return s.tokens.Add(1)
}

// GetOrCreate возвращает объект, создавая его в состоянии missing при
// первом обращении. created сообщает, был ли объект создан этим вызовом.
func (s *Store[K, T]) GetOrCreate(key K) (item T, created bool) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		return item, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Проверяем ещё раз под блокировкой записи
	if item, ok = s.items[key]; ok {
		return item, false
	}
	item = s.create(key)
	item.Life().SetState(StateMissing)
	item.Life().Recycle(s.NextToken())
	s.items[key] = item
	return item, true
}

// Get возвращает объект, если он есть
func (s *Store[K, T]) Get(key K) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	return item, ok
}

// Pin находит объект и закрепляет его под блокировкой чтения, так что
// выселение не может произойти между поиском и закреплением.
func (s *Store[K, T]) Pin(key K) (T, *Lease, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[key]
	if !ok {
		var zero T
		return zero, nil, false
	}
	return item, newLease(item.Life()), true
}

// ForEach обходит объекты под блокировкой чтения; fn возвращает false для
// остановки. Внутри fn нельзя вызывать методы, берущие блокировку записи.
func (s *Store[K, T]) ForEach(fn func(key K, item T) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for k, v := range s.items {
		if !fn(k, v) {
			return
		}
	}
}

// Snapshot копия всех объектов
func (s *Store[K, T]) Snapshot() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, 0, len(s.items))
	for _, v := range s.items {
		out = append(out, v)
	}
	return out
}

// Keys копия всех ключей
func (s *Store[K, T]) Keys() []K {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]K, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	return out
}

// Len количество объектов
func (s *Store[K, T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Remove выселяет объект под блокировкой записи, только если он не
// закреплён, над ним не выполняется задание и pred (если задан) разрешает.
// Удалённый объект переводится в unloading с новым токеном.
func (s *Store[K, T]) Remove(key K, pred func(T) bool) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	item, ok := s.items[key]
	if !ok {
		return zero, false
	}
	life := item.Life()
	if life.Pinned() || life.MidJob() {
		return zero, false
	}
	if pred != nil && !pred(item) {
		return zero, false
	}

	life.SetState(StateUnloading)
	life.Recycle(s.NextToken())
	delete(s.items, key)
	return item, true
}

// ChunkStore хранилище чанков полной детализации
type ChunkStore struct {
	*Store[ChunkCoord, *Chunk]
}

// NewChunkStore создаёт пустое хранилище чанков
func NewChunkStore() *ChunkStore {
	return &ChunkStore{Store: NewStore[ChunkCoord, *Chunk](NewChunk)}
}

// Neighbors возвращает четырёх горизонтальных соседей (nil для отсутствующих)
// в порядке NeighborPosX, NeighborNegX, NeighborPosZ, NeighborNegZ
func (s *ChunkStore) Neighbors(c ChunkCoord) [4]*Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out [4]*Chunk
	for dir := range out {
		out[dir] = s.items[c.Neighbor(dir)]
	}
	return out
}

// PinNeighbors закрепляет присутствующих соседей
func (s *ChunkStore) PinNeighbors(c ChunkCoord) ([4]*Chunk, []*Lease) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out [4]*Chunk
	leases := make([]*Lease, 0, 4)
	for dir := range out {
		if n, ok := s.items[c.Neighbor(dir)]; ok {
			out[dir] = n
			leases = append(leases, newLease(n.Life()))
		}
	}
	return out, leases
}
