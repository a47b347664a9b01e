package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrBusClosed шина остановлена
var ErrBusClosed = errors.New("шина событий закрыта")

// Типы событий конвейера
const (
	TypeChunkRenderable  = "chunk.renderable"
	TypeChunkEvicted     = "chunk.evicted"
	TypeChunkFailed      = "chunk.failed"
	TypeArenaOOM         = "arena.oom"
	TypeRegionRenderable = "lod.region_renderable"
	TypeRegionFreed      = "lod.region_freed"
)

// Приоритеты событий. Начиная с PriorityCritical публикация при полном
// буфере ждёт места, события ниже отбрасываются.
const (
	PriorityLow      = 0
	PriorityNormal   = 1
	PriorityHigh     = 3
	PriorityCritical = 5
)

// Envelope конверт события
type Envelope struct {
	ID        string    // UUID
	Timestamp time.Time // UTC
	Source    string    // экземпляр стримера или менеджер LOD
	EventType string
	Priority  int
	Payload   []byte // JSON
}

// ChunkEvent полезная нагрузка событий чанков и регионов
type ChunkEvent struct {
	X     int32  `json:"x"`
	Z     int32  `json:"z"`
	Level int    `json:"level"`
	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

// ArenaEvent полезная нагрузка события нехватки памяти арены
type ArenaEvent struct {
	Arena     string `json:"arena"`
	Requested int    `json:"requested"`
	Free      int    `json:"free"`
	Largest   int    `json:"largest"`
}

// NewEnvelope создаёт конверт с новым UUID и сериализованной нагрузкой
func NewEnvelope(source, eventType string, priority int, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("сериализация %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// Decode разбирает нагрузку события в out
func (e *Envelope) Decode(out any) error {
	return json.Unmarshal(e.Payload, out)
}

// Filter отбор событий подписчика; пустой список пропускает всё
type Filter struct {
	Types   []string
	Sources []string
}

func (f Filter) matches(ev *Envelope) bool {
	return (len(f.Types) == 0 || slices.Contains(f.Types, ev.EventType)) &&
		(len(f.Sources) == 0 || slices.Contains(f.Sources, ev.Source))
}

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64 `json:"published"`
	Consumed  uint64 `json:"consumed"`
	Dropped   uint64 `json:"dropped"`
	InFlight  int    `json:"in_flight"`
}

// EventBus определяет абстракцию шины событий.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close()
}

type memoryBus struct {
	mu          sync.RWMutex // подписчики
	subscribers map[int]subscriber
	nextID      int

	sendMu   sync.RWMutex // closed и запись в buffer
	closed   bool
	buffer   chan *Envelope
	capacity int

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64

	done     chan struct{}
	handlers sync.WaitGroup
}

type subscriber struct {
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewMemoryBus создаёт in-memory Bus с указанным буфером.
func NewMemoryBus(capacity int) EventBus {
	if capacity < 1 {
		capacity = 1
	}
	mb := &memoryBus{
		subscribers: make(map[int]subscriber),
		buffer:      make(chan *Envelope, capacity),
		capacity:    capacity,
		done:        make(chan struct{}),
	}
	go mb.dispatchLoop()
	return mb
}

func (mb *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	mb.sendMu.RLock()
	defer mb.sendMu.RUnlock()
	if mb.closed {
		return ErrBusClosed
	}

	select {
	case mb.buffer <- ev:
		mb.published.Add(1)
		return nil
	default:
		if ev.Priority < PriorityCritical {
			mb.dropped.Add(1)
			return nil
		}
		select {
		case mb.buffer <- ev:
			mb.published.Add(1)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (mb *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	mb.sendMu.RLock()
	closed := mb.closed
	mb.sendMu.RUnlock()
	if closed {
		return nil, ErrBusClosed
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()

	id := mb.nextID
	mb.nextID++
	cctx, cancel := context.WithCancel(ctx)
	mb.subscribers[id] = subscriber{filter: f, handler: h, ctx: cctx, cancel: cancel}

	return &memSub{bus: mb, id: id}, nil
}

func (mb *memoryBus) Metrics() Stats {
	return Stats{
		Published: mb.published.Load(),
		Consumed:  mb.consumed.Load(),
		Dropped:   mb.dropped.Load(),
		InFlight:  len(mb.buffer),
	}
}

// Close перестаёт принимать события, доставляет уже принятые и ждёт
// завершения обработчиков.
func (mb *memoryBus) Close() {
	mb.sendMu.Lock()
	if mb.closed {
		mb.sendMu.Unlock()
		return
	}
	mb.closed = true
	close(mb.buffer)
	mb.sendMu.Unlock()

	<-mb.done
	mb.handlers.Wait()

	mb.mu.Lock()
	for id, sub := range mb.subscribers {
		sub.cancel()
		delete(mb.subscribers, id)
	}
	mb.mu.Unlock()
}

// dispatchLoop рассылает события подписчикам.
func (mb *memoryBus) dispatchLoop() {
	defer close(mb.done)

	for ev := range mb.buffer {
		ev := ev
		mb.mu.RLock()
		subs := make([]subscriber, 0, len(mb.subscribers))
		for _, sub := range mb.subscribers {
			subs = append(subs, sub)
		}
		mb.mu.RUnlock()

		for _, sub := range subs {
			if !sub.filter.matches(ev) {
				continue
			}
			mb.handlers.Add(1)
			go func(s subscriber) {
				defer mb.handlers.Done()
				select {
				case <-s.ctx.Done():
					return
				default:
					s.handler(s.ctx, ev)
					mb.consumed.Add(1)
				}
			}(sub)
		}
	}
}

type memSub struct {
	bus *memoryBus
	id  int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		sub.cancel()
		delete(s.bus.subscribers, s.id)
	}
	s.bus.mu.Unlock()
}
