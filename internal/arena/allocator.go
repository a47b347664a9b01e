package arena

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/chunkstream/internal/geom"
	"github.com/annel0/chunkstream/internal/gpu"
	"github.com/annel0/chunkstream/internal/logging"
)

var (
	ErrOutOfMemory       = errors.New("арена: недостаточно памяти")
	ErrOverlappingFree   = errors.New("арена: освобождение пересекается со свободным блоком")
	ErrUnknownAllocation = errors.New("арена: неизвестная аллокация")
	ErrClosed            = errors.New("арена закрыта")
)

// Allocation участок арены с вершинами одного меша
type Allocation struct {
	Buffer gpu.Handle
	Offset int // в байтах
	Size   int // в байтах
	Count  int // количество вершин
}

// FirstVertex индекс первой вершины для вызова отрисовки
func (a Allocation) FirstVertex() int {
	return a.Offset / geom.VertexStride
}

// IsZero сообщает, что аллокация пуста
func (a Allocation) IsZero() bool {
	return a.Size == 0
}

// FreeBlock свободный участок арены
type FreeBlock struct {
	Offset int
	Size   int
}

// End смещение сразу за блоком
func (b FreeBlock) End() int {
	return b.Offset + b.Size
}

func (b FreeBlock) overlaps(o FreeBlock) bool {
	return b.Offset < o.End() && o.Offset < b.End()
}

// Options параметры арены
type Options struct {
	Name           string
	Capacity       int
	FramesInFlight int
	Logger         *logging.Logger
}

// Stats снимок состояния арены
type Stats struct {
	Name          string `json:"name"`
	Capacity      int    `json:"capacity"`
	UsedBytes     int    `json:"used_bytes"`
	FreeBytes     int    `json:"free_bytes"`
	PendingBytes  int    `json:"pending_bytes"`
	LargestFree   int    `json:"largest_free"`
	FreeBlocks    int    `json:"free_blocks"`
	Live          int    `json:"live"`
	Allocations   uint64 `json:"allocations"`
	Frees         uint64 `json:"frees"`
	OOMs          uint64 `json:"ooms"`
	RejectedFrees uint64 `json:"rejected_frees"`
}

// Allocator арена вершин поверх одного большого GPU буфера с best-fit списком
// свободных блоков. Освобождение откладывается до завершения кадра, в
// котором оно запрошено.
type Allocator struct {
	mu     sync.Mutex
	gpu    gpu.GPU
	logger *logging.Logger
	name   string

	buffer   gpu.Handle
	capacity int
	closed   bool

	free []FreeBlock // отсортирован по Offset, без пересечений и смежных блоков
	live map[int]int // offset -> size выданных аллокаций

	framesInFlight int
	pending        [][]FreeBlock // по слотам кадров
	slotFrame      []uint64
	slotUsed       []bool

	scratch []byte

	allocs   uint64
	frees    uint64
	ooms     uint64
	rejected uint64
}

// New создаёт арену и выделяет под неё GPU буфер
func New(g gpu.GPU, opts Options) (*Allocator, error) {
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("арена %s: некорректная ёмкость %d", opts.Name, opts.Capacity)
	}
	if opts.FramesInFlight < 1 {
		opts.FramesInFlight = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetArenaLogger()
	}

	h, err := g.CreateBuffer(opts.Capacity, gpu.UsageVertex)
	if err != nil {
		return nil, fmt.Errorf("арена %s: создание буфера: %w", opts.Name, err)
	}

	a := &Allocator{
		gpu:            g,
		logger:         opts.Logger,
		name:           opts.Name,
		buffer:         h,
		capacity:       opts.Capacity,
		free:           []FreeBlock{{Offset: 0, Size: opts.Capacity}},
		live:           make(map[int]int),
		framesInFlight: opts.FramesInFlight,
		pending:        make([][]FreeBlock, opts.FramesInFlight),
		slotFrame:      make([]uint64, opts.FramesInFlight),
		slotUsed:       make([]bool, opts.FramesInFlight),
	}
	return a, nil
}

// Buffer GPU буфер арены
func (a *Allocator) Buffer() gpu.Handle {
	return a.buffer
}

// Capacity ёмкость арены в байтах
func (a *Allocator) Capacity() int {
	return a.capacity
}

// Allocate размещает вершины в арене и записывает их в GPU буфер.
// Пустой срез даёт нулевую аллокацию без ошибки.
func (a *Allocator) Allocate(vertices []geom.Vertex) (Allocation, error) {
	if len(vertices) == 0 {
		return Allocation{}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.scratch = geom.EncodeVertices(a.scratch[:0], vertices)
	return a.allocateLocked(a.scratch, len(vertices))
}

// AllocateBytes размещает заранее закодированные данные
func (a *Allocator) AllocateBytes(data []byte, count int) (Allocation, error) {
	if len(data) == 0 {
		return Allocation{}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocateLocked(data, count)
}

func (a *Allocator) allocateLocked(data []byte, count int) (Allocation, error) {
	if a.closed {
		return Allocation{}, ErrClosed
	}

	size := len(data)
	idx := a.bestFit(size)
	if idx < 0 {
		a.ooms++
		total, largest := a.freeSummary()
		a.logger.Warn("арена %s: нет блока для %d байт (свободно %d, крупнейший блок %d, ожидают освобождения %d)",
			a.name, size, total, largest, a.pendingBytes())
		return Allocation{}, fmt.Errorf("%w: запрошено %d, свободно %d, крупнейший блок %d",
			ErrOutOfMemory, size, total, largest)
	}

	blk := a.free[idx]
	offset := blk.Offset
	if blk.Size == size {
		a.free = append(a.free[:idx], a.free[idx+1:]...)
	} else {
		a.free[idx] = FreeBlock{Offset: blk.Offset + size, Size: blk.Size - size}
	}

	if err := a.gpu.UpdateBuffer(a.buffer, offset, data); err != nil {
		a.insertFree(FreeBlock{Offset: offset, Size: size})
		return Allocation{}, fmt.Errorf("арена %s: запись в буфер: %w", a.name, err)
	}

	a.live[offset] = size
	a.allocs++
	return Allocation{Buffer: a.buffer, Offset: offset, Size: size, Count: count}, nil
}

// bestFit возвращает индекс наименьшего блока, вмещающего size, или -1
func (a *Allocator) bestFit(size int) int {
	best := -1
	for i, b := range a.free {
		if b.Size < size {
			continue
		}
		if best < 0 || b.Size < a.free[best].Size {
			best = i
			if b.Size == size {
				break
			}
		}
	}
	return best
}

// Free ставит аллокацию в очередь освобождения текущего кадра. Память
// возвращается в список свободных блоков, когда этот кадр завершён.
func (a *Allocator) Free(alloc Allocation) error {
	if alloc.IsZero() {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkFreeLocked(alloc); err != nil {
		return err
	}
	delete(a.live, alloc.Offset)
	a.frees++

	frame := a.gpu.FrameIndex()
	slot := int(frame % uint64(a.framesInFlight))
	if a.slotUsed[slot] && a.slotFrame[slot] != frame {
		// слот занят кадром, который уже вышел из полёта
		a.retireSlotLocked(slot)
	}
	a.slotUsed[slot] = true
	a.slotFrame[slot] = frame
	a.pending[slot] = append(a.pending[slot], FreeBlock{Offset: alloc.Offset, Size: alloc.Size})
	return nil
}

// FreeNow освобождает аллокацию немедленно. Вызывающий обязан убедиться,
// что GPU больше не читает этот участок (например, после WaitIdle).
func (a *Allocator) FreeNow(alloc Allocation) error {
	if alloc.IsZero() {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkFreeLocked(alloc); err != nil {
		return err
	}
	delete(a.live, alloc.Offset)
	a.frees++
	a.insertFree(FreeBlock{Offset: alloc.Offset, Size: alloc.Size})
	return nil
}

// checkFreeLocked отклоняет двойное, пересекающееся и неизвестное освобождение
func (a *Allocator) checkFreeLocked(alloc Allocation) error {
	if a.closed {
		return ErrClosed
	}

	blk := FreeBlock{Offset: alloc.Offset, Size: alloc.Size}
	if alloc.Buffer != a.buffer || blk.Offset < 0 || blk.End() > a.capacity {
		a.rejected++
		a.logger.Error("арена %s: освобождение чужого участка buffer=%d [%d, %d)", a.name, alloc.Buffer, blk.Offset, blk.End())
		return fmt.Errorf("%w: buffer=%d [%d, %d)", ErrUnknownAllocation, alloc.Buffer, blk.Offset, blk.End())
	}

	if other, ok := a.overlapLocked(blk); ok {
		a.rejected++
		a.logger.Error("арена %s: освобождение [%d, %d) пересекается со свободным [%d, %d)",
			a.name, blk.Offset, blk.End(), other.Offset, other.End())
		return fmt.Errorf("%w: [%d, %d) и [%d, %d)", ErrOverlappingFree, blk.Offset, blk.End(), other.Offset, other.End())
	}

	if size, ok := a.live[alloc.Offset]; !ok || size != alloc.Size {
		a.rejected++
		a.logger.Error("арена %s: освобождение неизвестной аллокации [%d, %d)", a.name, blk.Offset, blk.End())
		return fmt.Errorf("%w: [%d, %d)", ErrUnknownAllocation, blk.Offset, blk.End())
	}
	return nil
}

// overlapLocked ищет пересечение со свободными и ожидающими блоками
func (a *Allocator) overlapLocked(blk FreeBlock) (FreeBlock, bool) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].End() > blk.Offset })
	if i < len(a.free) && a.free[i].overlaps(blk) {
		return a.free[i], true
	}
	for _, slot := range a.pending {
		for _, p := range slot {
			if p.overlaps(blk) {
				return p, true
			}
		}
	}
	return FreeBlock{}, false
}

// Collect возвращает в список свободных блоков память кадров, вышедших из
// полёта. Вызывается раз в тик из потока, владеющего GPU.
func (a *Allocator) Collect() {
	a.mu.Lock()
	defer a.mu.Unlock()

	frame := a.gpu.FrameIndex()
	for slot := range a.pending {
		if a.slotUsed[slot] && a.slotFrame[slot]+uint64(a.framesInFlight) <= frame {
			a.retireSlotLocked(slot)
		}
	}
}

func (a *Allocator) retireSlotLocked(slot int) {
	for _, blk := range a.pending[slot] {
		a.insertFree(blk)
	}
	a.pending[slot] = a.pending[slot][:0]
	a.slotUsed[slot] = false
}

// insertFree вставляет блок в порядке смещений и сливает со смежными соседями
func (a *Allocator) insertFree(blk FreeBlock) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].Offset >= blk.Offset })
	a.free = append(a.free, FreeBlock{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = blk

	// слияние с правым соседом, пока возможно
	for i+1 < len(a.free) && a.free[i].End() == a.free[i+1].Offset {
		a.free[i].Size += a.free[i+1].Size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	// слияние с левым соседом, пока возможно
	for i > 0 && a.free[i-1].End() == a.free[i].Offset {
		a.free[i-1].Size += a.free[i].Size
		a.free = append(a.free[:i], a.free[i+1:]...)
		i--
	}
}

func (a *Allocator) freeSummary() (total, largest int) {
	for _, b := range a.free {
		total += b.Size
		if b.Size > largest {
			largest = b.Size
		}
	}
	return total, largest
}

func (a *Allocator) pendingBytes() int {
	n := 0
	for _, slot := range a.pending {
		for _, p := range slot {
			n += p.Size
		}
	}
	return n
}

// Stats возвращает снимок состояния арены
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	total, largest := a.freeSummary()
	pending := a.pendingBytes()
	return Stats{
		Name:          a.name,
		Capacity:      a.capacity,
		UsedBytes:     a.capacity - total - pending,
		FreeBytes:     total,
		PendingBytes:  pending,
		LargestFree:   largest,
		FreeBlocks:    len(a.free),
		Live:          len(a.live),
		Allocations:   a.allocs,
		Frees:         a.frees,
		OOMs:          a.ooms,
		RejectedFrees: a.rejected,
	}
}

// Blocks возвращает копию списка свободных блоков
func (a *Allocator) Blocks() []FreeBlock {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]FreeBlock, len(a.free))
	copy(out, a.free)
	return out
}

// Validate проверяет инварианты списка свободных блоков: порядок, отсутствие
// пересечений и несмежность, а также полный учёт ёмкости.
func (a *Allocator) Validate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	accounted := 0
	for i, b := range a.free {
		if b.Size <= 0 || b.Offset < 0 || b.End() > a.capacity {
			return fmt.Errorf("блок %d [%d, %d) вне арены", i, b.Offset, b.End())
		}
		if i > 0 {
			prev := a.free[i-1]
			if prev.End() > b.Offset {
				return fmt.Errorf("блоки %d и %d пересекаются", i-1, i)
			}
			if prev.End() == b.Offset {
				return fmt.Errorf("блоки %d и %d смежны, но не слиты", i-1, i)
			}
		}
		accounted += b.Size
	}
	for _, size := range a.live {
		accounted += size
	}
	accounted += a.pendingBytes()

	if accounted != a.capacity {
		return fmt.Errorf("учтено %d байт из %d", accounted, a.capacity)
	}
	return nil
}

// Close освобождает GPU буфер арены
func (a *Allocator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true
	a.gpu.DestroyBuffer(a.buffer)
	a.free = nil
	a.live = nil
	for i := range a.pending {
		a.pending[i] = nil
	}
}
