package gpu

import (
	"fmt"
	"sync"
)

// DrawCall запись об одном вызове отрисовки
type DrawCall struct {
	Buffer      Handle
	VertexCount int
	FirstVertex int
	Frame       uint64
}

// Memory безголовая реализация GPU поверх байтовых срезов.
// Используется в тестах и в консольном драйвере.
type Memory struct {
	mu        sync.Mutex
	next      Handle
	buffers   map[Handle][]byte
	frame     uint64
	draws     []DrawCall
	waitIdles int

	// FailCreate, если задан, вызывается перед созданием буфера
	FailCreate func(size int) error
}

// NewMemory создаёт пустое безголовое устройство
func NewMemory() *Memory {
	return &Memory{
		next:    1,
		buffers: make(map[Handle][]byte),
	}
}

// CreateBuffer выделяет буфер заданного размера
func (m *Memory) CreateBuffer(size int, usage Usage) (Handle, error) {
	if size <= 0 {
		return 0, fmt.Errorf("некорректный размер буфера %d", size)
	}
	if m.FailCreate != nil {
		if err := m.FailCreate(size); err != nil {
			return 0, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.next
	m.next++
	m.buffers[h] = make([]byte, size)
	return h, nil
}

// DestroyBuffer освобождает буфер; неизвестный handle игнорируется
func (m *Memory) DestroyBuffer(h Handle) {
	m.mu.Lock()
	delete(m.buffers, h)
	m.mu.Unlock()
}

// UpdateBuffer копирует данные в буфер по смещению
func (m *Memory) UpdateBuffer(h Handle, offset int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.buffers[h]
	if !ok {
		return fmt.Errorf("буфер %d: %w", h, ErrInvalidHandle)
	}
	if offset < 0 || offset+len(data) > len(buf) {
		return fmt.Errorf("буфер %d [%d, %d) размер %d: %w", h, offset, offset+len(data), len(buf), ErrOutOfRange)
	}
	copy(buf[offset:], data)
	return nil
}

// Draw регистрирует вызов отрисовки в текущем кадре
func (m *Memory) Draw(h Handle, vertexCount, firstVertex int) {
	m.mu.Lock()
	m.draws = append(m.draws, DrawCall{Buffer: h, VertexCount: vertexCount, FirstVertex: firstVertex, Frame: m.frame})
	m.mu.Unlock()
}

// FrameIndex номер текущего кадра
func (m *Memory) FrameIndex() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame
}

// WaitIdle в безголовом режиме только считает вызовы
func (m *Memory) WaitIdle() {
	m.mu.Lock()
	m.waitIdles++
	m.mu.Unlock()
}

// EndFrame завершает кадр и возвращает вызовы отрисовки этого кадра
func (m *Memory) EndFrame() []DrawCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	draws := m.draws
	m.draws = nil
	m.frame++
	return draws
}

// Read возвращает копию участка буфера
func (m *Memory) Read(h Handle, offset, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.buffers[h]
	if !ok {
		return nil, fmt.Errorf("буфер %d: %w", h, ErrInvalidHandle)
	}
	if offset < 0 || offset+n > len(buf) {
		return nil, fmt.Errorf("буфер %d: %w", h, ErrOutOfRange)
	}
	out := make([]byte, n)
	copy(out, buf[offset:offset+n])
	return out, nil
}

// BufferCount количество живых буферов
func (m *Memory) BufferCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffers)
}

// WaitIdleCalls количество вызовов WaitIdle
func (m *Memory) WaitIdleCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waitIdles
}
