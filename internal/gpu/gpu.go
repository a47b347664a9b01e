package gpu

import "errors"

// Handle идентификатор буфера на стороне GPU
type Handle uint32

// Usage назначение буфера
type Usage uint8

const (
	UsageVertex Usage = iota
	UsageIndex
)

var (
	ErrInvalidHandle = errors.New("неизвестный буфер")
	ErrOutOfRange    = errors.New("запись за пределы буфера")
)

// GPU возможности графического бэкенда, которые использует конвейер.
// Все вызовы выполняются только из потока, владеющего GPU.
type GPU interface {
	CreateBuffer(size int, usage Usage) (Handle, error)
	DestroyBuffer(h Handle)
	UpdateBuffer(h Handle, offset int, data []byte) error
	Draw(h Handle, vertexCount, firstVertex int)
	// FrameIndex номер текущего кадра; используется для отложенного освобождения
	FrameIndex() uint64
	// WaitIdle блокирует до завершения всех команд; не для горячего пути
	WaitIdle()
}
