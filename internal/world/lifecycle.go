package world

import "sync/atomic"

// State состояние чанка (или региона LOD) в конвейере
type State int32

const (
	StateMissing State = iota
	StateGenerating
	StateGenerated
	StateMeshing
	StateMeshReady
	StateUploading
	StateRenderable
	StateUnloading
)

// StateCount количество состояний
const StateCount = int(StateUnloading) + 1

func (s State) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateGenerating:
		return "generating"
	case StateGenerated:
		return "generated"
	case StateMeshing:
		return "meshing"
	case StateMeshReady:
		return "mesh_ready"
	case StateUploading:
		return "uploading"
	case StateRenderable:
		return "renderable"
	case StateUnloading:
		return "unloading"
	default:
		return "unknown"
	}
}

// HasData сообщает, что данные вокселей уже сгенерированы
func (s State) HasData() bool {
	return s >= StateGenerated && s <= StateRenderable
}

// Lifecycle общие поля конвейера: состояние, токен задания, флаг
// перестроения и счётчик закреплений. Все операции атомарны.
type Lifecycle struct {
	state atomic.Int32
	token atomic.Uint64
	dirty atomic.Bool
	pins  atomic.Int32
}

// State текущее состояние
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

// CompareAndSwapState атомарно переводит from -> to
func (l *Lifecycle) CompareAndSwapState(from, to State) bool {
	return l.state.CompareAndSwap(int32(from), int32(to))
}

// SetState безусловно задаёт состояние. Только для владельца объекта
// (вставка в хранилище, выселение под блокировкой записи).
func (l *Lifecycle) SetState(s State) {
	l.state.Store(int32(s))
}

// Token текущий токен заданий
func (l *Lifecycle) Token() uint64 {
	return l.token.Load()
}

// Recycle выдаёт новый токен; задания со старым токеном становятся устаревшими
func (l *Lifecycle) Recycle(newToken uint64) {
	l.token.Store(newToken)
}

// MarkDirty помечает объект для перестроения меша
func (l *Lifecycle) MarkDirty() {
	l.dirty.Store(true)
}

// TakeDirty сбрасывает флаг и возвращает прежнее значение
func (l *Lifecycle) TakeDirty() bool {
	return l.dirty.Swap(false)
}

// Dirty текущее значение флага
func (l *Lifecycle) Dirty() bool {
	return l.dirty.Load()
}

// Pin увеличивает счётчик закреплений
func (l *Lifecycle) Pin() {
	l.pins.Add(1)
}

// Unpin уменьшает счётчик закреплений
func (l *Lifecycle) Unpin() {
	l.pins.Add(-1)
}

// Pins текущее число закреплений
func (l *Lifecycle) Pins() int32 {
	return l.pins.Load()
}

// Pinned сообщает, закреплён ли объект
func (l *Lifecycle) Pinned() bool {
	return l.pins.Load() > 0
}

// MidJob сообщает, что над объектом выполняется задание
func (l *Lifecycle) MidJob() bool {
	switch l.State() {
	case StateGenerating, StateMeshing, StateUploading:
		return true
	}
	return false
}

// Life возвращает сам Lifecycle; позволяет встраивающим типам
// удовлетворять интерфейсу Resident
func (l *Lifecycle) Life() *Lifecycle {
	return l
}
