package jobs

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecutor struct {
	mu        sync.Mutex
	executed  []Job
	abandoned []Job
	started   chan Job
	release   chan struct{}
	sawAbort  atomic.Bool
	panicOn   int32
}

func (e *recordingExecutor) Execute(job Job, abort *atomic.Bool) {
	if e.started != nil {
		e.started <- job
	}
	if e.release != nil {
		<-e.release
		if abort.Load() {
			e.sawAbort.Store(true)
		}
	}
	if e.panicOn != 0 && job.X == e.panicOn {
		panic("сбой исполнителя")
	}
	e.mu.Lock()
	e.executed = append(e.executed, job)
	e.mu.Unlock()
}

func (e *recordingExecutor) Abandon(job Job) {
	e.mu.Lock()
	e.abandoned = append(e.abandoned, job)
	e.mu.Unlock()
}

func (e *recordingExecutor) snapshot() ([]Job, []Job) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Job(nil), e.executed...), append([]Job(nil), e.abandoned...)
}

func TestPool_ExecutesInPriorityOrder(t *testing.T) {
	exec := &recordingExecutor{}
	p := NewPool("test", 1, exec)
	defer p.Close()

	p.SetPaused(true)
	for _, prio := range []uint64{50, 10, 40, 20, 30} {
		require.NoError(t, p.Push(Job{X: int32(prio), Priority: prio}))
	}
	assert.Equal(t, 5, p.Len(), "Во время паузы задания копятся")
	p.SetPaused(false)

	require.Eventually(t, func() bool {
		done, _ := exec.snapshot()
		return len(done) == 5
	}, 2*time.Second, 5*time.Millisecond)

	done, _ := exec.snapshot()
	var order []int32
	for _, j := range done {
		order = append(order, j.X)
	}
	assert.Equal(t, []int32{10, 20, 30, 40, 50}, order)
	assert.Equal(t, uint64(5), p.Stats().Executed)
}

func TestPool_PauseAbandonsQueuedAndAbortsActive(t *testing.T) {
	exec := &recordingExecutor{
		started: make(chan Job, 1),
		release: make(chan struct{}),
	}
	p := NewPool("test", 1, exec)
	defer p.Close()

	require.NoError(t, p.Push(Job{X: 1, Priority: 1}))
	<-exec.started // первое задание выполняется

	require.NoError(t, p.Push(Job{X: 2, Priority: 2}))
	require.NoError(t, p.Push(Job{X: 3, Priority: 3}))

	p.SetPaused(true)
	_, abandoned := exec.snapshot()
	assert.Len(t, abandoned, 2, "Задания из очереди снимаются через Abandon")
	assert.Equal(t, 0, p.Len())
	assert.True(t, p.Paused())

	close(exec.release)
	require.Eventually(t, func() bool {
		done, _ := exec.snapshot()
		return len(done) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, exec.sawAbort.Load(), "Активное задание видит флаг отмены")

	p.SetPaused(false)
	assert.False(t, p.Paused())
	assert.Equal(t, uint64(2), p.Stats().Abandoned)
}

// epochExecutor блокирует первое задание и запоминает флаг отмены
// каждого задания
type epochExecutor struct {
	started chan Job
	release chan struct{}
	mu      sync.Mutex
	aborted map[int32]bool
}

func (e *epochExecutor) Execute(job Job, abort *atomic.Bool) {
	e.started <- job
	if job.X == 1 {
		<-e.release
	}
	e.mu.Lock()
	e.aborted[job.X] = abort.Load()
	e.mu.Unlock()
}

func (e *epochExecutor) Abandon(Job) {}

func TestPool_ResumeDoesNotWaitForActive(t *testing.T) {
	exec := &epochExecutor{
		started: make(chan Job, 4),
		release: make(chan struct{}),
		aborted: make(map[int32]bool),
	}
	p := NewPool("test", 2, exec)
	defer p.Close()

	require.NoError(t, p.Push(Job{X: 1, Priority: 1}))
	<-exec.started

	p.SetPaused(true)

	resumed := make(chan struct{})
	go func() {
		p.SetPaused(false)
		close(resumed)
	}()
	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("Возобновление не должно ждать прерванное задание")
	}
	assert.Equal(t, 1, p.Active(), "Прерванное задание ещё выполняется")

	require.NoError(t, p.Push(Job{X: 2, Priority: 2}))
	<-exec.started
	close(exec.release)

	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return len(exec.aborted) == 2
	}, 2*time.Second, 5*time.Millisecond)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	assert.True(t, exec.aborted[1], "Задание прошлой эпохи отменено")
	assert.False(t, exec.aborted[2], "Новое задание получает чистый флаг")
}

func TestPool_CloseRejectsPush(t *testing.T) {
	exec := &recordingExecutor{}
	p := NewPool("test", 2, exec)
	p.SetPaused(true)
	require.NoError(t, p.Push(Job{X: 9}))
	p.Close()

	assert.ErrorIs(t, p.Push(Job{X: 10}), ErrPoolClosed)
	_, abandoned := exec.snapshot()
	assert.Len(t, abandoned, 1, "Close снимает оставшиеся задания")
}

func TestPool_PanicDoesNotKillWorker(t *testing.T) {
	exec := &recordingExecutor{panicOn: 1}
	p := NewPool("test", 1, exec)
	defer p.Close()

	p.SetPaused(true)
	require.NoError(t, p.Push(Job{X: 1, Priority: 1}))
	require.NoError(t, p.Push(Job{X: 2, Priority: 2}))
	p.SetPaused(false)

	require.Eventually(t, func() bool {
		done, abandoned := exec.snapshot()
		return len(done) == 1 && len(abandoned) == 1
	}, 2*time.Second, 5*time.Millisecond)
	done, _ := exec.snapshot()
	assert.Equal(t, int32(2), done[0].X)
}
