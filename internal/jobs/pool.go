package jobs

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/annel0/chunkstream/internal/logging"
)

// ErrPoolClosed пул остановлен
var ErrPoolClosed = errors.New("пул воркеров остановлен")

// Executor выполняет задания пула. Execute обязан сам проверить
// актуальность задания (токен, радиус) и периодически смотреть на abort.
type Executor interface {
	Execute(job Job, abort *atomic.Bool)
	// Abandon вызывается для заданий, снятых с очереди паузой или остановкой
	Abandon(job Job)
}

// Stats снимок состояния пула
type Stats struct {
	Name      string `json:"name"`
	Workers   int    `json:"workers"`
	Queued    int    `json:"queued"`
	Active    int    `json:"active"`
	Paused    bool   `json:"paused"`
	Executed  uint64 `json:"executed"`
	Abandoned uint64 `json:"abandoned"`
}

// Pool фиксированный пул воркеров над общей очередью с приоритетом
type Pool struct {
	name    string
	workers int
	exec    Executor
	logger  *logging.Logger

	queue Queue
	cond  *sync.Cond // ожидание заданий

	paused bool
	closed bool
	active int

	// abort флаг отмены текущей эпохи. Пауза поднимает его и ставит новый,
	// поэтому возобновление не ждёт прерванные задания.
	abort     atomic.Pointer[atomic.Bool]
	executed  atomic.Uint64
	abandoned atomic.Uint64

	wg sync.WaitGroup
}

// NewPool запускает workers воркеров, выполняющих задания через exec
func NewPool(name string, workers int, exec Executor) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		name:    name,
		workers: workers,
		exec:    exec,
		logger:  logging.GetComponentLogger("jobs"),
	}
	p.cond = sync.NewCond(&p.queue.mu)
	p.abort.Store(new(atomic.Bool))

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Name имя пула
func (p *Pool) Name() string {
	return p.name
}

// Push ставит задание в очередь; безопасен из любой горутины
func (p *Pool) Push(job Job) error {
	p.queue.mu.Lock()
	defer p.queue.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	p.queue.pushLocked(job)
	if !p.paused {
		p.cond.Signal()
	}
	return nil
}

// SetPaused останавливает или возобновляет выдачу заданий и никогда не
// ждёт воркеров. Пауза снимает все задания с очереди через Abandon и
// поднимает флаг отмены выполняющихся; задания, взятые после
// возобновления, получают новый флаг.
func (p *Pool) SetPaused(paused bool) {
	p.queue.mu.Lock()
	if p.closed || p.paused == paused {
		p.queue.mu.Unlock()
		return
	}

	if paused {
		p.paused = true
		p.abort.Swap(new(atomic.Bool)).Store(true)
		dropped := p.queue.drainLocked()
		p.queue.mu.Unlock()

		for _, job := range dropped {
			p.exec.Abandon(job)
		}
		p.abandoned.Add(uint64(len(dropped)))
		p.logger.Debug("пул %s приостановлен, снято заданий: %d", p.name, len(dropped))
		return
	}

	p.paused = false
	p.cond.Broadcast()
	p.queue.mu.Unlock()
	p.logger.Debug("пул %s возобновлён", p.name)
}

// Paused сообщает, приостановлен ли пул
func (p *Pool) Paused() bool {
	p.queue.mu.Lock()
	defer p.queue.mu.Unlock()
	return p.paused
}

// Len количество заданий в очереди
func (p *Pool) Len() int {
	return p.queue.Len()
}

// Active количество выполняющихся заданий
func (p *Pool) Active() int {
	p.queue.mu.Lock()
	defer p.queue.mu.Unlock()
	return p.active
}

// Stats снимок состояния пула
func (p *Pool) Stats() Stats {
	p.queue.mu.Lock()
	defer p.queue.mu.Unlock()
	return Stats{
		Name:      p.name,
		Workers:   p.workers,
		Queued:    len(p.queue.h),
		Active:    p.active,
		Paused:    p.paused,
		Executed:  p.executed.Load(),
		Abandoned: p.abandoned.Load(),
	}
}

// Close останавливает воркеров; задания из очереди снимаются через Abandon
func (p *Pool) Close() {
	p.queue.mu.Lock()
	if p.closed {
		p.queue.mu.Unlock()
		return
	}
	p.closed = true
	p.abort.Load().Store(true)
	dropped := p.queue.drainLocked()
	p.cond.Broadcast()
	p.queue.mu.Unlock()

	for _, job := range dropped {
		p.exec.Abandon(job)
	}
	p.abandoned.Add(uint64(len(dropped)))
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		p.queue.mu.Lock()
		for !p.closed && (p.paused || len(p.queue.h) == 0) {
			p.cond.Wait()
		}
		if p.closed {
			p.queue.mu.Unlock()
			return
		}
		job, _ := p.queue.popLocked()
		abort := p.abort.Load()
		p.active++
		p.queue.mu.Unlock()

		p.run(id, job, abort)

		p.queue.mu.Lock()
		p.active--
		p.queue.mu.Unlock()
	}
}

// run выполняет задание; паника исполнителя не роняет пул
func (p *Pool) run(id int, job Job, abort *atomic.Bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("пул %s воркер %d: паника в задании %s: %v", p.name, id, job, r)
			p.exec.Abandon(job)
		}
	}()

	p.exec.Execute(job, abort)
	p.executed.Add(1)
}
