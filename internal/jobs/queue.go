package jobs

import (
	"container/heap"
	"sync"
)

// jobHeap min-куча по приоритету; при равенстве - порядок постановки
type jobHeap []Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(Job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	*h = old[:n-1]
	return job
}

// Queue потокобезопасная очередь заданий с приоритетом
type Queue struct {
	mu  sync.Mutex
	h   jobHeap
	seq uint64
}

// NewQueue создаёт пустую очередь
func NewQueue() *Queue {
	return &Queue{}
}

// Push добавляет задание за O(log n)
func (q *Queue) Push(job Job) {
	q.mu.Lock()
	q.pushLocked(job)
	q.mu.Unlock()
}

func (q *Queue) pushLocked(job Job) {
	q.seq++
	job.seq = q.seq
	heap.Push(&q.h, job)
}

// Pop извлекает задание с наименьшим приоритетом
func (q *Queue) Pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue) popLocked() (Job, bool) {
	if len(q.h) == 0 {
		return Job{}, false
	}
	return heap.Pop(&q.h).(Job), true
}

// Len количество заданий
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// Drain извлекает все задания в порядке приоритета
func (q *Queue) Drain() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drainLocked()
}

func (q *Queue) drainLocked() []Job {
	out := make([]Job, 0, len(q.h))
	for len(q.h) > 0 {
		out = append(out, heap.Pop(&q.h).(Job))
	}
	return out
}
