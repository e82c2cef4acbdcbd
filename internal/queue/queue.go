// Package queue holds submitted batches until the single worker takes them.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrQueueClosed = errors.New("queue is closed")
	ErrQueueFull   = errors.New("queue is full")
)

// Task is one submitted batch of source URLs.
type Task struct {
	ID        string
	URLs      []string
	Priority  int
	CreatedAt time.Time

	seq   uint64
	index int
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Remove(id string) bool
	Size() int
	Close() error
}

// taskHeap orders by priority, highest first, then by submission order.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	task := x.(*Task)
	task.index = len(*h)
	*h = append(*h, task)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*h = old[:n-1]
	return task
}

// InMemoryQueue is a bounded priority queue. Pop waits on a one-slot wake-up
// channel, so any number of pushes while nobody waits costs one signal.
type InMemoryQueue struct {
	mu      sync.Mutex
	tasks   taskHeap
	byID    map[string]*Task
	nextSeq uint64
	maxSize int
	wake    chan struct{}
	done    chan struct{}
	closed  bool
}

// NewInMemoryQueue returns a queue holding at most maxSize tasks; zero means unbounded.
func NewInMemoryQueue(maxSize int) *InMemoryQueue {
	return &InMemoryQueue{
		byID:    make(map[string]*Task),
		maxSize: maxSize,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case q.closed:
		return ErrQueueClosed
	case q.maxSize > 0 && q.tasks.Len() >= q.maxSize:
		return ErrQueueFull
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	task.seq = q.nextSeq
	q.nextSeq++

	heap.Push(&q.tasks, task)
	q.byID[task.ID] = task
	q.notify()
	return nil
}

// Pop returns the next task, waiting until one is pushed. Queued tasks are
// drained even after Close; an empty closed queue returns ErrQueueClosed.
func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if q.tasks.Len() > 0 {
			task := heap.Pop(&q.tasks).(*Task)
			delete(q.byID, task.ID)
			if q.tasks.Len() > 0 {
				q.notify()
			}
			q.mu.Unlock()
			return task, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		case <-q.done:
		}
	}
}

// Remove drops a queued task. It reports false when the task was already
// taken or never queued.
func (q *InMemoryQueue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.tasks, task.index)
	delete(q.byID, id)
	return true
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len()
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

// notify must be called with mu held.
func (q *InMemoryQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
