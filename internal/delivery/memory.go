package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/invora/internal/clock"
)

type delayedTask struct {
	task    Task
	readyAt time.Time
}

// MemoryQueue is the in-process Queue used by tests and redis-less
// deployments. FIFO for ready tasks; delayed tasks are promoted on
// Dequeue once due.
type MemoryQueue struct {
	clock clock.Clock

	mu      sync.Mutex
	ready   []Task
	delayed []delayedTask
	dead    []Task
}

func NewMemoryQueue(c clock.Clock) *MemoryQueue {
	return &MemoryQueue{clock: c}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = append(q.ready, task)
	return nil
}

func (q *MemoryQueue) EnqueueAfter(ctx context.Context, task Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, delayedTask{task: task, readyAt: q.clock.Now().Add(delay)})
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	remaining := q.delayed[:0]
	for _, d := range q.delayed {
		if !d.readyAt.After(now) {
			q.ready = append(q.ready, d.task)
		} else {
			remaining = append(remaining, d)
		}
	}
	q.delayed = remaining

	if len(q.ready) == 0 {
		return nil, nil
	}
	task := q.ready[0]
	q.ready = q.ready[1:]
	return &task, nil
}

func (q *MemoryQueue) DeadLetter(ctx context.Context, task Task, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, task)
	return nil
}

// DeadTasks exposes the dead-letter list for tests.
func (q *MemoryQueue) DeadTasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.dead...)
}
