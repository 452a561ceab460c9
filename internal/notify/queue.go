package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Queue is a bounded best-effort task queue with a logging sink. The turn
// pipeline enqueues deliveries and moves on; a single worker drains the
// queue so notification ordering stays deterministic. When the queue is
// full the task is dropped and logged; Enqueue never blocks the caller.
type Queue struct {
	tasks chan task
	wg    sync.WaitGroup

	// taskTimeout bounds one delivery attempt end to end.
	taskTimeout time.Duration

	closeOnce sync.Once
}

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// NewQueue starts a queue with the given capacity and per-task timeout.
func NewQueue(size int, taskTimeout time.Duration) *Queue {
	if size < 1 {
		size = 1
	}
	if taskTimeout <= 0 {
		taskTimeout = 10 * time.Second
	}
	q := &Queue{
		tasks:       make(chan task, size),
		taskTimeout: taskTimeout,
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue schedules a delivery. It never blocks: when the queue is full the
// task is dropped with a warning and Enqueue returns false.
func (q *Queue) Enqueue(name string, fn func(ctx context.Context) error) bool {
	select {
	case q.tasks <- task{name: name, fn: fn}:
		return true
	default:
		log.Warn().Str("task", name).Msg("notify: queue full, delivery dropped")
		return false
	}
}

// Close stops accepting tasks, drains what is already queued, and waits for
// the worker to finish.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.tasks)
	})
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()
	for t := range q.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), q.taskTimeout)
		if err := t.fn(ctx); err != nil {
			log.Error().Str("task", t.name).Err(err).Msg("notify: delivery failed")
		}
		cancel()
	}
}
