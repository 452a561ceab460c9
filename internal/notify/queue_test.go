package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueue_RunsTasksInOrder(t *testing.T) {
	q := NewQueue(8, time.Second)

	var mu sync.Mutex
	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		if !q.Enqueue("task", func(ctx context.Context) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	q.Close()

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("tasks out of order: %v", got)
	}
}

func TestQueue_DropsWhenFull(t *testing.T) {
	q := NewQueue(1, time.Second)
	defer q.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	q.Enqueue("blocker", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	// One slot buffers, anything beyond that is dropped without blocking.
	q.Enqueue("buffered", func(ctx context.Context) error { return nil })

	done := make(chan bool, 1)
	go func() {
		done <- q.Enqueue("overflow", func(ctx context.Context) error { return nil })
	}()
	select {
	case accepted := <-done:
		if accepted {
			t.Fatalf("overflow task must be dropped")
		}
	case <-time.After(time.Second):
		t.Fatalf("Enqueue blocked on a full queue")
	}
	close(release)
}

func TestQueue_TaskErrorDoesNotStopWorker(t *testing.T) {
	q := NewQueue(4, time.Second)

	var ran atomic.Bool
	q.Enqueue("failing", func(ctx context.Context) error { return errors.New("boom") })
	q.Enqueue("after", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	q.Close()

	if !ran.Load() {
		t.Fatalf("worker must survive a failing task")
	}
}

func TestQueue_TaskTimeout(t *testing.T) {
	q := NewQueue(1, 20*time.Millisecond)

	var deadlineSeen atomic.Bool
	q.Enqueue("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			deadlineSeen.Store(true)
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	q.Close()

	if !deadlineSeen.Load() {
		t.Fatalf("task context must carry the per-task timeout")
	}
}

func TestQueue_CloseIsIdempotent(t *testing.T) {
	q := NewQueue(1, time.Second)
	q.Close()
	q.Close() // must not panic
}
