package bridge

import (
	"sync"
	"testing"
	"time"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue("test")

	const n = 100
	var mu sync.Mutex
	var order []int
	for i := 0; i < n; i++ {
		i := i
		q.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	q.Shutdown()
	<-q.Done()

	if len(order) != n {
		t.Fatalf("ran %d tasks, want %d", len(order), n)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestQueuePostAfterShutdownIsNoop(t *testing.T) {
	q := NewQueue("test")
	q.Shutdown()
	<-q.Done()

	ran := make(chan struct{}, 1)
	q.Post(func() { ran <- struct{}{} })

	select {
	case <-ran:
		t.Fatal("task ran after shutdown")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueueShutdownIdempotent(t *testing.T) {
	q := NewQueue("test")
	q.Shutdown()
	q.Shutdown()
	q.Shutdown()

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not drain after repeated shutdown")
	}
}

func TestQueueShutdownFromOwnTask(t *testing.T) {
	q := NewQueue("test")

	gate := make(chan struct{})
	after := make(chan struct{}, 1)
	q.Post(func() {
		<-gate
		q.Shutdown() // must not deadlock the runner
	})
	q.Post(func() { after <- struct{}{} })
	close(gate)

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not exit after self-shutdown")
	}

	// The second task was posted before shutdown took effect, so it drains.
	select {
	case <-after:
	case <-time.After(time.Second):
		t.Fatal("backlogged task was dropped by self-shutdown")
	}
}

func TestQueueSurvivesPanickingTask(t *testing.T) {
	prev := TaskErrorHandler
	defer func() { TaskErrorHandler = prev }()

	reported := make(chan any, 1)
	TaskErrorHandler = func(queue string, err any) {
		if queue != "test" {
			t.Errorf("queue name = %q, want %q", queue, "test")
		}
		reported <- err
	}

	q := NewQueue("test")
	q.Post(func() { panic("boom") })

	ran := make(chan struct{}, 1)
	q.Post(func() { ran <- struct{}{} })

	select {
	case err := <-reported:
		if err != "boom" {
			t.Errorf("reported error = %v, want boom", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("panic was not reported")
	}

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("queue stopped processing after a panicking task")
	}

	q.Shutdown()
	<-q.Done()
}

func TestQueueNilTaskIgnored(t *testing.T) {
	q := NewQueue("test")
	q.Post(nil)
	q.Shutdown()

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("queue hung on nil task")
	}
}
