package bridge

import (
	"log"
	"sync"
)

// TaskErrorHandler receives errors recovered from queue tasks. A task that
// panics is reported here instead of killing the queue's goroutine, so the
// bridge stays alive for diagnostics. Replaceable for tests or custom
// crash reporting; must be set before any queue is created.
var TaskErrorHandler = func(queue string, err any) {
	log.Printf("bridge: unhandled task error on %q queue: %v", queue, err)
}

// Queue is a single-threaded, strictly ordered task runner backed by its own
// goroutine. Tasks posted from one caller run in FIFO order. Post never
// blocks the caller; the backlog is unbounded.
//
// Two queues exist per bridge invocation: the native-context queue (host
// module methods) and the script-context queue (everything that touches the
// QuickJS VM).
type Queue struct {
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool

	done chan struct{}
}

// NewQueue creates a queue and starts its runner goroutine.
func NewQueue(name string) *Queue {
	q := &Queue{
		name: name,
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Name returns the queue's diagnostic name.
func (q *Queue) Name() string { return q.name }

// Post enqueues a task for execution on the queue's goroutine. It never
// blocks and never reorders tasks relative to each other. Posting to a
// queue that has shut down is a silent no-op.
func (q *Queue) Post(task func()) {
	if task == nil {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
	q.mu.Unlock()
}

// Shutdown stops the queue from accepting new tasks. The backlog is drained
// before the runner goroutine exits; Done is closed once the drain finishes.
// Idempotent and safe to call from any context, including from a task
// running on the queue itself (it does not wait for the drain).
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Signal()
	}
	q.mu.Unlock()
}

// Done is closed after Shutdown once all backlogged tasks have run and the
// runner goroutine has exited. No task runs after Done is closed.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) run() {
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			// closed and drained
			q.mu.Unlock()
			close(q.done)
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.runTask(task)
	}
}

// runTask executes a single task, converting a panic into a report to
// TaskErrorHandler. The queue survives individual task failures.
func (q *Queue) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			TaskErrorHandler(q.name, r)
		}
	}()
	task()
}
