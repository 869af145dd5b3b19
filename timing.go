package bridge

import (
	"fmt"
	"sync"
	"time"
)

// timingModule implements the Timing capability: Go-backed one-shot and
// repeating timers whose fire events are delivered to the script context.
// Create/delete run on the native queue; fires come from timer goroutines
// and reach script code only through the event sink.
type timingModule struct {
	sink *eventSink

	mu     sync.Mutex
	timers map[int]*bridgeTimer
	closed bool
}

type bridgeTimer struct {
	id       int
	interval time.Duration // 0 for one-shot
	t        *time.Timer
}

func newTimingModule(sink *eventSink) *timingModule {
	return &timingModule{
		sink:   sink,
		timers: make(map[int]*bridgeTimer),
	}
}

func (m *timingModule) Methods() map[string]Method {
	return map[string]Method{
		"createTimer": m.createTimer,
		"deleteTimer": m.deleteTimer,
	}
}

// createTimer(id, durationMs, repeats) arms a timer. Each fire emits a
// "timingFired" event carrying the timer id; repeating timers rearm until
// deleted.
func (m *timingModule) createTimer(args []any) (any, error) {
	id, err := intArg(args, 0, "createTimer")
	if err != nil {
		return nil, err
	}
	durationMs, err := intArg(args, 1, "createTimer")
	if err != nil {
		return nil, err
	}
	repeats := false
	if len(args) > 2 {
		if b, ok := args[2].(bool); ok {
			repeats = b
		}
	}

	delay := time.Duration(durationMs) * time.Millisecond

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("createTimer: timing module closed")
	}
	if old, ok := m.timers[id]; ok {
		old.t.Stop()
	}

	bt := &bridgeTimer{id: id}
	if repeats {
		bt.interval = delay
	}
	bt.t = time.AfterFunc(delay, func() { m.fire(id) })
	m.timers[id] = bt
	return nil, nil
}

// fire emits the event and rearms repeating timers still registered.
func (m *timingModule) fire(id int) {
	m.mu.Lock()
	bt, ok := m.timers[id]
	if !ok || m.closed {
		m.mu.Unlock()
		return
	}
	if bt.interval > 0 {
		bt.t.Reset(bt.interval)
	} else {
		delete(m.timers, id)
	}
	m.mu.Unlock()

	m.sink.Emit("timingFired", fmt.Sprintf(`{"id":%d}`, id))
}

// deleteTimer(id) cancels a timer; unknown ids are a no-op.
func (m *timingModule) deleteTimer(args []any) (any, error) {
	id, err := intArg(args, 0, "deleteTimer")
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if bt, ok := m.timers[id]; ok {
		bt.t.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()
	return nil, nil
}

func (m *timingModule) Close() error {
	m.mu.Lock()
	m.closed = true
	for id, bt := range m.timers {
		bt.t.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()
	return nil
}

// intArg decodes args[i] as an int. JSON numbers decode as float64.
func intArg(args []any, i int, method string) (int, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("%s: missing argument %d", method, i)
	}
	switch v := args[i].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("%s: argument %d must be a number, got %T", method, i, args[i])
	}
}
