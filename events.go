package bridge

import "sync"

// eventSink fans module events into the script context. Built-in modules are
// constructed before the instance exists, so they hold a sink whose target is
// attached afterwards; events emitted before attachment are dropped (there is
// no script context to deliver them to yet).
type eventSink struct {
	mu   sync.Mutex
	emit func(name, payloadJSON string)
}

func (s *eventSink) attach(emit func(name, payloadJSON string)) {
	s.mu.Lock()
	s.emit = emit
	s.mu.Unlock()
}

// Emit delivers an event to the attached instance. Safe from any goroutine;
// delivery is a post to the script queue, never an inline VM touch.
func (s *eventSink) Emit(name, payloadJSON string) {
	s.mu.Lock()
	emit := s.emit
	s.mu.Unlock()
	if emit != nil {
		emit(name, payloadJSON)
	}
}
