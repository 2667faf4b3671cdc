package events

import "sync"

// Event represents a structured state change emitted after a successful
// ledger transition.
type Event interface {
	EventType() string
	Event() *Record
}

// Record is the flattened, transport friendly form of an event.
type Record struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter broadcasts events to downstream subscribers (indexers, streams).
// Emission is fire-and-forget and has no control-flow significance.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer accumulates events until the surrounding transition commits.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	if b == nil {
		return nil
	}
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Flush forwards the buffered events to target and clears the buffer.
func (b *Buffer) Flush(target Emitter) {
	if b == nil {
		return
	}
	if target != nil {
		for _, evt := range b.events {
			target.Emit(evt)
		}
	}
	b.events = nil
}

// MultiEmitter fans every event out to each registered emitter.
type MultiEmitter struct {
	mu      sync.RWMutex
	targets []Emitter
}

// NewMultiEmitter returns a fan-out emitter over the supplied targets.
func NewMultiEmitter(targets ...Emitter) *MultiEmitter {
	m := &MultiEmitter{}
	for _, t := range targets {
		m.Add(t)
	}
	return m
}

// Add registers another downstream emitter.
func (m *MultiEmitter) Add(target Emitter) {
	if m == nil || target == nil {
		return
	}
	m.mu.Lock()
	m.targets = append(m.targets, target)
	m.mu.Unlock()
}

// Emit implements the Emitter interface.
func (m *MultiEmitter) Emit(evt Event) {
	if m == nil || evt == nil {
		return
	}
	m.mu.RLock()
	targets := m.targets
	m.mu.RUnlock()
	for _, t := range targets {
		t.Emit(evt)
	}
}
