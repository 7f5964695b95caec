package events

import "ledgerguard/core/types"

// Event represents a structured state change emitted by a native module.
type Event interface {
	EventType() string
}

// Typed is implemented by events that can render themselves as the canonical
// attribute map consumed by indexers.
type Typed interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. the host log, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder is an ordered, append-only event log. The host hands one to the
// modules for the duration of a call and drains it on commit.
type Recorder struct {
	events []Event
}

// Emit appends the event to the log.
func (r *Recorder) Emit(e Event) {
	if r == nil || e == nil {
		return
	}
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []Event {
	if r == nil || len(r.events) == 0 {
		return nil
	}
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len reports the number of recorded events.
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	return len(r.events)
}

// Drain returns the recorded events and clears the log.
func (r *Recorder) Drain() []Event {
	if r == nil {
		return nil
	}
	out := r.events
	r.events = nil
	return out
}

// Reset discards every recorded event.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.events = nil
}

// Render converts events to their canonical attribute form, skipping events
// that do not implement Typed.
func Render(evts []Event) []*types.Event {
	out := make([]*types.Event, 0, len(evts))
	for _, e := range evts {
		if typed, ok := e.(Typed); ok {
			out = append(out, typed.Event())
		}
	}
	return out
}
