package trace

import "sync"

// Sink receives events. Record must not panic or block.
type Sink interface {
	Record(event Event)
}

type NopSink struct{}

func (NopSink) Record(Event) {}

// SafeRecord records through s and swallows a panicking sink so tracing can
// never change pipeline behavior.
func SafeRecord(s Sink, event Event) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder collects events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Snapshot returns a copy of the recorded events.
func (r *Recorder) Snapshot() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Trace builds a canonical trace from the recorded events.
func (r *Recorder) Trace(subject string) Trace {
	tr := Trace{Subject: subject, Events: r.Snapshot()}
	tr.Canonicalize()
	return tr
}
