package logging

import "sync"

// DefaultBufferSize is the capacity used when a non-positive size is given.
const DefaultBufferSize = 256

// EventBuffer is a fixed-size ring of the most recent events.
type EventBuffer struct {
	mu      sync.RWMutex
	entries []Event
	start   int
	count   int
}

// NewEventBuffer returns a ring holding up to size events.
func NewEventBuffer(size int) *EventBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &EventBuffer{entries: make([]Event, size)}
}

// Add appends ev, overwriting the oldest event when full.
func (b *EventBuffer) Add(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.entries)
	b.entries[(b.start+b.count)%capacity] = ev
	if b.count < capacity {
		b.count++
		return
	}
	b.start = (b.start + 1) % capacity
}

// Events returns a copy of the buffered events, oldest first.
func (b *EventBuffer) Events() []Event {
	return b.Last(b.Len())
}

// Last returns up to n of the newest events, oldest first.
func (b *EventBuffer) Last(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.count {
		n = b.count
	}
	if n < 0 {
		n = 0
	}
	out := make([]Event, n)
	skip := b.count - n
	for i := range out {
		out[i] = b.entries[(b.start+skip+i)%len(b.entries)]
	}
	return out
}

// Filter returns the buffered events with the given severity, oldest first.
func (b *EventBuffer) Filter(sev Severity) []Event {
	var out []Event
	for _, ev := range b.Events() {
		if ev.Severity == sev {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of buffered events.
func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Clear drops every buffered event.
func (b *EventBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = 0
	b.count = 0
}
