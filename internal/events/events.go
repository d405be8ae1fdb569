// Package events carries engine activity to live subscribers such as the
// operator dashboard.
package events

import (
	"log"
	"sync/atomic"
	"time"
)

// Type represents the type of engine event.
type Type string

const (
	// CompletionReplayed indicates a redelivery hit an existing ledger entry.
	CompletionReplayed Type = "completion_replayed"
	// CompletionRecorded indicates a new terminal outcome was written.
	CompletionRecorded Type = "completion_recorded"
	// CompletionRetryable indicates a completion must be redelivered.
	CompletionRetryable Type = "completion_retryable"
	// SuggestionOffered indicates a Pending suggestion was created.
	SuggestionOffered Type = "suggestion_offered"
	// SuggestionExpired indicates a Pending suggestion timed out.
	SuggestionExpired Type = "suggestion_expired"
	// SuggestionResponded indicates an operator accepted or declined.
	SuggestionResponded Type = "suggestion_responded"
	// TickSkipped indicates a heartbeat emitted nothing because of the budget.
	TickSkipped Type = "tick_skipped"
)

// Event is one engine occurrence.
type Event struct {
	Type Type
	// TaskID is the related task, if applicable.
	TaskID    string
	TaskTitle string
	// Fingerprint is set for completion events.
	Fingerprint string
	// Message is a short human-readable summary.
	Message   string
	Error     error
	Timestamp time.Time
}

// Emitter delivers events to a single buffered channel. A nil *Emitter
// discards everything, so engines can emit unconditionally.
type Emitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEmitter creates an Emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	return &Emitter{events: make(chan Event, bufferSize)}
}

// Emit sends an event, waiting briefly for a full buffer to drain before
// dropping it.
func (e *Emitter) Emit(event Event) {
	if e == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[events] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the number of events dropped so far.
func (e *Emitter) DroppedCount() uint64 {
	if e == nil {
		return 0
	}
	return e.droppedCount.Load()
}

// Events returns the receive side of the channel.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Close closes the channel. No Emit may follow.
func (e *Emitter) Close() {
	close(e.events)
}
