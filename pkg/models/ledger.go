package models

import (
	"fmt"
	"time"
)

// FingerprintBucket is the granularity completion times are rounded to.
// Redeliveries of one logical completion report the same minute.
const FingerprintBucket = time.Minute

// Fingerprint identifies one real-world completion independent of delivery
// retries.
type Fingerprint string

// NewFingerprint derives the fingerprint from a task ID and completion time.
func NewFingerprint(taskID string, completedAt time.Time) Fingerprint {
	bucket := completedAt.UTC().Truncate(FingerprintBucket)
	return Fingerprint(fmt.Sprintf("%s@%s", taskID, bucket.Format(time.RFC3339)))
}

// OutcomeKind is the terminal result recorded for a fingerprint.
type OutcomeKind string

const (
	// OutcomeSuccessorCreated indicates a successor task was created.
	OutcomeSuccessorCreated OutcomeKind = "successor_created"
	// OutcomeNoSuccessor indicates no chain rule matched the task.
	OutcomeNoSuccessor OutcomeKind = "no_successor_needed"
	// OutcomeFailed indicates a permanent failure; retries stop.
	OutcomeFailed OutcomeKind = "failed"
)

// Valid returns true if the kind is a known value.
func (k OutcomeKind) Valid() bool {
	switch k {
	case OutcomeSuccessorCreated, OutcomeNoSuccessor, OutcomeFailed:
		return true
	default:
		return false
	}
}

// Outcome is the result of handling a completion.
type Outcome struct {
	Kind        OutcomeKind `json:"kind" yaml:"kind"`
	SuccessorID string      `json:"successor_id,omitempty" yaml:"successor_id,omitempty"`
	Reason      string      `json:"reason,omitempty" yaml:"reason,omitempty"`
	// Replayed is true when the outcome was read back from the ledger
	// rather than produced by this invocation.
	Replayed bool `json:"replayed,omitempty" yaml:"-"`
}

// SuccessorCreated builds an outcome for a created successor.
func SuccessorCreated(id string) Outcome {
	return Outcome{Kind: OutcomeSuccessorCreated, SuccessorID: id}
}

// NoSuccessorNeeded builds an outcome for a task with no matching rule.
func NoSuccessorNeeded() Outcome {
	return Outcome{Kind: OutcomeNoSuccessor}
}

// FailedOutcome builds an outcome for a permanent failure.
func FailedOutcome(reason string) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason}
}

// String renders the outcome for logs and CLI output.
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeSuccessorCreated:
		return fmt.Sprintf("SuccessorCreated(%s)", o.SuccessorID)
	case OutcomeNoSuccessor:
		return "NoSuccessorNeeded"
	case OutcomeFailed:
		return fmt.Sprintf("Failed(%s)", o.Reason)
	default:
		return string(o.Kind)
	}
}

// LedgerEntry is the durable record of a handled completion.
type LedgerEntry struct {
	Fingerprint Fingerprint `json:"fingerprint" yaml:"fingerprint"`
	TaskID      string      `json:"task_id" yaml:"task_id"`
	EventID     string      `json:"event_id" yaml:"event_id"`
	Outcome     Outcome     `json:"outcome" yaml:"outcome"`
	RecordedAt  time.Time   `json:"recorded_at" yaml:"recorded_at"`
}
