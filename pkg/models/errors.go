package models

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced task does not exist. It is reported,
	// never retried: the task may have been deleted legitimately.
	ErrNotFound = errors.New("not found")

	// ErrRetryable marks a transient external failure. No ledger or history
	// write has been performed, so the invocation is safe to redeliver.
	ErrRetryable = errors.New("retryable")
)

// FailedError is a permanent logical failure. It is recorded so retries stop.
type FailedError struct {
	Reason string
}

func (e *FailedError) Error() string {
	return "failed: " + e.Reason
}

// Failed creates a permanent failure with the given reason.
func Failed(reason string) error {
	return &FailedError{Reason: reason}
}

// retryableError wraps a cause so both errors.Is(err, ErrRetryable) and
// errors.Is(err, cause) hold.
type retryableError struct {
	cause error
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.cause)
}

func (e *retryableError) Unwrap() []error {
	return []error{ErrRetryable, e.cause}
}

// Retryable marks err as transient. A nil error stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRetryable) {
		return err
	}
	return &retryableError{cause: err}
}

// IsRetryable reports whether err is transient. Context deadline expiries
// count as transient: a timed-out call may succeed on redelivery.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable) || errors.Is(err, context.DeadlineExceeded)
}

// IsFailed reports whether err is a permanent failure and returns its reason.
func IsFailed(err error) (string, bool) {
	var fe *FailedError
	if errors.As(err, &fe) {
		return fe.Reason, true
	}
	return "", false
}
