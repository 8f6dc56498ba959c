package retry

import (
	"errors"
	"fmt"
	"time"

	"scribe-pipeline-go/internal/types"
)

var (
	// ErrAttemptTimeout matches any attempt that ran past its policy's AttemptTimeout.
	ErrAttemptTimeout = errors.New("attempt timed out")
	// ErrExhausted matches an ExhaustedError.
	ErrExhausted = errors.New("retries exhausted")
	// ErrCancelled matches a CancelledError.
	ErrCancelled = errors.New("execution cancelled")
)

// AttemptTimeoutError is the failure recorded for an attempt that did not
// finish before its deadline.
type AttemptTimeoutError struct {
	Stage   types.StageKind
	Attempt int
	Timeout time.Duration
	// Abandoned is set when the attempt ignored cancellation for the whole
	// grace period and was left running.
	Abandoned bool
}

func (e *AttemptTimeoutError) Error() string {
	msg := fmt.Sprintf("%s attempt %d timed out after %s", e.Stage, e.Attempt+1, e.Timeout)
	if e.Abandoned {
		msg += " (abandoned)"
	}
	return msg
}

func (e *AttemptTimeoutError) Is(target error) bool { return target == ErrAttemptTimeout }

// ExhaustedError is returned when every allowed attempt failed.
type ExhaustedError struct {
	Stage    types.StageKind
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s exhausted after %d attempts: %v", e.Stage, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// CancelledError is returned when the caller's context ended before the
// operation succeeded.
type CancelledError struct {
	Stage    types.StageKind
	Attempts int
	Cause    error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s cancelled after %d attempts: %v", e.Stage, e.Attempts, e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// PanicError wraps a panic raised inside an attempt.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic in attempt: %v", e.Value) }
