package retry

import (
	"time"

	"scribe-pipeline-go/internal/types"
)

// Observer receives attempt transitions. Calls happen synchronously on the
// goroutine running Execute, in attempt order. Attempt indexes are zero-based.
type Observer interface {
	AttemptStarted(stage types.StageKind, attempt int)
	AttemptFailed(stage types.StageKind, attempt int, err error)
	Retrying(stage types.StageKind, attempt int, delay time.Duration)
	Succeeded(stage types.StageKind, attempts int)
	Exhausted(stage types.StageKind, attempts int, last error)
	Cancelled(stage types.StageKind, attempts int)
}

// NoopObserver ignores every event. Embed it to implement a subset.
type NoopObserver struct{}

func (NoopObserver) AttemptStarted(types.StageKind, int) {}
func (NoopObserver) AttemptFailed(types.StageKind, int, error) {}
func (NoopObserver) Retrying(types.StageKind, int, time.Duration) {}
func (NoopObserver) Succeeded(types.StageKind, int) {}
func (NoopObserver) Exhausted(types.StageKind, int, error) {}
func (NoopObserver) Cancelled(types.StageKind, int) {}

// Observers fans events out in slice order. Nil entries are skipped.
type Observers []Observer

func (obs Observers) AttemptStarted(s types.StageKind, attempt int) {
	for _, o := range obs {
		if o != nil {
			o.AttemptStarted(s, attempt)
		}
	}
}

func (obs Observers) AttemptFailed(s types.StageKind, attempt int, err error) {
	for _, o := range obs {
		if o != nil {
			o.AttemptFailed(s, attempt, err)
		}
	}
}

func (obs Observers) Retrying(s types.StageKind, attempt int, delay time.Duration) {
	for _, o := range obs {
		if o != nil {
			o.Retrying(s, attempt, delay)
		}
	}
}

func (obs Observers) Succeeded(s types.StageKind, attempts int) {
	for _, o := range obs {
		if o != nil {
			o.Succeeded(s, attempts)
		}
	}
}

func (obs Observers) Exhausted(s types.StageKind, attempts int, last error) {
	for _, o := range obs {
		if o != nil {
			o.Exhausted(s, attempts, last)
		}
	}
}

func (obs Observers) Cancelled(s types.StageKind, attempts int) {
	for _, o := range obs {
		if o != nil {
			o.Cancelled(s, attempts)
		}
	}
}
