package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"scribe-pipeline-go/internal/progress"
	"scribe-pipeline-go/internal/retry"
	"scribe-pipeline-go/internal/types"
)

var (
	// AttemptsTotal counts attempts per stage and outcome (success, error, timeout).
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_attempts_total",
			Help: "Total number of unit-of-work attempts",
		},
		[]string{"stage", "outcome"},
	)

	// ExecutionsTotal counts finished Execute calls per stage and result.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_executions_total",
			Help: "Total number of retry executions by final result",
		},
		[]string{"stage", "result"},
	)

	// BackoffSeconds tracks the delay chosen before each retry.
	BackoffSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_backoff_seconds",
			Help:    "Backoff delay before a retry in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 12, 30},
		},
		[]string{"stage"},
	)

	// AttemptsPerExecution tracks how many attempts an execution needed.
	AttemptsPerExecution = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_attempts_per_execution",
			Help:    "Attempts used by one retry execution",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		},
		[]string{"stage"},
	)

	// StateTransitions counts progress state changes per target state.
	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_state_transitions_total",
			Help: "Total number of job state changes",
		},
		[]string{"state"},
	)
)

// Observer records retry events into the collectors above.
type Observer struct {
	retry.NoopObserver
}

var _ retry.Observer = Observer{}

func (Observer) AttemptFailed(stage types.StageKind, _ int, err error) {
	outcome := "error"
	if errors.Is(err, retry.ErrAttemptTimeout) {
		outcome = "timeout"
	}
	AttemptsTotal.WithLabelValues(string(stage), outcome).Inc()
}

func (Observer) Retrying(stage types.StageKind, _ int, delay time.Duration) {
	BackoffSeconds.WithLabelValues(string(stage)).Observe(delay.Seconds())
}

func (Observer) Succeeded(stage types.StageKind, attempts int) {
	AttemptsTotal.WithLabelValues(string(stage), "success").Inc()
	finish(stage, "success", attempts)
}

func (Observer) Exhausted(stage types.StageKind, attempts int, _ error) {
	finish(stage, "exhausted", attempts)
}

func (Observer) Cancelled(stage types.StageKind, attempts int) {
	finish(stage, "cancelled", attempts)
}

func finish(stage types.StageKind, result string, attempts int) {
	ExecutionsTotal.WithLabelValues(string(stage), result).Inc()
	AttemptsPerExecution.WithLabelValues(string(stage)).Observe(float64(attempts))
}

// RecordState is a progress.Tracker hook.
func RecordState(e progress.Event) {
	StateTransitions.WithLabelValues(string(e.State)).Inc()
}
