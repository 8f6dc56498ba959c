package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"scribe-pipeline-go/internal/policy"
	"scribe-pipeline-go/internal/progress"
	"scribe-pipeline-go/internal/retry"
	"scribe-pipeline-go/internal/types"
)

type instantTimer struct{ c chan time.Time }

func (t *instantTimer) Start(time.Duration) { t.c <- time.Now() }

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

func TestObserverCountsAttempts(t *testing.T) {
	exec := retry.New(retry.Options{
		Observer: Observer{},
		Timer:    func() backoff.Timer { return &instantTimer{c: make(chan time.Time, 1)} },
	})
	p := policy.RetryPolicy{
		Stage:          types.StagePersistence,
		MaxRetries:     2,
		AttemptTimeout: time.Second,
		BaseDelay:      time.Millisecond,
		MaxDelay:       time.Millisecond,
	}
	errBefore := testutil.ToFloat64(AttemptsTotal.WithLabelValues("persistence", "error"))
	okBefore := testutil.ToFloat64(ExecutionsTotal.WithLabelValues("persistence", "success"))

	calls := 0
	_, err := retry.Execute(context.Background(), exec, p, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("disk busy")
		}
		return 1, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(AttemptsTotal.WithLabelValues("persistence", "error")) - errBefore; got != 2 {
		t.Fatalf("error attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(ExecutionsTotal.WithLabelValues("persistence", "success")) - okBefore; got != 1 {
		t.Fatalf("successful executions = %v, want 1", got)
	}
}

func TestRecordState(t *testing.T) {
	before := testutil.ToFloat64(StateTransitions.WithLabelValues("draft_ready"))
	tr := progress.NewTracker(nil, RecordState)
	tr.SetState("job", types.StateDraftReady)
	if got := testutil.ToFloat64(StateTransitions.WithLabelValues("draft_ready")) - before; got != 1 {
		t.Fatalf("transitions = %v, want 1", got)
	}
}
