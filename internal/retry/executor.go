package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"scribe-pipeline-go/internal/logger"
	"scribe-pipeline-go/internal/policy"
)

const (
	// DefaultJitter spreads each backoff delay by up to ±20%.
	DefaultJitter = 0.2
	// DefaultGracePeriod bounds how long a timed-out attempt may take to
	// acknowledge cancellation before the next attempt starts anyway.
	DefaultGracePeriod = 2 * time.Second
)

// Operation is one unit of work. It must return promptly once ctx is done.
type Operation[T any] func(ctx context.Context) (T, error)

// Options configures an Executor. The zero value runs without jitter.
type Options struct {
	// Jitter is the backoff randomization factor in [0, 1). Zero disables it.
	Jitter float64
	// GracePeriod defaults to DefaultGracePeriod.
	GracePeriod time.Duration
	// Observer receives events for every Execute call on this executor.
	Observer Observer
	Logger   *logrus.Entry
	// Timer overrides the backoff wait timer. Tests use it to skip sleeping.
	Timer func() backoff.Timer
}

// Executor runs operations under a RetryPolicy. It holds no per-call state and
// is safe for concurrent use.
type Executor struct {
	jitter   float64
	grace    time.Duration
	observer Observer
	log      *logrus.Entry
	newTimer func() backoff.Timer
}

func New(opts Options) *Executor {
	e := &Executor{
		jitter:   opts.Jitter,
		grace:    opts.GracePeriod,
		observer: opts.Observer,
		log:      opts.Logger,
		newTimer: opts.Timer,
	}
	if e.jitter < 0 {
		e.jitter = 0
	}
	if e.jitter >= 1 {
		e.jitter = DefaultJitter
	}
	if e.grace <= 0 {
		e.grace = DefaultGracePeriod
	}
	if e.observer == nil {
		e.observer = NoopObserver{}
	}
	if e.log == nil {
		e.log = logger.Discard().Entry
	}
	e.log = e.log.WithField("component", "retry")
	return e
}

// Execute runs op until it succeeds, the policy's attempts are used up, or
// ctx ends. Attempts are strictly sequential.
//
// Failures are returned as *ExhaustedError and cancellation as *CancelledError.
// A policy that fails Validate is returned as is, without running op.
func Execute[T any](ctx context.Context, e *Executor, p policy.RetryPolicy, op Operation[T]) (T, error) {
	return ExecuteNotify(ctx, e, p, op, nil)
}

// ExecuteNotify is Execute with an extra observer scoped to this call. It is
// notified after the executor's own observer.
func ExecuteNotify[T any](ctx context.Context, e *Executor, p policy.RetryPolicy, op Operation[T], obs Observer) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, err
	}
	observer := Observers{e.observer, obs}
	log := e.log.WithField("stage", p.Stage)

	if err := ctx.Err(); err != nil {
		observer.Cancelled(p.Stage, 0)
		return zero, &CancelledError{Stage: p.Stage, Cause: err}
	}

	var (
		attempts int
		last     error
	)
	attempt := func() (T, error) {
		if err := ctx.Err(); err != nil {
			return zero, backoff.Permanent(err)
		}
		idx := attempts
		attempts++
		observer.AttemptStarted(p.Stage, idx)
		val, err := runAttempt(ctx, e, p, idx, op)
		if err == nil {
			return val, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, backoff.Permanent(ctxErr)
		}
		last = err
		observer.AttemptFailed(p.Stage, idx, err)
		return zero, err
	}
	notify := func(err error, next time.Duration) {
		observer.Retrying(p.Stage, attempts-1, next)
		log.WithFields(logrus.Fields{
			"attempt":      attempts,
			"max_attempts": p.Attempts(),
			"delay_ms":     next.Milliseconds(),
			"error":        err.Error(),
		}).Warn("attempt failed, backing off")
	}

	var timer backoff.Timer
	if e.newTimer != nil {
		timer = e.newTimer()
	}
	val, err := backoff.RetryNotifyWithTimerAndData(attempt, e.schedule(ctx, p), notify, timer)
	switch {
	case err == nil:
		observer.Succeeded(p.Stage, attempts)
		log.WithField("attempts", attempts).Debug("operation succeeded")
		return val, nil
	case ctx.Err() != nil:
		observer.Cancelled(p.Stage, attempts)
		log.WithField("attempts", attempts).Info("operation cancelled")
		return zero, &CancelledError{Stage: p.Stage, Attempts: attempts, Cause: ctx.Err()}
	default:
		if last == nil {
			last = err
		}
		observer.Exhausted(p.Stage, attempts, last)
		log.WithField("attempts", attempts).WithField("error", last.Error()).Error("retries exhausted")
		return zero, &ExhaustedError{Stage: p.Stage, Attempts: attempts, Last: last}
	}
}

// Delay is the un-jittered wait after zero-based attempt i fails:
// min(MaxDelay, BaseDelay * 2^i).
func Delay(p policy.RetryPolicy, attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if d >= p.MaxDelay {
			break
		}
		d *= 2
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (e *Executor) schedule(ctx context.Context, p policy.RetryPolicy) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.BaseDelay
	expo.Multiplier = 2
	expo.MaxInterval = p.MaxDelay
	expo.RandomizationFactor = e.jitter
	expo.MaxElapsedTime = 0
	capped := cappedBackOff{BackOff: expo, max: p.MaxDelay}
	return backoff.WithContext(backoff.WithMaxRetries(capped, uint64(p.MaxRetries)), ctx)
}

// cappedBackOff keeps jittered delays at or below max.
type cappedBackOff struct {
	backoff.BackOff
	max time.Duration
}

func (c cappedBackOff) NextBackOff() time.Duration {
	d := c.BackOff.NextBackOff()
	if d != backoff.Stop && d > c.max {
		return c.max
	}
	return d
}

type outcome[T any] struct {
	val T
	err error
}

// runAttempt runs op once under the policy's attempt deadline. On timeout it
// cancels the attempt and waits up to the grace period for op to return, so
// the next attempt never overlaps a cooperative one. A success that arrives
// at or after the deadline is kept rather than retried. Caller cancellation
// returns at once since no further attempt follows.
func runAttempt[T any](ctx context.Context, e *Executor, p policy.RetryPolicy, idx int, op Operation[T]) (T, error) {
	var zero T
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: &PanicError{Value: r}}
			}
		}()
		v, err := op(attemptCtx)
		done <- outcome[T]{val: v, err: err}
	}()

	timedOut := &AttemptTimeoutError{Stage: p.Stage, Attempt: idx, Timeout: p.AttemptTimeout}
	select {
	case out := <-done:
		return settle(ctx, attemptCtx, out, timedOut)
	case <-attemptCtx.Done():
	}

	select {
	case out := <-done:
		return settle(ctx, attemptCtx, out, timedOut)
	default:
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	grace := time.NewTimer(e.grace)
	defer grace.Stop()
	select {
	case out := <-done:
		return settle(ctx, attemptCtx, out, timedOut)
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-grace.C:
	}
	e.log.WithFields(logrus.Fields{
		"stage":    p.Stage,
		"attempt":  idx + 1,
		"grace_ms": e.grace.Milliseconds(),
	}).Warn("attempt ignored cancellation, abandoning it")
	timedOut.Abandoned = true
	return zero, timedOut
}

// settle maps a finished attempt to its result. Failures after the attempt
// deadline count as timeouts unless the caller cancelled.
func settle[T any](ctx, attemptCtx context.Context, out outcome[T], timedOut *AttemptTimeoutError) (T, error) {
	var zero T
	switch {
	case out.err == nil:
		return out.val, nil
	case ctx.Err() != nil:
		return zero, ctx.Err()
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		return zero, timedOut
	default:
		return zero, out.err
	}
}
