package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"scribe-pipeline-go/internal/logger"
	"scribe-pipeline-go/internal/policy"
	"scribe-pipeline-go/internal/progress"
	"scribe-pipeline-go/internal/retry"
	"scribe-pipeline-go/internal/types"
)

var (
	// ErrUnknownJob is returned for job ids that were never started.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobExists is returned when starting a job id twice.
	ErrJobExists = errors.New("job already exists")
)

// StepFunc runs one unit of work on the previous step's output.
type StepFunc func(ctx context.Context, input any) (any, error)

// Step is one task of a job. State is what the tracker shows while the step
// runs; when empty it comes from StateFor.
type Step struct {
	Task  string
	State types.PipelineState
	Run   StepFunc
}

type StepResult struct {
	Task       string          `json:"task"`
	Stage      types.StageKind `json:"stage"`
	Attempts   int             `json:"attempts"`
	DurationMs int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
}

type Result struct {
	JobID      string       `json:"job_id"`
	Output     any          `json:"output,omitempty"`
	Steps      []StepResult `json:"steps"`
	DurationMs int64        `json:"duration_ms"`
	Error      string       `json:"error,omitempty"`
}

// Processor drives jobs through their steps, retrying each under the policy
// of its task and reporting progress to the tracker. The processor is the
// single writer of tracker state for the jobs it runs.
type Processor struct {
	resolver *policy.Resolver
	exec     *retry.Executor
	tracker  *progress.Tracker
	log      *logger.Logger

	mu   sync.Mutex
	runs map[string]*run
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
	result Result
	err    error
}

func New(resolver *policy.Resolver, exec *retry.Executor, tracker *progress.Tracker, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Discard()
	}
	return &Processor{
		resolver: resolver,
		exec:     exec,
		tracker:  tracker,
		log:      log,
		runs:     make(map[string]*run),
	}
}

// StateFor is the state shown while a step of the given stage runs.
func StateFor(stage types.StageKind) types.PipelineState {
	switch stage {
	case types.StageTranscription:
		return types.StateTranscribingLive
	case types.StageGeneration:
		return types.StateFinalizing
	case types.StageValidation, types.StagePersistence:
		return types.StateHardening
	default:
		return types.StateProcessingPartials
	}
}

// Process runs steps in order, piping each output into the next step.
// The job ends completed, or failed with the error that stopped it.
func (p *Processor) Process(ctx context.Context, jobID string, input any, steps []Step) (Result, error) {
	start := time.Now()
	log := p.log.WithJob(jobID)
	res := Result{JobID: jobID}
	p.tracker.SetState(jobID, types.StateIdle)
	log.WithField("steps", len(steps)).Info("job started")

	out := input
	for _, step := range steps {
		sr, next, err := p.runStep(ctx, jobID, step, out)
		res.Steps = append(res.Steps, sr)
		if err != nil {
			p.fail(jobID, err)
			res.Error = err.Error()
			res.DurationMs = time.Since(start).Milliseconds()
			log.WithField("task", step.Task).WithField("error", err.Error()).Warn("job failed")
			return res, fmt.Errorf("step %s: %w", step.Task, err)
		}
		out = next
	}

	p.tracker.SetState(jobID, types.StateCompleted)
	res.Output = out
	res.DurationMs = time.Since(start).Milliseconds()
	log.WithField("duration_ms", res.DurationMs).Info("job completed")
	return res, nil
}

func (p *Processor) runStep(ctx context.Context, jobID string, step Step, in any) (StepResult, any, error) {
	pol := p.resolver.PolicyFor(step.Task)
	sr := StepResult{Task: step.Task, Stage: pol.Stage}
	if step.Run == nil {
		err := fmt.Errorf("task %s has no work to run", step.Task)
		sr.Error = err.Error()
		return sr, nil, err
	}

	state := step.State
	if state == "" {
		state = StateFor(pol.Stage)
	}
	p.tracker.SetState(jobID, state)

	obs := &jobObserver{
		tracker:     p.tracker,
		jobID:       jobID,
		task:        step.Task,
		state:       state,
		maxAttempts: pol.Attempts(),
	}
	started := time.Now()
	next, err := retry.ExecuteNotify(ctx, p.exec, pol, func(ctx context.Context) (any, error) {
		return step.Run(ctx, in)
	}, obs)
	sr.Attempts = obs.attempts
	sr.DurationMs = time.Since(started).Milliseconds()
	if err != nil {
		sr.Error = err.Error()
	}
	return sr, next, err
}

func (p *Processor) fail(jobID string, err error) {
	var ex *retry.ExhaustedError
	switch {
	case errors.Is(err, retry.ErrCancelled):
		p.tracker.SetStateLabel(jobID, types.StateFailed, "Cancelled")
	case errors.As(err, &ex):
		p.tracker.SetStateLabel(jobID, types.StateFailed, "Failed: "+ex.Last.Error())
	default:
		p.tracker.SetStateLabel(jobID, types.StateFailed, "Failed: "+err.Error())
	}
}

// jobObserver mirrors one step's attempts onto the tracker. It runs on the
// executing goroutine, so tracker writes follow attempt order.
type jobObserver struct {
	retry.NoopObserver
	tracker     *progress.Tracker
	jobID       string
	task        string
	state       types.PipelineState
	maxAttempts int
	attempts    int
}

func (o *jobObserver) AttemptStarted(_ types.StageKind, attempt int) {
	o.attempts = attempt + 1
	if attempt > 0 {
		o.tracker.SetState(o.jobID, o.state)
	}
}

func (o *jobObserver) Retrying(_ types.StageKind, attempt int, _ time.Duration) {
	label := fmt.Sprintf("Retrying %s (attempt %d of %d)", o.task, attempt+2, o.maxAttempts)
	o.tracker.SetStateLabel(o.jobID, types.StateRecovering, label)
}

// Start runs Process in the background. The job can be cancelled with
// Cancel and its result collected with Wait.
func (p *Processor) Start(ctx context.Context, jobID string, input any, steps []Step) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.runs[jobID]; ok {
		return ErrJobExists
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	p.runs[jobID] = r

	go func() {
		defer close(r.done)
		defer cancel()
		r.result, r.err = p.Process(runCtx, jobID, input, steps)
	}()
	return nil
}

// Cancel asks a started job to stop. It does not wait for it.
func (p *Processor) Cancel(jobID string) error {
	p.mu.Lock()
	r, ok := p.runs[jobID]
	p.mu.Unlock()
	if !ok {
		return ErrUnknownJob
	}
	r.cancel()
	return nil
}

// Wait blocks until a started job finishes or ctx ends.
func (p *Processor) Wait(ctx context.Context, jobID string) (Result, error) {
	p.mu.Lock()
	r, ok := p.runs[jobID]
	p.mu.Unlock()
	if !ok {
		return Result{}, ErrUnknownJob
	}
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Status reports whether a started job has finished, and its result if so.
func (p *Processor) Status(jobID string) (Result, bool, error) {
	p.mu.Lock()
	r, ok := p.runs[jobID]
	p.mu.Unlock()
	if !ok {
		return Result{}, false, ErrUnknownJob
	}
	select {
	case <-r.done:
		return r.result, true, r.err
	default:
		return Result{}, false, nil
	}
}

// Forget drops a finished job and its tracker status.
func (p *Processor) Forget(jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.runs[jobID]
	if !ok {
		return ErrUnknownJob
	}
	select {
	case <-r.done:
	default:
		return fmt.Errorf("job %s still running", jobID)
	}
	delete(p.runs, jobID)
	p.tracker.End(jobID)
	return nil
}
