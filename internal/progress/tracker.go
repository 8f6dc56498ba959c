package progress

import (
	"sort"
	"sync"
	"time"

	"scribe-pipeline-go/internal/types"
)

// Tracker holds the current PipelineState of every in-flight job. It reports
// status and does not enforce which transitions are legal.
//
// Writes are serialized, but the intended contract is a single writer per
// job: whoever drives the job's pipeline.
type Tracker struct {
	mu    sync.RWMutex
	jobs  map[string]*jobStatus
	bus   *EventBus
	hooks []func(Event)
}

type jobStatus struct {
	state   types.PipelineState
	label   string
	updated time.Time
}

// Snapshot is a point-in-time view of one job.
type Snapshot struct {
	JobID     string              `json:"job_id"`
	State     types.PipelineState `json:"state"`
	Rank      int                 `json:"rank"`
	Label     string              `json:"label"`
	Segments  []SegmentView       `json:"segments"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// SegmentView pairs a timeline segment with its status.
type SegmentView struct {
	Name   types.PipelineState `json:"name"`
	Status Segment             `json:"status"`
}

// NewTracker creates an empty tracker. bus may be nil. hooks run after every
// state change, while the tracker lock is held, so they must not call back
// into the tracker.
func NewTracker(bus *EventBus, hooks ...func(Event)) *Tracker {
	return &Tracker{
		jobs:  make(map[string]*jobStatus),
		bus:   bus,
		hooks: hooks,
	}
}

// SetState overwrites the job's state and clears any custom label.
func (t *Tracker) SetState(jobID string, state types.PipelineState) {
	t.SetStateLabel(jobID, state, "")
}

// SetStateLabel overwrites the job's state with a caller-supplied label.
// An empty label falls back to DefaultLabel.
func (t *Tracker) SetStateLabel(jobID string, state types.PipelineState, label string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	js, ok := t.jobs[jobID]
	if !ok {
		js = &jobStatus{}
		t.jobs[jobID] = js
	}
	js.state = state
	js.label = label
	js.updated = time.Now().UTC()

	event := Event{
		Timestamp: js.updated,
		JobID:     jobID,
		State:     state,
		Rank:      Rank(state),
		Label:     resolveLabel(js),
	}
	if t.bus != nil {
		event = t.bus.Publish(event)
	}
	for _, h := range t.hooks {
		h(event)
	}
}

// State returns the job's current state. Unknown jobs report idle, false.
func (t *Tracker) State(jobID string) (types.PipelineState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	js, ok := t.jobs[jobID]
	if !ok {
		return types.StateIdle, false
	}
	return js.state, true
}

// SegmentStatus returns the status of timeline segment i for the job.
// Out-of-range segments and unknown jobs are pending.
func (t *Tracker) SegmentStatus(jobID string, i int) Segment {
	state, _ := t.State(jobID)
	return SegmentFor(Rank(state), i)
}

// Segments returns all five timeline segments for the job.
func (t *Tracker) Segments(jobID string) []SegmentView {
	state, _ := t.State(jobID)
	return segmentsFor(Rank(state))
}

// StatusLabel returns the label supplied with the last state change, or a
// label derived from the state name.
func (t *Tracker) StatusLabel(jobID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	js, ok := t.jobs[jobID]
	if !ok {
		return DefaultLabel(types.StateIdle)
	}
	return resolveLabel(js)
}

// Snapshot returns the full view of one job.
func (t *Tracker) Snapshot(jobID string) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	js, ok := t.jobs[jobID]
	if !ok {
		return Snapshot{}, false
	}
	rank := Rank(js.state)
	return Snapshot{
		JobID:     jobID,
		State:     js.state,
		Rank:      rank,
		Label:     resolveLabel(js),
		Segments:  segmentsFor(rank),
		UpdatedAt: js.updated,
	}, true
}

// Jobs lists tracked job ids in sorted order.
func (t *Tracker) Jobs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.jobs))
	for id := range t.jobs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// End discards the job's status once its result has been delivered.
func (t *Tracker) End(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, jobID)
}

func resolveLabel(js *jobStatus) string {
	if js.label != "" {
		return js.label
	}
	return DefaultLabel(js.state)
}

func segmentsFor(rank int) []SegmentView {
	out := make([]SegmentView, len(Timeline))
	for i, name := range Timeline {
		out[i] = SegmentView{Name: name, Status: SegmentFor(rank, i)}
	}
	return out
}
