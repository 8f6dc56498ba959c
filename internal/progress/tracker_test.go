package progress

import (
	"fmt"
	"sync"
	"testing"

	"scribe-pipeline-go/internal/types"
)

func TestRankTable(t *testing.T) {
	cases := map[types.PipelineState]int{
		types.StateIdle:               0,
		types.StateRecovering:         1,
		types.StateFailed:             1,
		types.StateRecording:          1,
		types.StateTranscribingLive:   2,
		types.StateProcessingPartials: 2,
		types.StateFinalizing:         2,
		types.StateAwaitingBudget:     3,
		types.StateDraftReady:         3,
		types.StateHardening:          4,
		types.StateProvisional:        4,
		types.StateCompleted:          5,
		"warp_speed":                  0,
	}
	for state, want := range cases {
		if got := Rank(state); got != want {
			t.Fatalf("Rank(%s) = %d, want %d", state, got, want)
		}
	}
}

func TestSegmentsForHardening(t *testing.T) {
	tr := NewTracker(nil)
	tr.SetState("job-1", types.StateHardening)

	want := []Segment{SegmentDone, SegmentDone, SegmentDone, SegmentActive, SegmentPending}
	for i, w := range want {
		if got := tr.SegmentStatus("job-1", i); got != w {
			t.Fatalf("segment %d = %s, want %s", i, got, w)
		}
	}
	views := tr.Segments("job-1")
	if len(views) != 5 || views[3].Name != types.StateHardening || views[3].Status != SegmentActive {
		t.Fatalf("unexpected segments: %+v", views)
	}
}

func TestSegmentEdges(t *testing.T) {
	tr := NewTracker(nil)
	// unknown job behaves like idle
	for i := 0; i < 5; i++ {
		if got := tr.SegmentStatus("nobody", i); got != SegmentPending {
			t.Fatalf("segment %d = %s, want pending", i, got)
		}
	}
	tr.SetState("job", types.StateCompleted)
	for i := 0; i < 4; i++ {
		if got := tr.SegmentStatus("job", i); got != SegmentDone {
			t.Fatalf("segment %d = %s, want done", i, got)
		}
	}
	if got := tr.SegmentStatus("job", 4); got != SegmentActive {
		t.Fatalf("completed segment = %s, want active", got)
	}
	if got := tr.SegmentStatus("job", 7); got != SegmentPending {
		t.Fatalf("out of range segment = %s, want pending", got)
	}
}

func TestSetStateIsUnconditional(t *testing.T) {
	tr := NewTracker(nil)
	tr.SetState("job", types.StateCompleted)
	tr.SetState("job", types.StateIdle)
	tr.SetState("job", types.StateFailed)
	if got, ok := tr.State("job"); !ok || got != types.StateFailed {
		t.Fatalf("state = %s, %v", got, ok)
	}
}

func TestStatusLabel(t *testing.T) {
	tr := NewTracker(nil)
	tr.SetState("job", types.StateDraftReady)
	if got := tr.StatusLabel("job"); got != "Draft ready" {
		t.Fatalf("label = %q", got)
	}
	tr.SetStateLabel("job", types.StateRecovering, "Retrying generate_note (attempt 2 of 4)")
	if got := tr.StatusLabel("job"); got != "Retrying generate_note (attempt 2 of 4)" {
		t.Fatalf("label = %q", got)
	}
	tr.SetState("job", types.StateHardening)
	if got := tr.StatusLabel("job"); got != "Hardening" {
		t.Fatalf("custom label should be cleared, got %q", got)
	}
	tr.SetState("job", "mystery")
	if got := tr.StatusLabel("job"); got != "Unknown" {
		t.Fatalf("label = %q, want Unknown", got)
	}
}

func TestDefaultLabelMatchesRank(t *testing.T) {
	for _, s := range []types.PipelineState{"DRAFT_READY", " draft_ready", "Completed"} {
		if Rank(s) != 0 || DefaultLabel(s) != "Unknown" {
			t.Fatalf("%q: rank %d, label %q; want 0, Unknown", s, Rank(s), DefaultLabel(s))
		}
	}
	if got := DefaultLabel(types.StateAwaitingBudget); got != "Awaiting budget" {
		t.Fatalf("label = %q", got)
	}
}

func TestSnapshotAndEnd(t *testing.T) {
	tr := NewTracker(nil)
	tr.SetState("a", types.StateRecording)
	tr.SetState("b", types.StateFinalizing)

	snap, ok := tr.Snapshot("b")
	if !ok || snap.Rank != 2 || snap.Label != "Finalizing" || len(snap.Segments) != 5 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if jobs := tr.Jobs(); fmt.Sprint(jobs) != "[a b]" {
		t.Fatalf("jobs = %v", jobs)
	}

	tr.End("a")
	if _, ok := tr.Snapshot("a"); ok {
		t.Fatal("ended job should be gone")
	}
	if got, _ := tr.State("b"); got != types.StateFinalizing {
		t.Fatal("ending one job must not touch another")
	}
}

func TestEventsFollowWriteOrder(t *testing.T) {
	bus := NewEventBus(10)
	var hooked []types.PipelineState
	tr := NewTracker(bus, func(e Event) { hooked = append(hooked, e.State) })

	states := []types.PipelineState{types.StateRecording, types.StateTranscribingLive, types.StateRecovering, types.StateTranscribingLive}
	for _, s := range states {
		tr.SetState("job", s)
	}
	tr.SetState("other", types.StateIdle)

	events := bus.ForJob("job")
	if len(events) != len(states) {
		t.Fatalf("len = %d, want %d", len(events), len(states))
	}
	for i, e := range events {
		if e.State != states[i] {
			t.Fatalf("event %d = %s, want %s", i, e.State, states[i])
		}
		if i > 0 && e.Seq <= events[i-1].Seq {
			t.Fatalf("sequence not increasing: %+v", events)
		}
	}
	if len(hooked) != 5 {
		t.Fatalf("hook calls = %d, want 5", len(hooked))
	}
	if got := bus.Since(events[1].Seq); len(got) != 3 {
		t.Fatalf("Since = %d events, want 3", len(got))
	}
}

func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{JobID: "1"})
	bus.Publish(Event{JobID: "2"})
	bus.Publish(Event{JobID: "3"})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].JobID != "2" || events[1].JobID != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if got := bus.Since(events[1].Seq); len(got) != 0 {
		t.Fatalf("nothing newer than the last event, got %+v", got)
	}

	for i := 0; i < 5; i++ {
		bus.Publish(Event{JobID: "wrap"})
	}
	events = bus.Since(1)
	if len(events) != 2 || events[0].Seq != 7 || events[1].Seq != 8 {
		t.Fatalf("after wrap-around: %+v", events)
	}
}

func TestConcurrentJobsAreIndependent(t *testing.T) {
	tr := NewTracker(NewEventBus(1000))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("job-%d", i)
			for _, s := range Timeline {
				tr.SetState(id, s)
				_ = tr.Segments(id)
				_ = tr.StatusLabel(id)
			}
		}(i)
	}
	wg.Wait()
	for _, id := range tr.Jobs() {
		if got, _ := tr.State(id); got != types.StateCompleted {
			t.Fatalf("%s = %s, want completed", id, got)
		}
	}
}
