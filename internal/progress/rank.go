package progress

import (
	"strings"

	"scribe-pipeline-go/internal/types"
)

// Segment is the display status of one timeline segment.
type Segment string

const (
	SegmentPending Segment = "pending"
	SegmentActive  Segment = "active"
	SegmentDone    Segment = "done"
)

// Timeline is the fixed five-segment progress bar. Segment i is lit by rank i+1.
var Timeline = [5]types.PipelineState{
	types.StateRecording,
	types.StateTranscribingLive,
	types.StateDraftReady,
	types.StateHardening,
	types.StateCompleted,
}

// Rank orders states for display only. Several states share a rank and rank
// says nothing about which transitions are legal. Unknown states rank 0.
func Rank(s types.PipelineState) int {
	switch s {
	case types.StateRecovering, types.StateFailed, types.StateRecording:
		return 1
	case types.StateTranscribingLive, types.StateProcessingPartials, types.StateFinalizing:
		return 2
	case types.StateDraftReady, types.StateAwaitingBudget:
		return 3
	case types.StateHardening, types.StateProvisional:
		return 4
	case types.StateCompleted:
		return 5
	default:
		return 0
	}
}

// SegmentFor returns the status of timeline segment i for a given rank.
func SegmentFor(rank, i int) Segment {
	switch {
	case i < 0 || i >= len(Timeline):
		return SegmentPending
	case rank > i+1:
		return SegmentDone
	case rank == i+1:
		return SegmentActive
	default:
		return SegmentPending
	}
}

// DefaultLabel derives a readable label from the state name,
// e.g. draft_ready -> "Draft ready". Like Rank it matches names exactly, so a
// state Rank does not know is labelled "Unknown".
func DefaultLabel(s types.PipelineState) string {
	if canonical, ok := types.ParsePipelineState(string(s)); !ok || canonical != s {
		return "Unknown"
	}
	words := strings.ReplaceAll(string(s), "_", " ")
	return strings.ToUpper(words[:1]) + words[1:]
}
