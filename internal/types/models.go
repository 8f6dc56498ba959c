package types

import "strings"

// StageKind names a phase of the processing pipeline with its own retry tuning.
type StageKind string

const (
	StageTranscription StageKind = "transcription"
	StageExtraction    StageKind = "extraction"
	StageGeneration    StageKind = "generation"
	StageValidation    StageKind = "validation"
	StagePersistence   StageKind = "persistence"
	StageDefault       StageKind = "default"
)

var stageOrder = []StageKind{
	StageTranscription,
	StageExtraction,
	StageGeneration,
	StageValidation,
	StagePersistence,
	StageDefault,
}

// Stages returns every stage in pipeline order, default last.
func Stages() []StageKind {
	out := make([]StageKind, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// ParseStageKind maps a stage name to its StageKind. The second return value
// is false for names outside the closed set.
func ParseStageKind(s string) (StageKind, bool) {
	k := StageKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case StageTranscription, StageExtraction, StageGeneration,
		StageValidation, StagePersistence, StageDefault:
		return k, true
	default:
		return StageDefault, false
	}
}

func (s StageKind) String() string { return string(s) }

// PipelineState is the user-visible status of one in-flight job.
type PipelineState string

const (
	StateIdle               PipelineState = "idle"
	StateRecovering         PipelineState = "recovering"
	StateRecording          PipelineState = "recording"
	StateTranscribingLive   PipelineState = "transcribing_live"
	StateProcessingPartials PipelineState = "processing_partials"
	StateFinalizing         PipelineState = "finalizing"
	StateAwaitingBudget     PipelineState = "awaiting_budget"
	StateDraftReady         PipelineState = "draft_ready"
	StateHardening          PipelineState = "hardening"
	StateCompleted          PipelineState = "completed"
	StateProvisional        PipelineState = "provisional"
	StateFailed             PipelineState = "failed"
)

// ParsePipelineState returns false for names outside the enumeration.
func ParsePipelineState(s string) (PipelineState, bool) {
	st := PipelineState(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StateIdle, StateRecovering, StateRecording, StateTranscribingLive,
		StateProcessingPartials, StateFinalizing, StateAwaitingBudget,
		StateDraftReady, StateHardening, StateCompleted, StateProvisional, StateFailed:
		return st, true
	default:
		return StateIdle, false
	}
}

// Terminal reports whether no further transitions are expected for the job.
func (s PipelineState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s PipelineState) String() string { return string(s) }

// JobRecord is one row of a batch manifest.
type JobRecord struct {
	JobID    string   `json:"job_id"`
	AudioURL string   `json:"audio_url"`
	Tasks    []string `json:"tasks,omitempty"`
}
