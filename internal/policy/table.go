package policy

import (
	"errors"
	"fmt"
	"time"

	"scribe-pipeline-go/internal/types"
)

// RetryPolicy is the retry tuning for one stage. Values are fixed once looked up.
type RetryPolicy struct {
	Stage          types.StageKind `json:"stage"`
	MaxRetries     int             `json:"max_retries"`
	AttemptTimeout time.Duration   `json:"attempt_timeout"`
	BaseDelay      time.Duration   `json:"base_delay"`
	MaxDelay       time.Duration   `json:"max_delay"`
}

// Attempts is the total number of attempts the policy allows.
func (p RetryPolicy) Attempts() int { return p.MaxRetries + 1 }

// Validate checks 0 < BaseDelay <= MaxDelay, AttemptTimeout > 0 and MaxRetries >= 0.
func (p RetryPolicy) Validate() error {
	var errs []error
	if p.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries %d is negative", p.MaxRetries))
	}
	if p.AttemptTimeout <= 0 {
		errs = append(errs, fmt.Errorf("attempt timeout %s must be positive", p.AttemptTimeout))
	}
	if p.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("base delay %s must be positive", p.BaseDelay))
	}
	if p.MaxDelay < p.BaseDelay {
		errs = append(errs, fmt.Errorf("max delay %s is below base delay %s", p.MaxDelay, p.BaseDelay))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid %s policy: %w", p.Stage, errors.Join(errs...))
	}
	return nil
}

// Preset selects between the two tunings for generation and validation.
type Preset int

const (
	PresetStandard Preset = iota
	PresetFastPath
)

func (p Preset) String() string {
	if p == PresetFastPath {
		return "fast-path"
	}
	return "standard"
}

// Table maps stages to policies. It is read-only after NewTable and safe for
// concurrent use.
type Table struct {
	preset   Preset
	policies map[types.StageKind]RetryPolicy
}

// NewTable builds the table for the given preset. The preset is fixed for
// the life of the table.
func NewTable(preset Preset) *Table {
	policies := map[types.StageKind]RetryPolicy{
		types.StageTranscription: {MaxRetries: 3, AttemptTimeout: 45 * time.Second, BaseDelay: time.Second, MaxDelay: 8 * time.Second},
		types.StageExtraction:    {MaxRetries: 2, AttemptTimeout: 30 * time.Second, BaseDelay: 500 * time.Millisecond, MaxDelay: 4 * time.Second},
		types.StageGeneration:    {MaxRetries: 3, AttemptTimeout: 90 * time.Second, BaseDelay: time.Second, MaxDelay: 12 * time.Second},
		types.StageValidation:    {MaxRetries: 2, AttemptTimeout: 30 * time.Second, BaseDelay: 500 * time.Millisecond, MaxDelay: 6 * time.Second},
		types.StagePersistence:   {MaxRetries: 5, AttemptTimeout: 10 * time.Second, BaseDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second},
		types.StageDefault:       {MaxRetries: 3, AttemptTimeout: 30 * time.Second, BaseDelay: 500 * time.Millisecond, MaxDelay: 12 * time.Second},
	}
	if preset == PresetFastPath {
		policies[types.StageGeneration] = RetryPolicy{MaxRetries: 1, AttemptTimeout: 30 * time.Second, BaseDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second}
		policies[types.StageValidation] = RetryPolicy{MaxRetries: 1, AttemptTimeout: 15 * time.Second, BaseDelay: 250 * time.Millisecond, MaxDelay: time.Second}
	}
	for stage, p := range policies {
		p.Stage = stage
		policies[stage] = p
	}
	return &Table{preset: preset, policies: policies}
}

// Preset reports which tuning the table was built with.
func (t *Table) Preset() Preset { return t.preset }

// Lookup returns the policy for stage, falling back to the default policy.
func (t *Table) Lookup(stage types.StageKind) RetryPolicy {
	switch stage {
	case types.StageTranscription, types.StageExtraction, types.StageGeneration,
		types.StageValidation, types.StagePersistence:
		return t.policies[stage]
	default:
		return t.policies[types.StageDefault]
	}
}

// Policies lists every policy in pipeline order.
func (t *Table) Policies() []RetryPolicy {
	stages := types.Stages()
	out := make([]RetryPolicy, 0, len(stages))
	for _, s := range stages {
		out = append(out, t.Lookup(s))
	}
	return out
}
