package processor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// DefaultTasks runs every stage from transcription to persistence.
var DefaultTasks = []string{
	"transcribe_audio",
	"extract_findings",
	"generate_note",
	"validate_note",
	"save_record",
}

// MockSteps builds offline steps for tasks. Each step waits for latency and
// then fails with probability failureRate, so the retry path gets exercised
// without any real backends.
func MockSteps(tasks []string, failureRate float64, latency time.Duration) []Step {
	steps := make([]Step, 0, len(tasks))
	for _, task := range tasks {
		steps = append(steps, Step{
			Task: task,
			Run: func(ctx context.Context, input any) (any, error) {
				t := time.NewTimer(latency)
				defer t.Stop()
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-t.C:
				}
				if failureRate > 0 && rand.Float64() < failureRate {
					return nil, fmt.Errorf("mock %s: transient failure", task)
				}
				return fmt.Sprintf("%s(%v)", task, input), nil
			},
		})
	}
	return steps
}
