package progress

import (
	"sync"
	"time"

	"scribe-pipeline-go/internal/types"
)

// DefaultEventHistory is how many events a bus keeps when no size is given.
const DefaultEventHistory = 500

// Event records one state change of one job.
type Event struct {
	Seq       int64               `json:"seq"`
	Timestamp time.Time           `json:"timestamp"`
	JobID     string              `json:"job_id"`
	State     types.PipelineState `json:"state"`
	Rank      int                 `json:"rank"`
	Label     string              `json:"label"`
}

// EventBus keeps the most recent state changes in a fixed ring. Sequence
// numbers start at 1 and have no gaps, so event n lives in slot (n-1) mod size
// for as long as it is retained.
type EventBus struct {
	mu   sync.RWMutex
	ring []Event
	last int64
}

// NewEventBus creates a bus that retains the last history events.
func NewEventBus(history int) *EventBus {
	if history <= 0 {
		history = DefaultEventHistory
	}
	return &EventBus{ring: make([]Event, history)}
}

// Publish stamps event with the next sequence number, overwriting the oldest
// retained event once the ring is full.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last++
	event.Seq = b.last
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	b.ring[b.slot(event.Seq)] = event
	return event
}

// Since returns the retained events with Seq > seq, oldest first.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	from := max(seq+1, b.oldest())
	if from > b.last {
		return nil
	}
	out := make([]Event, 0, b.last-from+1)
	for n := from; n <= b.last; n++ {
		out = append(out, b.ring[b.slot(n)])
	}
	return out
}

// ForJob returns the retained events of one job, oldest first.
func (b *EventBus) ForJob(jobID string) []Event {
	var out []Event
	for _, e := range b.Since(0) {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out
}

// oldest is the smallest retained sequence number.
func (b *EventBus) oldest() int64 {
	return max(1, b.last-int64(len(b.ring))+1)
}

func (b *EventBus) slot(seq int64) int {
	return int((seq - 1) % int64(len(b.ring)))
}
