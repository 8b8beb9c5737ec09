package batch

import (
	"fmt"
	"time"

	"gelap-studio/internal/history"
)

type EventKind string

const (
	EventStarted    EventKind = "started"
	EventGenerating EventKind = "generating"
	EventGenerated  EventKind = "generated"
	EventCooldown   EventKind = "cooldown"
	EventFinished   EventKind = "finished"
)

// Event reports progress of a run. Index is 0-based; for EventFinished it
// holds the number of completed iterations.
type Event struct {
	RunID     string        `json:"runId"`
	Kind      EventKind     `json:"kind"`
	Index     int           `json:"index"`
	Total     int           `json:"total"`
	Label     string        `json:"label,omitempty"`
	Remaining time.Duration `json:"remaining,omitempty"`
	Item      *history.Item `json:"item,omitempty"`
	State     State         `json:"state,omitempty"`
	Err       error         `json:"-"`
}

// Status renders the event as a one-line progress message.
func (e Event) Status() string {
	switch e.Kind {
	case EventStarted:
		return fmt.Sprintf("Starting batch of %d...", e.Total)
	case EventGenerating:
		if e.Label != "" {
			return fmt.Sprintf("Generating %s (%d/%d)...", e.Label, e.Index+1, e.Total)
		}
		return fmt.Sprintf("Generating image %d of %d...", e.Index+1, e.Total)
	case EventGenerated:
		return fmt.Sprintf("Generated %d of %d.", e.Index+1, e.Total)
	case EventCooldown:
		return fmt.Sprintf("Cooldown: %ds remaining to prevent rate limit...", int(e.Remaining.Round(time.Second)/time.Second))
	case EventFinished:
		switch e.State {
		case StateCompleted:
			return fmt.Sprintf("Batch complete: %d of %d.", e.Index, e.Total)
		case StateStoppedByUser:
			return fmt.Sprintf("Stopped by user after %d of %d.", e.Index, e.Total)
		default:
			return fmt.Sprintf("Batch failed after %d of %d.", e.Index, e.Total)
		}
	}
	return ""
}
