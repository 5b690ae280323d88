package breaker

import (
	"context"

	"intersection-sim/server/logging"
)

// EventStateChanged is emitted whenever the advisor circuit breaker
// transitions state.
const EventStateChanged logging.EventType = "breaker.state_changed"

// StateChangedPayload describes the transition.
type StateChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StateChanged publishes a breaker state-changed event.
func StateChanged(ctx context.Context, pub logging.Publisher, tick uint64, from, to string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStateChanged,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindBreaker, ID: "advisor"},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryBreaker,
		Payload:  StateChangedPayload{From: from, To: to},
	})
}
