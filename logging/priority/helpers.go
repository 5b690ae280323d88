package priority

import (
	"context"

	"intersection-sim/server/logging"
)

// EventPreemption is emitted when an emergency vehicle preempts the normal
// right-of-way ordering for a conflict zone.
const EventPreemption logging.EventType = "priority.emergency_preemption"

// PreemptionPayload carries how many peers were forced to yield; the event's
// Actor and Targets name the emergency agent and those peers.
type PreemptionPayload struct {
	YieldingCount int `json:"yieldingCount"`
}

// Preemption publishes a preemption event.
func Preemption(ctx context.Context, pub logging.Publisher, tick uint64, emergency logging.EntityRef, yielding []logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPreemption,
		Tick:     tick,
		Actor:    emergency,
		Targets:  yielding,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryPriority,
		Payload:  PreemptionPayload{YieldingCount: len(yielding)},
	})
}
