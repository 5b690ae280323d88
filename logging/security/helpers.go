package security

import (
	"context"

	"intersection-sim/server/logging"
)

// EventRejected is emitted whenever the V2X security filter rejects a
// published message.
const EventRejected logging.EventType = "security.message_rejected"

// RejectedPayload captures why a message was rejected.
type RejectedPayload struct {
	Reason string `json:"reason"`
}

// Rejected publishes a message-rejected event.
func Rejected(ctx context.Context, pub logging.Publisher, tick uint64, agent logging.EntityRef, reason string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRejected,
		Tick:     tick,
		Actor:    agent,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySecurity,
		Payload:  RejectedPayload{Reason: reason},
	})
}

// EventPruned is emitted when an agent's stale message is dropped from the
// channel snapshot due to liveness expiry.
const EventPruned logging.EventType = "security.agent_pruned"

// Pruned publishes an agent-pruned event.
func Pruned(ctx context.Context, pub logging.Publisher, tick uint64, agent logging.EntityRef) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPruned,
		Tick:     tick,
		Actor:    agent,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySecurity,
	})
}
