package coordinator

import (
	"context"

	"intersection-sim/server/logging"
)

// EventAdmitted is emitted when an agent is admitted into an
// intersection's center box.
const EventAdmitted logging.EventType = "coordinator.admitted"

// EventQueued is emitted when an agent joins an intersection's arrival
// queue.
const EventQueued logging.EventType = "coordinator.queued"

// AdmittedPayload carries the intersection identifier an agent was let
// into.
type AdmittedPayload struct {
	IntersectionID string `json:"intersectionId"`
}

// Admitted publishes an admission event.
func Admitted(ctx context.Context, pub logging.Publisher, tick uint64, agent logging.EntityRef, intersectionID string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAdmitted,
		Tick:     tick,
		Actor:    agent,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCoordinator,
		Payload:  AdmittedPayload{IntersectionID: intersectionID},
	})
}

// Queued publishes a queue-join event.
func Queued(ctx context.Context, pub logging.Publisher, tick uint64, agent logging.EntityRef, intersectionID string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventQueued,
		Tick:     tick,
		Actor:    agent,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryCoordinator,
		Payload:  AdmittedPayload{IntersectionID: intersectionID},
	})
}
