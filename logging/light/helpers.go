package light

import (
	"context"

	"intersection-sim/server/logging"
)

// EventPhaseChanged is emitted whenever a traffic light transitions phase.
const EventPhaseChanged logging.EventType = "light.phase_changed"

// PhaseChangedPayload describes the transition.
type PhaseChangedPayload struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Remaining float64 `json:"remaining"`
	Emergency bool    `json:"emergency"`
}

// PhaseChanged publishes a phase-changed event.
func PhaseChanged(ctx context.Context, pub logging.Publisher, tick uint64, intersection logging.EntityRef, payload PhaseChangedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPhaseChanged,
		Tick:     tick,
		Actor:    intersection,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLight,
		Payload:  payload,
	})
}
