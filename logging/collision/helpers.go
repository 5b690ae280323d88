package collision

import (
	"context"

	"intersection-sim/server/logging"
)

// EventPair is emitted for every collision pair reported above the "low"
// risk band.
const EventPair logging.EventType = "collision.pair_reported"

// PairPayload captures the predicted collision geometry for a pair.
type PairPayload struct {
	TTC  float64 `json:"ttc"`
	Risk string  `json:"risk"`
}

// Pair publishes a collision-pair event.
func Pair(ctx context.Context, pub logging.Publisher, tick uint64, a, b logging.EntityRef, ttc float64, risk string) {
	if pub == nil {
		return
	}
	severity := logging.SeverityInfo
	if risk == "collision" || risk == "high" {
		severity = logging.SeverityWarn
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPair,
		Tick:     tick,
		Actor:    a,
		Targets:  []logging.EntityRef{b},
		Severity: severity,
		Category: logging.CategoryCollision,
		Payload:  PairPayload{TTC: ttc, Risk: risk},
	})
}
