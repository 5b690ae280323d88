package agentlog

import (
	"context"

	"intersection-sim/server/logging"
)

// EventDecision is emitted once per tick per agent that made a decision.
const EventDecision logging.EventType = "agent.decision"

// DecisionPayload captures the committed decision.
type DecisionPayload struct {
	Action string  `json:"action"`
	Speed  float64 `json:"speed"`
	Reason string  `json:"reason"`
}

// Decision publishes an agent-decision event.
func Decision(ctx context.Context, pub logging.Publisher, tick uint64, agent logging.EntityRef, payload DecisionPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDecision,
		Tick:     tick,
		Actor:    agent,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryAgent,
		Payload:  payload,
	})
}

// EventNearMiss is emitted when an agent's own decision loop records a
// near-miss with a peer.
const EventNearMiss logging.EventType = "agent.near_miss"

// NearMissPayload describes the recorded near-miss.
type NearMissPayload struct {
	TTC float64 `json:"ttc"`
}

// NearMiss publishes a near-miss event.
func NearMiss(ctx context.Context, pub logging.Publisher, tick uint64, agent, peer logging.EntityRef, ttc float64) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventNearMiss,
		Tick:     tick,
		Actor:    agent,
		Targets:  []logging.EntityRef{peer},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryAgent,
		Payload:  NearMissPayload{TTC: ttc},
	})
}

// EventDecisionFault is emitted when an agent's decision call panics and the
// tick falls back to a forced stop for that agent.
const EventDecisionFault logging.EventType = "agent.decision_fault"

// DecisionFault publishes a decision-fault event.
func DecisionFault(ctx context.Context, pub logging.Publisher, tick uint64, agent logging.EntityRef, consecutiveFaults int) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDecisionFault,
		Tick:     tick,
		Actor:    agent,
		Severity: logging.SeverityError,
		Category: logging.CategoryAgent,
		Payload:  map[string]any{"consecutiveFaults": consecutiveFaults},
	})
}

// EventFaultDespawn is emitted when repeated decision faults force an agent
// despawn.
const EventFaultDespawn logging.EventType = "agent.fault_despawn"

// FaultDespawn publishes a fault-despawn event.
func FaultDespawn(ctx context.Context, pub logging.Publisher, tick uint64, agent logging.EntityRef, consecutiveFaults int) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFaultDespawn,
		Tick:     tick,
		Actor:    agent,
		Severity: logging.SeverityError,
		Category: logging.CategoryAgent,
		Payload:  map[string]any{"consecutiveFaults": consecutiveFaults},
	})
}
