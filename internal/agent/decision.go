package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"intersection-sim/server/internal/advisor"
	"intersection-sim/server/internal/collision"
	"intersection-sim/server/internal/priority"
	"intersection-sim/server/internal/v2x"
	agentevents "intersection-sim/server/logging"
	agentlog "intersection-sim/server/logging/agentlog"
)

// policeSpeedBoost mirrors the background traffic generator's treatment of
// a responding police vehicle: faster than the flow of traffic, capped at
// the configured speed limit, but never an emergency override of signals
// or zone priority the way an ambulance gets.
const policeSpeedBoost = 1.4

// Vehicle is one simulated vehicle agent: its identity, behavioral
// profile, memory, and the small amount of cross-tick state the
// oscillation damper needs.
type Vehicle struct {
	ID      v2x.AgentId
	Profile Profile
	Memory  *Memory
	Advisor *advisor.Guarded // nil: this agent never consults the advisor
	Rand    func() float64   // drunk-variant noise source; required for ProfileDrunk

	Logger agentevents.Publisher

	mu                        sync.Mutex
	forcedYieldTicksRemaining int
}

// NewVehicle constructs an agent. A nil logger disables telemetry
// emission; a nil rand defaults to zero (deterministic, no drunk noise).
func NewVehicle(id v2x.AgentId, profile Profile, memory *Memory, adv *advisor.Guarded, rand func() float64, logger agentevents.Publisher) *Vehicle {
	if logger == nil {
		logger = agentevents.NopPublisher()
	}
	if rand == nil {
		rand = func() float64 { return 0 }
	}
	return &Vehicle{ID: id, Profile: profile, Memory: memory, Advisor: adv, Rand: rand, Logger: logger}
}

// Decide runs the full pipeline for one tick and commits the resulting
// decision to memory. It never returns an error: every failure mode (no
// advisor, advisor error, breaker open) has a deterministic fallback, so
// the advisor is never on the tick's critical path.
func (v *Vehicle) Decide(ctx context.Context, tick uint64, now time.Time, in Inputs) Decision {
	perception := perceive(in)
	drunk := v.Profile == ProfileDrunk

	var decision Decision
	overridden := false

	if !drunk {
		if ov, ok := v.hardOverride(in, perception); ok {
			decision = ov
			overridden = true
		}
	}

	var advisorUsed bool
	if !overridden {
		decision, advisorUsed = v.chooseViaAdvisorOrFallback(ctx, tick, now, in, perception)
		if v.Profile == ProfilePolice {
			decision = boostPoliceSpeed(decision, in.VMax)
		}
		if !drunk {
			decision = v.applyOscillationDamper(decision)
		}
	}

	if drunk {
		decision = v.corruptForDrunk(decision, in.Self.V)
	}

	decision.AdvisorUsed = advisorUsed

	v.commit(ctx, tick, decision, in, perception)
	return decision
}

// boostPoliceSpeed raises a "go" decision's target speed for a police
// profile, capped at the configured speed limit. Every other action is
// left untouched: a police vehicle still stops for red, brakes on
// imminent collision, and yields per priority like anyone else.
func boostPoliceSpeed(d Decision, vMax float64) Decision {
	if d.Action != ActionGo {
		return d
	}
	boosted := d.TargetSpeed * policeSpeedBoost
	if boosted > vMax {
		boosted = vMax
	}
	d.TargetSpeed = boosted
	return d
}

// hardOverride applies the four safety checks that bypass the advisor
// entirely, in the order the decision function's contract lists them.
func (v *Vehicle) hardOverride(in Inputs, p Perception) (Decision, bool) {
	if in.IntersectionControlled && !in.LightGreenForSelf && !in.InsideIntersection && !in.CoordinatorAdmitted {
		return Decision{Action: ActionStop, TargetSpeed: 0, Reason: "red light at stop line"}, true
	}
	if in.InsideIntersection {
		return Decision{Action: ActionGo, TargetSpeed: in.Self.V, Reason: "clearing the intersection"}, true
	}
	if p.ImminentCollision {
		return Decision{Action: ActionBrake, TargetSpeed: 0, Reason: "imminent collision"}, true
	}
	if in.Advisory == priority.MustYield && p.EmergencyNearby {
		if p.TrailingEmergency {
			return Decision{Action: ActionPullOver, TargetSpeed: in.Self.V * 0.3, Reason: "pulling over for trailing emergency vehicle"}, true
		}
		return Decision{Action: ActionYield, TargetSpeed: 0, Reason: "yielding to emergency vehicle"}, true
	}
	return Decision{}, false
}

func (v *Vehicle) chooseViaAdvisorOrFallback(ctx context.Context, tick uint64, now time.Time, in Inputs, p Perception) (Decision, bool) {
	if v.Advisor != nil {
		reqCtx := buildAdvisorContext(v.ID, in, p, v.Memory)
		dec, err := v.Advisor.Advise(ctx, tick, now, reqCtx)
		if err == nil {
			return Decision{Action: Action(dec.Action), TargetSpeed: dec.Speed, Reason: dec.Reason}, true
		}
	}
	return adaptiveRule(in, p), false
}

// adaptiveRule is the deterministic cascade used whenever the advisor is
// absent, the breaker is open, or the call failed: follow-distance, then
// stop for red, then yield per priority, else go at the speed limit.
func adaptiveRule(in Inputs, p Perception) Decision {
	if p.HasNearestForward && p.NearestForwardTTC < in.FollowGapSeconds {
		return Decision{Action: ActionBrake, TargetSpeed: in.Self.V * 0.5, Reason: "closing on vehicle ahead"}
	}
	if in.IntersectionControlled && !in.LightGreenForSelf && !in.InsideIntersection {
		return Decision{Action: ActionStop, TargetSpeed: 0, Reason: "stopping for red"}
	}
	if in.Advisory == priority.MustYield {
		return Decision{Action: ActionYield, TargetSpeed: 0, Reason: "yielding per right-of-way"}
	}
	return Decision{Action: ActionGo, TargetSpeed: in.VMax, Reason: "clear to proceed"}
}

// applyOscillationDamper forces a two-tick yield once the last three
// committed actions plus the tentative one alternate go/stop (or stop/go);
// otherwise it passes the tentative decision through unchanged.
func (v *Vehicle) applyOscillationDamper(tentative Decision) Decision {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.forcedYieldTicksRemaining > 0 {
		v.forcedYieldTicksRemaining--
		return Decision{Action: ActionYield, TargetSpeed: 0, Reason: "oscillation damper forcing yield"}
	}

	recent := v.Memory.RecentActions(3)
	window := append(append([]Action{}, recent...), tentative.Action)
	if isAlternatingGoStop(window) {
		// This tick and the next one are the "two ticks" of forced yield.
		v.forcedYieldTicksRemaining = 1
		return Decision{Action: ActionYield, TargetSpeed: 0, Reason: "oscillation damper forcing yield"}
	}
	return tentative
}

func isAlternatingGoStop(actions []Action) bool {
	if len(actions) < 4 {
		return false
	}
	last4 := actions[len(actions)-4:]
	var prev string
	for i, a := range last4 {
		bucket, ok := goStopBucket(a)
		if !ok {
			return false
		}
		if i > 0 && bucket == prev {
			return false
		}
		prev = bucket
	}
	return true
}

func goStopBucket(a Action) (string, bool) {
	switch a {
	case ActionGo:
		return "go", true
	case ActionStop, ActionBrake:
		return "stop", true
	default:
		return "", false
	}
}

// corruptForDrunk injects heading noise and probabilistic disregard of
// whatever the (suppressed) safety path would have produced. Hard
// overrides never ran for this agent; peers evaluating their own
// perception still see and react to it normally.
func (v *Vehicle) corruptForDrunk(baseline Decision, selfV float64) Decision {
	noise := (v.Rand()*2 - 1) * 20 // +-20 degrees
	if v.Rand() < 0.7 {
		transient := selfV * (1 + (v.Rand()*2-1)*0.3)
		return Decision{Action: ActionGo, TargetSpeed: transient, Reason: "drunk: disregarding signal", HeadingNoiseDeg: noise}
	}
	noisy := baseline
	noisy.TargetSpeed = baseline.TargetSpeed * (1 + (v.Rand()*2-1)*0.15)
	noisy.HeadingNoiseDeg = noise
	noisy.Reason = "drunk: " + baseline.Reason
	return noisy
}

func buildAdvisorContext(id v2x.AgentId, in Inputs, p Perception, mem *Memory) advisor.Context {
	peers := make([]advisor.PeerSummary, 0, 3)
	for i, n := range p.Neighbors {
		if i >= 3 {
			break
		}
		peers = append(peers, advisor.PeerSummary{
			ID: n.AgentID, X: n.X, Y: n.Y, V: n.V, Heading: n.Heading,
			Distance: distance(in.Self.X, in.Self.Y, n.X, n.Y),
		})
	}
	return advisor.Context{
		SelfID:       id,
		X:            in.Self.X,
		Y:            in.Self.Y,
		V:            in.Self.V,
		Heading:      in.Self.Heading,
		Intent:       in.Self.Intent,
		Advisory:     string(in.Advisory),
		Peers:        peers,
		MemoryDigest: mem.Digest(5),
	}
}

func (v *Vehicle) commit(ctx context.Context, tick uint64, decision Decision, in Inputs, p Perception) {
	v.Memory.Record(MemoryEntry{Tick: tick, Decision: decision.Action, Reason: decision.Reason})
	if p.NearestCollisionPair != nil && p.NearestCollisionPair.Risk == collision.RiskHigh {
		peer := p.NearestCollisionPair.A
		if peer == v.ID {
			peer = p.NearestCollisionPair.B
		}
		v.Memory.RecordNearMiss(NearMiss{Tick: tick, PeerID: peer, TTC: p.NearestCollisionPair.TTC, X: in.Self.X, Y: in.Self.Y})
		if v.Memory.NearMissesWithPeer(peer) >= 2 {
			v.Memory.AddLesson(fmt.Sprintf("peer %s repeatedly closes to a high-risk approach, yield early", peer))
		}
		agentlog.NearMiss(ctx, v.Logger, tick,
			agentevents.EntityRef{Kind: agentevents.EntityKindAgent, ID: string(v.ID)},
			agentevents.EntityRef{Kind: agentevents.EntityKindAgent, ID: string(peer)},
			p.NearestCollisionPair.TTC)
	}
	agentlog.Decision(ctx, v.Logger, tick, agentevents.EntityRef{Kind: agentevents.EntityKindAgent, ID: string(v.ID)},
		agentlog.DecisionPayload{Action: string(decision.Action), Speed: decision.TargetSpeed, Reason: decision.Reason})
}
