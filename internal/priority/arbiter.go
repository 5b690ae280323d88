package priority

import (
	"context"
	"math"
	"sort"

	"intersection-sim/server/internal/v2x"
	priorityevents "intersection-sim/server/logging"
	prioritylog "intersection-sim/server/logging/priority"
)

// Arbiter evaluates the snapshot against a set of conflict zones and
// produces per-agent must_yield/may_go advisories. It holds no mutable
// state of its own; every call is a pure function of its inputs.
type Arbiter struct {
	PreemptRadius float64 // D_pre, meters
	ArriveRadius  float64 // D_arrive, meters

	Logger priorityevents.Publisher
}

// NewArbiter constructs an arbiter with the given tuning. A nil logger
// disables telemetry emission.
func NewArbiter(preemptRadius, arriveRadius float64, logger priorityevents.Publisher) *Arbiter {
	if logger == nil {
		logger = priorityevents.NopPublisher()
	}
	return &Arbiter{PreemptRadius: preemptRadius, ArriveRadius: arriveRadius, Logger: logger}
}

// Evaluate applies the emergency-preemption rule and then the right-of-way
// rule, zone by zone, and returns the combined advisory set.
func (a *Arbiter) Evaluate(ctx context.Context, tick uint64, snapshot v2x.Snapshot, zones []Zone) Result {
	ids := make([]v2x.AgentId, 0, snapshot.Len())
	snapshot.Each(func(id v2x.AgentId, _ v2x.Message) { ids = append(ids, id) })
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	advisories := make(map[v2x.AgentId]Advisory, len(ids))
	preempted := make(map[string]bool, len(zones))

	for _, zone := range zones {
		var emergency []v2x.AgentId
		var others []v2x.AgentId
		for _, id := range ids {
			msg, _ := snapshot.Get(id)
			if dist(msg.X, msg.Y, zone.CenterX, zone.CenterY) > a.PreemptRadius {
				continue
			}
			if msg.IsEmergency {
				emergency = append(emergency, id)
			} else {
				others = append(others, id)
			}
		}
		if len(emergency) == 0 {
			continue
		}
		preempted[zone.ID] = true
		targets := make([]priorityevents.EntityRef, 0, len(others))
		for _, id := range others {
			advisories[id] = MustYield
			targets = append(targets, priorityevents.EntityRef{Kind: priorityevents.EntityKindAgent, ID: string(id)})
		}
		if len(targets) > 0 {
			actor := priorityevents.EntityRef{Kind: priorityevents.EntityKindAgent, ID: string(emergency[0])}
			prioritylog.Preemption(ctx, a.Logger, tick, actor, targets)
		}
	}

	for _, zone := range zones {
		if zone.Controlled || preempted[zone.ID] {
			continue
		}
		var approaching []v2x.AgentId
		for _, id := range ids {
			if advisories[id] == MustYield {
				continue
			}
			msg, _ := snapshot.Get(id)
			if msg.IsEmergency {
				continue
			}
			if dist(msg.X, msg.Y, zone.CenterX, zone.CenterY) > a.ArriveRadius {
				continue
			}
			approaching = append(approaching, id)
		}
		for i := 0; i < len(approaching); i++ {
			for j := i + 1; j < len(approaching); j++ {
				idA, idB := approaching[i], approaching[j]
				msgA, _ := snapshot.Get(idA)
				msgB, _ := snapshot.Get(idB)
				yielder, ok := rightOfWayLoser(msgA, msgB)
				if !ok {
					continue // head-on tie: both may_go
				}
				if _, already := advisories[yielder]; !already {
					advisories[yielder] = MustYield
				}
			}
		}
	}

	for _, id := range ids {
		if _, ok := advisories[id]; !ok {
			advisories[id] = MayGo
		}
	}
	return Result{Advisories: advisories}
}

func dist(x1, y1, x2, y2 float64) float64 {
	dx := x1 - x2
	dy := y1 - y2
	return math.Sqrt(dx*dx + dy*dy)
}

// rightOfWayLoser applies "the agent to the right of the other has
// priority" and returns which of a/b must yield. ok is false for the
// straight-on head-on tie, which resolves to both may_go.
func rightOfWayLoser(a, b v2x.Message) (v2x.AgentId, bool) {
	headingDiff := normalizeAngle(a.Heading - b.Heading)
	if isOpposite(headingDiff) && a.Intent == v2x.IntentThrough && b.Intent == v2x.IntentThrough {
		return "", false
	}

	bearingToB := bearing(a.X, a.Y, b.X, b.Y)
	relative := normalizeAngle(bearingToB - a.Heading)
	if relative > 0 && relative < 180 {
		// b sits to a's right: b has priority, a yields.
		return a.AgentID, true
	}
	if relative > 180 && relative < 360 {
		return b.AgentID, true
	}
	return "", false
}

func bearing(x1, y1, x2, y2 float64) float64 {
	return math.Atan2(x2-x1, y2-y1) * 180 / math.Pi
}

func normalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func isOpposite(deg float64) bool {
	const epsilon = 15
	return math.Abs(deg-180) <= epsilon
}
