package agent

import (
	"math"
	"sort"

	"intersection-sim/server/internal/collision"
	"intersection-sim/server/internal/v2x"
)

// perceive builds the perception features the rest of the pipeline
// consumes: visible neighbors, the nearest forward vehicle on the same
// lane, emergency proximity, and whether this agent is party to an
// imminent collision.
func perceive(in Inputs) Perception {
	p := Perception{}

	in.Snapshot.Each(func(id v2x.AgentId, msg v2x.Message) {
		if id == in.Self.AgentID {
			return
		}
		d := distance(in.Self.X, in.Self.Y, msg.X, msg.Y)
		if d > in.ObservationRadius {
			return
		}
		p.Neighbors = append(p.Neighbors, msg)
		if msg.IsEmergency && d <= in.ObservationRadius {
			p.EmergencyNearby = true
		}
		if isTrailingOnSameLane(in.Self, msg) && msg.IsEmergency {
			p.TrailingEmergency = true
		}
	})
	sort.Slice(p.Neighbors, func(i, j int) bool {
		return distance(in.Self.X, in.Self.Y, p.Neighbors[i].X, p.Neighbors[i].Y) <
			distance(in.Self.X, in.Self.Y, p.Neighbors[j].X, p.Neighbors[j].Y)
	})

	if forward, ttc, ok := nearestForward(in.Self, p.Neighbors); ok {
		p.NearestForward = &forward
		p.NearestForwardTTC = ttc
		p.HasNearestForward = true
	}

	for i := range in.CollisionPairs {
		pair := in.CollisionPairs[i]
		if pair.A != in.Self.AgentID && pair.B != in.Self.AgentID {
			continue
		}
		if pair.Risk == collision.RiskCollision {
			p.ImminentCollision = true
		}
		if p.NearestCollisionPair == nil || pair.TTC < p.NearestCollisionPair.TTC {
			p.NearestCollisionPair = &pair
		}
	}

	return p
}

func distance(x1, y1, x2, y2 float64) float64 {
	dx := x1 - x2
	dy := y1 - y2
	return math.Sqrt(dx*dx + dy*dy)
}

// isTrailingOnSameLane reports whether other is behind self, heading the
// same direction, within a narrow lateral band (i.e. following on the same
// lane rather than merely nearby).
func isTrailingOnSameLane(self, other v2x.Message) bool {
	headingDiff := angleDelta(self.Heading, other.Heading)
	if headingDiff > 10 {
		return false
	}
	hx, hy := headingVector(self.Heading)
	dx := self.X - other.X
	dy := self.Y - other.Y
	ahead := dx*hx + dy*hy // positive when self is ahead of other
	lateral := math.Abs(dx*hy - dy*hx)
	return ahead > 0 && lateral < 2.5
}

// nearestForward finds the closest neighbor ahead of self on the same
// lane and the time-to-collision against it at current closing speed,
// used by the follow-distance adaptive rule.
func nearestForward(self v2x.Message, neighbors []v2x.Message) (v2x.Message, float64, bool) {
	hx, hy := headingVector(self.Heading)
	var best v2x.Message
	bestDist := math.Inf(1)
	found := false
	for _, n := range neighbors {
		headingDiff := angleDelta(self.Heading, n.Heading)
		if headingDiff > 10 {
			continue
		}
		dx := n.X - self.X
		dy := n.Y - self.Y
		ahead := dx*hx + dy*hy
		lateral := math.Abs(dx*hy - dy*hx)
		if ahead <= 0 || lateral > 2.5 {
			continue
		}
		d := distance(self.X, self.Y, n.X, n.Y)
		if d < bestDist {
			bestDist = d
			best = n
			found = true
		}
	}
	if !found {
		return v2x.Message{}, 0, false
	}
	closing := self.V - best.V
	if closing <= 0 {
		return best, math.Inf(1), true
	}
	return best, bestDist / closing, true
}

func headingVector(degrees float64) (float64, float64) {
	rad := degrees * math.Pi / 180
	return math.Sin(rad), math.Cos(rad)
}

func angleDelta(a, b float64) float64 {
	d := a - b
	for d < -180 {
		d += 360
	}
	for d > 180 {
		d -= 360
	}
	if d < 0 {
		d = -d
	}
	return d
}
