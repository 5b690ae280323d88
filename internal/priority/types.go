// Package priority implements the two-rule right-of-way arbiter: emergency
// preemption first, then right-side-has-priority for uncontrolled
// simultaneous approaches.
package priority

import "intersection-sim/server/internal/v2x"

// Advisory is the outcome the decision function consumes: whether an agent
// must yield the conflict it is currently evaluated against.
type Advisory string

const (
	MustYield Advisory = "must_yield"
	MayGo     Advisory = "may_go"
)

// Zone describes a conflict zone (an intersection) the arbiter reasons
// about. It does not need to know whether the zone is signal-controlled
// beyond that flag: controlled zones defer right-of-way to the traffic
// light and only receive the emergency-preemption rule.
type Zone struct {
	ID         string
	CenterX    float64
	CenterY    float64
	Controlled bool
}

// Result is the arbiter's per-agent output for one evaluation pass.
type Result struct {
	Advisories map[v2x.AgentId]Advisory
}

// Get returns the advisory for id, defaulting to MayGo when the agent was
// not evaluated against any zone.
func (r Result) Get(id v2x.AgentId) Advisory {
	if a, ok := r.Advisories[id]; ok {
		return a
	}
	return MayGo
}
