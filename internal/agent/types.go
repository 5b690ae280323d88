package agent

import (
	"intersection-sim/server/internal/collision"
	"intersection-sim/server/internal/priority"
	"intersection-sim/server/internal/v2x"
)

// Action is the committed decision's verb. It extends the wire-level
// {go, yield, brake, stop} vocabulary with pull_over, the maneuver the
// hard-override step chooses for a vehicle clearing the way for a trailing
// emergency vehicle.
type Action string

const (
	ActionGo       Action = "go"
	ActionYield    Action = "yield"
	ActionBrake    Action = "brake"
	ActionStop     Action = "stop"
	ActionPullOver Action = "pull_over"
)

// Decision is the vehicle agent's committed output for one tick.
// HeadingNoiseDeg is non-zero only for the drunk-driver variant; the
// kinematics integrator adds it to the vehicle's heading after applying
// TargetSpeed.
type Decision struct {
	Action          Action
	TargetSpeed     float64
	Reason          string
	HeadingNoiseDeg float64

	// AdvisorUsed is true only when the advisor was consulted this tick and
	// returned a usable decision, independent of whether a later step (the
	// oscillation damper, drunk corruption) went on to overwrite it. It is
	// the signal the simulation manager uses to count llm_calls.
	AdvisorUsed bool
}

// Perception is the set of features the decision function computes from
// the snapshot and shared component outputs before choosing an action.
type Perception struct {
	Neighbors            []v2x.Message
	NearestForward       *v2x.Message
	NearestForwardTTC    float64
	HasNearestForward    bool
	EmergencyNearby      bool
	TrailingEmergency    bool
	ImminentCollision    bool
	NearestCollisionPair *collision.Pair
}

// Inputs bundles everything the decision function needs for one agent, one
// tick: its own broadcast state, the shared snapshot, the component
// outputs computed earlier in the tick, and its intersection context.
type Inputs struct {
	Self v2x.Message

	Snapshot       v2x.Snapshot
	CollisionPairs []collision.Pair
	Advisory       priority.Advisory

	InsideIntersection     bool
	IntersectionControlled bool
	LightGreenForSelf      bool
	CoordinatorAdmitted    bool

	ObservationRadius float64
	FollowGapSeconds  float64
	VMax              float64
}
