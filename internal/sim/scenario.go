package sim

import (
	"intersection-sim/server/internal/agent"
	"intersection-sim/server/internal/v2x"
)

// The seven bit-exact scenario identifiers. Each corresponds to one fixed
// intersection/agent layout; the manager looks these up by name from
// start(scenario_id) and never mutates them.
const (
	ScenarioRightOfWay               = "right_of_way"
	ScenarioMultiVehicle              = "multi_vehicle"
	ScenarioMultiVehicleTrafficLight  = "multi_vehicle_traffic_light"
	ScenarioBlindIntersection         = "blind_intersection"
	ScenarioEmergencyVehicle          = "emergency_vehicle"
	ScenarioEmergencyVehicleNoLights = "emergency_vehicle_no_lights"
	ScenarioDrunkDriver               = "drunk_driver"
)

// approachRange is the fixed starting distance (meters) scenario agents
// begin from an intersection's center, matching the testable property's
// "starting 80 m from center at 10 m/s" setup for multi-vehicle runs.
const approachRange = 80.0

// IntersectionSpec describes one intersection a scenario instantiates.
type IntersectionSpec struct {
	ID         string
	CenterX    float64
	CenterY    float64
	Controlled bool
}

// AgentSpec describes one agent a scenario spawns at start time.
type AgentSpec struct {
	ID         string
	X          float64
	Y          float64
	HeadingDeg float64
	SpeedMPS   float64
	Intent     v2x.Intent
	Profile    agent.Profile
}

// ScenarioSpec is a fully resolved scenario: its intersections and its
// initial agent roster.
type ScenarioSpec struct {
	ID            string
	Description   string
	Intersections []IntersectionSpec
	Agents        []AgentSpec
}

// southApproach, northApproach, westApproach, and eastApproach place an
// agent on the named cardinal approach to center, heading toward it. The
// heading convention (0 = north, clockwise) matches headingVector in the
// collision and agent packages.
func southApproach(id string, cx, cy, speed float64, intent v2x.Intent, profile agent.Profile) AgentSpec {
	return AgentSpec{ID: id, X: cx, Y: cy - approachRange, HeadingDeg: 0, SpeedMPS: speed, Intent: intent, Profile: profile}
}

func northApproach(id string, cx, cy, speed float64, intent v2x.Intent, profile agent.Profile) AgentSpec {
	return AgentSpec{ID: id, X: cx, Y: cy + approachRange, HeadingDeg: 180, SpeedMPS: speed, Intent: intent, Profile: profile}
}

func westApproach(id string, cx, cy, speed float64, intent v2x.Intent, profile agent.Profile) AgentSpec {
	return AgentSpec{ID: id, X: cx - approachRange, Y: cy, HeadingDeg: 90, SpeedMPS: speed, Intent: intent, Profile: profile}
}

func eastApproach(id string, cx, cy, speed float64, intent v2x.Intent, profile agent.Profile) AgentSpec {
	return AgentSpec{ID: id, X: cx + approachRange, Y: cy, HeadingDeg: 270, SpeedMPS: speed, Intent: intent, Profile: profile}
}

// BuiltinScenario looks up one of the seven bit-exact scenario
// identifiers. ok is false for anything else, including ad hoc scenario
// documents loaded from disk.
func BuiltinScenario(id string) (ScenarioSpec, bool) {
	switch id {
	case ScenarioRightOfWay:
		return rightOfWayScenario(), true
	case ScenarioMultiVehicle:
		return multiVehicleScenario(false), true
	case ScenarioMultiVehicleTrafficLight:
		return multiVehicleScenario(true), true
	case ScenarioBlindIntersection:
		return blindIntersectionScenario(), true
	case ScenarioEmergencyVehicle:
		return emergencyVehicleScenario(true), true
	case ScenarioEmergencyVehicleNoLights:
		return emergencyVehicleScenario(false), true
	case ScenarioDrunkDriver:
		return drunkDriverScenario(), true
	default:
		return ScenarioSpec{}, false
	}
}

func rightOfWayScenario() ScenarioSpec {
	const cx, cy = 0.0, 0.0
	return ScenarioSpec{
		ID:            ScenarioRightOfWay,
		Description:   "three vehicles approaching an uncontrolled intersection, testing right-of-way resolution",
		Intersections: []IntersectionSpec{{ID: "main", CenterX: cx, CenterY: cy, Controlled: false}},
		Agents: []AgentSpec{
			southApproach("a1", cx, cy, 10, v2x.IntentThrough, agent.ProfileNormal),
			westApproach("a2", cx, cy, 10, v2x.IntentThrough, agent.ProfileNormal),
			eastApproach("a3", cx, cy, 10, v2x.IntentLeft, agent.ProfileNormal),
		},
	}
}

func multiVehicleScenario(controlled bool) ScenarioSpec {
	const cx, cy = 0.0, 0.0
	id := ScenarioMultiVehicle
	if controlled {
		id = ScenarioMultiVehicleTrafficLight
	}
	return ScenarioSpec{
		ID:            id,
		Description:   "four vehicles, one per cardinal approach, to an intersection" + controlledSuffix(controlled),
		Intersections: []IntersectionSpec{{ID: "main", CenterX: cx, CenterY: cy, Controlled: controlled}},
		Agents: []AgentSpec{
			southApproach("a1", cx, cy, 10, v2x.IntentThrough, agent.ProfileNormal),
			northApproach("a2", cx, cy, 10, v2x.IntentThrough, agent.ProfileNormal),
			westApproach("a3", cx, cy, 10, v2x.IntentLeft, agent.ProfileNormal),
			eastApproach("a4", cx, cy, 10, v2x.IntentRight, agent.ProfileNormal),
		},
	}
}

func controlledSuffix(controlled bool) string {
	if controlled {
		return " with a traffic light"
	}
	return ", uncontrolled"
}

func blindIntersectionScenario() ScenarioSpec {
	const cx, cy = 0.0, 0.0
	return ScenarioSpec{
		ID:            ScenarioBlindIntersection,
		Description:   "two perpendicular vehicles approaching an uncontrolled intersection with no sight lines",
		Intersections: []IntersectionSpec{{ID: "main", CenterX: cx, CenterY: cy, Controlled: false}},
		Agents: []AgentSpec{
			southApproach("a1", cx, cy, 10, v2x.IntentThrough, agent.ProfileNormal),
			westApproach("a2", cx, cy, 10, v2x.IntentThrough, agent.ProfileNormal),
		},
	}
}

func emergencyVehicleScenario(controlled bool) ScenarioSpec {
	const cx, cy = 0.0, 0.0
	id := ScenarioEmergencyVehicle
	if !controlled {
		id = ScenarioEmergencyVehicleNoLights
	}
	return ScenarioSpec{
		ID:            id,
		Description:   "an ambulance and a normal vehicle approaching an intersection" + controlledSuffix(controlled),
		Intersections: []IntersectionSpec{{ID: "main", CenterX: cx, CenterY: cy, Controlled: controlled}},
		Agents: []AgentSpec{
			southApproach("ambulance-1", cx, cy, 14, v2x.IntentThrough, agent.ProfileAmbulance),
			westApproach("a1", cx, cy, 10, v2x.IntentThrough, agent.ProfileNormal),
		},
	}
}

func drunkDriverScenario() ScenarioSpec {
	const cx, cy = 0.0, 0.0
	return ScenarioSpec{
		ID:            ScenarioDrunkDriver,
		Description:   "a drunk driver weaving through an intersection with normal peers on the other approaches",
		Intersections: []IntersectionSpec{{ID: "main", CenterX: cx, CenterY: cy, Controlled: false}},
		Agents: []AgentSpec{
			southApproach("drunk-1", cx, cy, 10, v2x.IntentThrough, agent.ProfileDrunk),
			westApproach("a1", cx, cy, 10, v2x.IntentThrough, agent.ProfileNormal),
			eastApproach("a2", cx, cy, 10, v2x.IntentThrough, agent.ProfileNormal),
		},
	}
}
