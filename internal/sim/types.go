// Package sim wires every kernel component — the V2X channel, the
// collision detector, the priority arbiter, the traffic lights, the
// intersection coordinators, the guarded advisor, the vehicle decision
// pipelines, and the background traffic driver — into the tick scheduler
// and control surface the rest of the system drives.
package sim

import (
	"errors"

	"intersection-sim/server/internal/v2x"
	"intersection-sim/server/logging"
)

// Mode is the value Init records for the run (CITY or SCENARIO). Neither
// Init nor Start branches on it: both modes prepare the same kernel.
type Mode string

const (
	ModeCity     Mode = "CITY"
	ModeScenario Mode = "SCENARIO"
)

// SpawnKind enumerates the vehicle variants spawn(kind) accepts.
type SpawnKind string

const (
	SpawnDrunk     SpawnKind = "drunk"
	SpawnPolice    SpawnKind = "police"
	SpawnAmbulance SpawnKind = "ambulance"
)

var (
	ErrUnknownScenario = errors.New("sim: unknown scenario")
	ErrNotRunning      = errors.New("sim: not running")
	ErrUnknownSpawn    = errors.New("sim: unknown spawn kind")
)

// AgentExport is one agent's exported state, matching the wire document's
// per-agent shape field for field.
type AgentExport struct {
	X                  float64 `json:"x"`
	Y                  float64 `json:"y"`
	V                  float64 `json:"v"`
	Theta              float64 `json:"theta"`
	Decision           string  `json:"decision"`
	Reason             string  `json:"reason"`
	RiskLevel          string  `json:"risk_level"`
	IsEmergency        bool    `json:"is_emergency"`
	IsPolice           bool    `json:"is_police"`
	IsDrunk            bool    `json:"is_drunk"`
	PullingOver        bool    `json:"pulling_over"`
	InsideIntersection bool    `json:"inside_intersection"`
	LLMCalls           uint64  `json:"llm_calls"`
}

// InfrastructureExport is one traffic light's exported state.
type InfrastructureExport struct {
	Phase          string  `json:"phase"`
	PhaseRemaining float64 `json:"phase_remaining"`
}

// CollisionPairExport is one collision pair's exported state.
type CollisionPairExport struct {
	Agent1 string  `json:"agent1"`
	Agent2 string  `json:"agent2"`
	TTC    float64 `json:"ttc"`
	Risk   string  `json:"risk"`
}

// IntersectionPoint is one grid intersection's world position.
type IntersectionPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GridExport describes the static background-traffic grid.
type GridExport struct {
	Intersections   []IntersectionPoint `json:"intersections"`
	GridSpacing     float64             `json:"grid_spacing"`
	DemoIntersection string             `json:"demo_intersection"`
	Cols            int                 `json:"cols"`
	Rows            int                 `json:"rows"`
}

// StatsExport carries the run-level cooperation metrics.
type StatsExport struct {
	ElapsedTime         float64 `json:"elapsed_time"`
	CollisionsPrevented uint64  `json:"collisions_prevented"`
	CooperationScore    float64 `json:"cooperation_score"`
}

// ExportedState is the full get_state document.
type ExportedState struct {
	Running        bool                            `json:"running"`
	Scenario       string                          `json:"scenario"`
	Tick           uint64                          `json:"tick"`
	T              float64                         `json:"t"`
	Agents         map[string]AgentExport          `json:"agents"`
	Infrastructure map[string]InfrastructureExport `json:"infrastructure"`
	CollisionPairs []CollisionPairExport           `json:"collision_pairs"`
	Grid           GridExport                      `json:"grid"`
	Stats          StatsExport                     `json:"stats"`
}

// TelemetryReport is the telemetry_report operation's result: the security
// filter's rejection counters plus the logging router's delivery counters.
type TelemetryReport struct {
	Security v2x.SecurityStats  `json:"security"`
	Router   logging.RouterStats `json:"router"`
}
