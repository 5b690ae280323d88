// Package background maintains a target population of vehicle agents
// spread across a grid of intersections, spawning replacements as agents
// despawn and re-rolling intent at each new approach.
package background

import (
	"math/rand"

	"github.com/google/uuid"

	"intersection-sim/server/internal/v2x"
)

// GridLayout describes the rectangular grid of intersections background
// traffic spawns onto.
type GridLayout struct {
	Cols    int
	Rows    int
	Spacing float64
}

// Center returns the world coordinates of intersection (col, row).
func (g GridLayout) Center(col, row int) (float64, float64) {
	return float64(col) * g.Spacing, float64(row) * g.Spacing
}

// SpawnRequest is the kinematic state and intent a newly spawned
// background agent should start with.
type SpawnRequest struct {
	ID       v2x.AgentId
	X        float64
	Y        float64
	Heading  float64
	SpeedMPS float64
	Intent   v2x.Intent
}

const approachDistance = 40.0

// Driver maintains a fixed-size background population. Rand is injected
// (a *rand.Rand instance, never the global math/rand functions) so spawn
// placement and intent selection are reproducible given a seed; identifiers
// use uuid.NewString, which reads from the runtime's cryptographic source
// rather than this driver's seeded stream since agent identity is not a
// sim-determinism concern.
type Driver struct {
	Population int
	Grid       GridLayout
	Rand       *rand.Rand
}

// NewDriver constructs a driver. A nil rand source gets a package-private
// deterministic default rather than reading time-seeded global state.
func NewDriver(population int, grid GridLayout, rnd *rand.Rand) *Driver {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(1))
	}
	if grid.Cols <= 0 {
		grid.Cols = 1
	}
	if grid.Rows <= 0 {
		grid.Rows = 1
	}
	return &Driver{Population: population, Grid: grid, Rand: rnd}
}

// Maintain compares the currently live agent count against the target
// population and returns spawn requests for the shortfall.
func (d *Driver) Maintain(liveCount int) []SpawnRequest {
	need := d.Population - liveCount
	if need <= 0 {
		return nil
	}
	requests := make([]SpawnRequest, 0, need)
	for i := 0; i < need; i++ {
		requests = append(requests, d.SpawnOne())
	}
	return requests
}

// SpawnOne rolls a single spawn request using the same geometry Maintain
// uses internally. Exported so the simulation manager can place an ad hoc
// spawn(kind) request on the same grid without duplicating the approach
// picking logic.
func (d *Driver) SpawnOne() SpawnRequest {
	col := d.Rand.Intn(d.Grid.Cols)
	row := d.Rand.Intn(d.Grid.Rows)
	cx, cy := d.Grid.Center(col, row)

	var x, y, heading float64
	switch d.Rand.Intn(4) {
	case 0: // approaching from the south, heading north
		x, y, heading = cx, cy-approachDistance, 0
	case 1: // approaching from the north, heading south
		x, y, heading = cx, cy+approachDistance, 180
	case 2: // approaching from the west, heading east
		x, y, heading = cx-approachDistance, cy, 90
	default: // approaching from the east, heading west
		x, y, heading = cx+approachDistance, cy, 270
	}

	return SpawnRequest{
		ID:       v2x.AgentId(uuid.NewString()),
		X:        x,
		Y:        y,
		Heading:  heading,
		SpeedMPS: 8 + d.Rand.Float64()*4,
		Intent:   d.RollIntent(),
	}
}

// RollIntent picks the next leg's maneuver: 60% straight, 20% left, 20%
// right. Called both at spawn and by the simulation manager whenever a
// background agent clears an intersection and needs a new intent for its
// next approach.
func (d *Driver) RollIntent() v2x.Intent {
	switch r := d.Rand.Float64(); {
	case r < 0.6:
		return v2x.IntentThrough
	case r < 0.8:
		return v2x.IntentLeft
	default:
		return v2x.IntentRight
	}
}
