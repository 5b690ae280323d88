package coordinator

import (
	"context"
	"math"
	"sort"
	"sync"

	"intersection-sim/server/internal/trafficlight"
	"intersection-sim/server/internal/v2x"
	coordevents "intersection-sim/server/logging"
	coordlog "intersection-sim/server/logging/coordinator"
)

type queueEntry struct {
	id      v2x.AgentId
	arrived uint64
}

// Intersection owns one conflict zone's arrival queue and center-box
// occupancy set.
type Intersection struct {
	ID            string
	CenterX       float64
	CenterY       float64
	CenterBoxHalf float64
	ArriveRadius  float64
	Controlled    bool

	Logger coordevents.Publisher

	mu    sync.Mutex
	queue []queueEntry
}

// NewIntersection constructs an intersection zone. A nil logger disables
// telemetry emission.
func NewIntersection(id string, centerX, centerY, centerBoxHalf, arriveRadius float64, controlled bool, logger coordevents.Publisher) *Intersection {
	if logger == nil {
		logger = coordevents.NopPublisher()
	}
	return &Intersection{
		ID:            id,
		CenterX:       centerX,
		CenterY:       centerY,
		CenterBoxHalf: centerBoxHalf,
		ArriveRadius:  arriveRadius,
		Controlled:    controlled,
		Logger:        logger,
	}
}

func (z *Intersection) distanceTo(x, y float64) float64 {
	dx := x - z.CenterX
	dy := y - z.CenterY
	return math.Sqrt(dx*dx + dy*dy)
}

// Advance runs one tick of queue maintenance and admission. green is the
// traffic light's currently non-red axis (ignored when the intersection is
// uncontrolled).
func (z *Intersection) Advance(ctx context.Context, tick uint64, approaches []Approach, green trafficlight.Direction, lightGreen bool) Decision {
	z.mu.Lock()
	defer z.mu.Unlock()

	byID := make(map[v2x.AgentId]Approach, len(approaches))
	occupancy := make(map[v2x.AgentId]bool, len(approaches))
	for _, a := range approaches {
		byID[a.ID] = a
		if z.distanceTo(a.X, a.Y) <= z.CenterBoxHalf {
			occupancy[a.ID] = true
		}
	}

	z.reconcileQueue(ctx, tick, byID, occupancy)

	admitted := make(map[v2x.AgentId]bool, len(z.queue))
	tentative := make([]Approach, 0, len(occupancy)+len(z.queue))
	for id := range occupancy {
		if a, ok := byID[id]; ok {
			tentative = append(tentative, a)
		}
	}

	for _, entry := range z.queue {
		candidate, ok := byID[entry.id]
		if !ok {
			continue
		}
		if z.Controlled {
			if !lightGreen || trafficlight.DirectionForHeading(candidate.Heading) != green {
				continue
			}
		}
		conflict := false
		for _, occ := range tentative {
			if conflicts(candidate, occ) {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		admitted[entry.id] = true
		tentative = append(tentative, candidate)
		coordlog.Admitted(ctx, z.Logger, tick, coordevents.EntityRef{Kind: coordevents.EntityKindAgent, ID: string(entry.id)}, z.ID)
	}

	return Decision{Admitted: admitted, Occupancy: occupancy}
}

func (z *Intersection) reconcileQueue(ctx context.Context, tick uint64, byID map[v2x.AgentId]Approach, occupancy map[v2x.AgentId]bool) {
	queued := make(map[v2x.AgentId]bool, len(z.queue))
	kept := z.queue[:0]
	for _, entry := range z.queue {
		a, stillPresent := byID[entry.id]
		if !stillPresent || occupancy[entry.id] {
			continue // entered the box or despawned; drop from queue
		}
		if z.distanceTo(a.X, a.Y) > z.ArriveRadius {
			continue // abandoned the approach
		}
		kept = append(kept, entry)
		queued[entry.id] = true
	}
	z.queue = kept

	newcomers := make([]v2x.AgentId, 0)
	for id, a := range byID {
		if occupancy[id] || queued[id] {
			continue
		}
		if z.distanceTo(a.X, a.Y) <= z.ArriveRadius {
			newcomers = append(newcomers, id)
		}
	}
	sort.Slice(newcomers, func(i, j int) bool { return newcomers[i] < newcomers[j] })
	for _, id := range newcomers {
		z.queue = append(z.queue, queueEntry{id: id, arrived: tick})
		coordlog.Queued(ctx, z.Logger, tick, coordevents.EntityRef{Kind: coordevents.EntityKindAgent, ID: string(id)}, z.ID)
	}

	sort.SliceStable(z.queue, func(i, j int) bool {
		if z.queue[i].arrived != z.queue[j].arrived {
			return z.queue[i].arrived < z.queue[j].arrived
		}
		return z.queue[i].id < z.queue[j].id
	})
}

// conflicts reports whether two approaches' planned paths would cross.
// Perpendicular axes always conflict; same-axis paths conflict only when
// one is turning left across the opposing lane.
func conflicts(a, b Approach) bool {
	axisA := trafficlight.DirectionForHeading(a.Heading)
	axisB := trafficlight.DirectionForHeading(b.Heading)
	if axisA != axisB {
		return true
	}
	return a.Intent == v2x.IntentLeft || b.Intent == v2x.IntentLeft
}
