package coordinator

import (
	"context"
	"testing"

	"intersection-sim/server/internal/trafficlight"
	"intersection-sim/server/internal/v2x"
)

func TestAdvanceAdmitsHeadOfQueueWhenBoxClear(t *testing.T) {
	z := NewIntersection("z1", 0, 0, 6, 30, false, nil)
	approaches := []Approach{
		{ID: "a", X: 0, Y: -20, Heading: 0, Intent: v2x.IntentThrough},
	}
	d := z.Advance(context.Background(), 1, approaches, "", false)
	if !d.IsAdmitted("a") {
		t.Fatalf("expected head of queue admitted with an empty box")
	}
}

func TestAdvanceBlocksPerpendicularConflictButAdmitsParallel(t *testing.T) {
	z := NewIntersection("z1", 0, 0, 6, 30, false, nil)
	ctx := context.Background()

	// "occ" is already inside the box on the NS axis.
	first := []Approach{{ID: "occ", X: 0, Y: 0, Heading: 0, Intent: v2x.IntentThrough}}
	z.Advance(ctx, 1, first, "", false)

	approaches := []Approach{
		{ID: "occ", X: 0, Y: 0, Heading: 0, Intent: v2x.IntentThrough},
		{ID: "crossing", X: 20, Y: 0, Heading: 270, Intent: v2x.IntentThrough}, // EW axis, conflicts
		{ID: "parallel", X: 0, Y: -20, Heading: 0, Intent: v2x.IntentThrough},  // NS axis, same direction
	}
	d := z.Advance(ctx, 2, approaches, "", false)
	if d.IsAdmitted("crossing") {
		t.Fatalf("expected perpendicular path blocked while box occupied")
	}
	if !d.IsAdmitted("parallel") {
		t.Fatalf("expected same-axis through traffic admitted alongside existing occupant")
	}
}

func TestAdvanceControlledIntersectionDefersToLight(t *testing.T) {
	z := NewIntersection("z1", 0, 0, 6, 30, true, nil)
	approaches := []Approach{
		{ID: "ns", X: 0, Y: -20, Heading: 0, Intent: v2x.IntentThrough},
		{ID: "ew", X: 20, Y: 0, Heading: 270, Intent: v2x.IntentThrough},
	}
	d := z.Advance(context.Background(), 1, approaches, trafficlight.DirectionNS, true)
	if !d.IsAdmitted("ns") {
		t.Fatalf("expected NS agent admitted while NS is green")
	}
	if d.IsAdmitted("ew") {
		t.Fatalf("expected EW agent blocked while NS is green")
	}
}

func TestAdvanceRemovesAgentFromQueueOnceItEntersBox(t *testing.T) {
	z := NewIntersection("z1", 0, 0, 6, 30, false, nil)
	ctx := context.Background()

	z.Advance(ctx, 1, []Approach{{ID: "a", X: 0, Y: -20, Heading: 0, Intent: v2x.IntentThrough}}, "", false)
	if len(z.queue) != 1 {
		t.Fatalf("expected agent queued on first approach, got %d entries", len(z.queue))
	}

	z.Advance(ctx, 2, []Approach{{ID: "a", X: 0, Y: 0, Heading: 0, Intent: v2x.IntentThrough}}, "", false)
	if len(z.queue) != 0 {
		t.Fatalf("expected agent removed from queue once inside the box, got %d entries", len(z.queue))
	}
}
