package agent

import (
	"context"
	"testing"
	"time"

	"intersection-sim/server/internal/advisor"
	"intersection-sim/server/internal/breaker"
	"intersection-sim/server/internal/collision"
	"intersection-sim/server/internal/priority"
	"intersection-sim/server/internal/v2x"
)

func baseSelf() v2x.Message {
	return v2x.Message{AgentID: "self", X: 0, Y: 0, V: 10, Heading: 0, Intent: v2x.IntentThrough}
}

func TestDecideStopsForRedLightAtStopLine(t *testing.T) {
	v := NewVehicle("self", ProfileNormal, NewMemory(10), nil, nil, nil)
	in := Inputs{
		Self:                   baseSelf(),
		Snapshot:               v2x.Snapshot{Messages: map[v2x.AgentId]v2x.Message{}},
		IntersectionControlled: true,
		LightGreenForSelf:      false,
		InsideIntersection:     false,
		CoordinatorAdmitted:    false,
		FollowGapSeconds:       2,
		VMax:                   25,
	}
	got := v.Decide(context.Background(), 1, time.Now(), in)
	if got.Action != ActionStop {
		t.Fatalf("expected stop at red light, got %+v", got)
	}
}

func TestDecideContinuesWhenAlreadyInsideIntersection(t *testing.T) {
	v := NewVehicle("self", ProfileNormal, NewMemory(10), nil, nil, nil)
	in := Inputs{
		Self:                   baseSelf(),
		Snapshot:               v2x.Snapshot{Messages: map[v2x.AgentId]v2x.Message{}},
		IntersectionControlled: true,
		LightGreenForSelf:      false,
		InsideIntersection:     true,
		FollowGapSeconds:       2,
		VMax:                   25,
	}
	got := v.Decide(context.Background(), 1, time.Now(), in)
	if got.Action != ActionGo {
		t.Fatalf("expected go to clear the intersection, got %+v", got)
	}
}

func TestDecideBrakesOnImminentCollision(t *testing.T) {
	v := NewVehicle("self", ProfileNormal, NewMemory(10), nil, nil, nil)
	pair := collision.Pair{A: "self", B: "other", TTC: 0.4, Risk: collision.RiskCollision}
	in := Inputs{
		Self:           baseSelf(),
		Snapshot:       v2x.Snapshot{Messages: map[v2x.AgentId]v2x.Message{}},
		CollisionPairs: []collision.Pair{pair},
		FollowGapSeconds: 2,
		VMax:             25,
	}
	got := v.Decide(context.Background(), 1, time.Now(), in)
	if got.Action != ActionBrake {
		t.Fatalf("expected brake on imminent collision, got %+v", got)
	}
}

func TestDecidePullsOverForTrailingEmergency(t *testing.T) {
	v := NewVehicle("self", ProfileNormal, NewMemory(10), nil, nil, nil)
	ambulance := v2x.Message{AgentID: "amb", X: 0, Y: -8, V: 15, Heading: 0, IsEmergency: true}
	in := Inputs{
		Self:             baseSelf(),
		Snapshot:         v2x.Snapshot{Messages: map[v2x.AgentId]v2x.Message{"amb": ambulance}},
		Advisory:         priority.MustYield,
		ObservationRadius: 50,
		FollowGapSeconds:  2,
		VMax:              25,
	}
	got := v.Decide(context.Background(), 1, time.Now(), in)
	if got.Action != ActionPullOver {
		t.Fatalf("expected pull_over for trailing emergency vehicle, got %+v", got)
	}
}

func TestDecideYieldsToEmergencyWithoutTrailing(t *testing.T) {
	v := NewVehicle("self", ProfileNormal, NewMemory(10), nil, nil, nil)
	// Emergency vehicle ahead, not trailing (self is behind it), still forces yield.
	ambulance := v2x.Message{AgentID: "amb", X: 0, Y: 8, V: 15, Heading: 0, IsEmergency: true}
	in := Inputs{
		Self:              baseSelf(),
		Snapshot:          v2x.Snapshot{Messages: map[v2x.AgentId]v2x.Message{"amb": ambulance}},
		Advisory:          priority.MustYield,
		ObservationRadius: 50,
		FollowGapSeconds:  2,
		VMax:              25,
	}
	got := v.Decide(context.Background(), 1, time.Now(), in)
	if got.Action != ActionYield {
		t.Fatalf("expected yield to emergency vehicle, got %+v", got)
	}
}

func TestDecideAdaptiveRuleBrakesWithinFollowGap(t *testing.T) {
	v := NewVehicle("self", ProfileNormal, NewMemory(10), nil, nil, nil)
	leader := v2x.Message{AgentID: "leader", X: 0, Y: 5, V: 0, Heading: 0}
	in := Inputs{
		Self:              baseSelf(),
		Snapshot:          v2x.Snapshot{Messages: map[v2x.AgentId]v2x.Message{"leader": leader}},
		ObservationRadius: 50,
		FollowGapSeconds:  2,
		VMax:              25,
	}
	got := v.Decide(context.Background(), 1, time.Now(), in)
	if got.Action != ActionBrake {
		t.Fatalf("expected adaptive follow-distance brake, got %+v", got)
	}
}

func TestDecideOscillationDamperForcesYieldAfterAlternatingPattern(t *testing.T) {
	v := NewVehicle("self", ProfileNormal, NewMemory(10), nil, nil, nil)
	ctx := context.Background()
	now := time.Now()

	clear := Inputs{Self: baseSelf(), Snapshot: v2x.Snapshot{Messages: map[v2x.AgentId]v2x.Message{}}, ObservationRadius: 50, FollowGapSeconds: 2, VMax: 25}
	leader := v2x.Message{AgentID: "leader", X: 0, Y: 5, V: 0, Heading: 0}
	blocked := Inputs{Self: baseSelf(), Snapshot: v2x.Snapshot{Messages: map[v2x.AgentId]v2x.Message{"leader": leader}}, ObservationRadius: 50, FollowGapSeconds: 2, VMax: 25}

	// The first three decisions (go, brake, go) set up the alternating
	// window; the fourth tentative decision (brake) completes a
	// go/stop/go/stop pattern and the damper forces yield instead.
	sequence := []Inputs{clear, blocked, clear, blocked}
	var last Decision
	for i, in := range sequence {
		last = v.Decide(ctx, uint64(i), now, in)
	}
	if last.Action != ActionYield {
		t.Fatalf("expected oscillation damper to force yield once the pattern completes, got %+v", last)
	}

	fifth := v.Decide(ctx, 4, now, clear)
	if fifth.Action != ActionYield {
		t.Fatalf("expected oscillation damper to hold yield for the second forced tick, got %+v", fifth)
	}

	sixth := v.Decide(ctx, 5, now, clear)
	if sixth.Action != ActionGo {
		t.Fatalf("expected normal decisions to resume after the two forced ticks, got %+v", sixth)
	}
}

func TestDecidePoliceProfileGetsSpeedBoostButNotEmergencyPreemption(t *testing.T) {
	if FlagsFor(ProfilePolice).IsEmergency {
		t.Fatalf("expected police profile flags to not carry IsEmergency")
	}

	b := breaker.NewBreaker(3, time.Minute, time.Second, nil)
	guarded := advisor.NewGuarded(advisor.NewHeuristic(nil), b, time.Second, 25)
	v := NewVehicle("cruiser", ProfilePolice, NewMemory(10), guarded, nil, nil)

	self := baseSelf()
	self.V = 10
	in := Inputs{
		Self:              self,
		Snapshot:          v2x.Snapshot{Messages: map[v2x.AgentId]v2x.Message{}},
		ObservationRadius: 50,
		FollowGapSeconds:  2,
		VMax:              25,
	}
	got := v.Decide(context.Background(), 1, time.Now(), in)
	if got.Action != ActionGo {
		t.Fatalf("expected a clear approach to produce go, got %+v", got)
	}
	if got.TargetSpeed <= self.V {
		t.Fatalf("expected police speed boost above base speed %v, got %v", self.V, got.TargetSpeed)
	}
	if got.TargetSpeed > in.VMax {
		t.Fatalf("expected police boost capped at VMax %v, got %v", in.VMax, got.TargetSpeed)
	}
}

func TestDecideRecordsNearMissLocationAndLearnsRepeatedPeer(t *testing.T) {
	v := NewVehicle("self", ProfileNormal, NewMemory(10), nil, nil, nil)
	pair := collision.Pair{A: "other", B: "self", TTC: 2.0, Risk: collision.RiskHigh}
	firstPos := v2x.Message{X: 3, Y: 4, V: 10, Heading: 0, Intent: v2x.IntentThrough}

	in := Inputs{
		Self:              firstPos,
		Snapshot:          v2x.Snapshot{Messages: map[v2x.AgentId]v2x.Message{}},
		CollisionPairs:    []collision.Pair{pair},
		ObservationRadius: 50,
		FollowGapSeconds:  2,
		VMax:              25,
	}
	in.Self.AgentID = "self"
	v.Decide(context.Background(), 1, time.Now(), in)

	recorded := v.Memory.NearMisses()
	if len(recorded) != 1 {
		t.Fatalf("expected one near-miss recorded, got %d", len(recorded))
	}
	if recorded[0].X != 3 || recorded[0].Y != 4 {
		t.Fatalf("expected the near-miss location to capture self position, got %+v", recorded[0])
	}
	if recorded[0].PeerID != "other" {
		t.Fatalf("expected peer id 'other', got %q", recorded[0].PeerID)
	}

	// A second high-risk encounter with the same peer should cross the
	// heuristic's repeat threshold and add a lesson to memory.
	v.Decide(context.Background(), 2, time.Now(), in)
	digest := v.Memory.Digest(10)
	found := false
	for _, line := range digest {
		if line == "lesson: peer other repeatedly closes to a high-risk approach, yield early" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a lesson about repeated near misses with 'other', got %v", digest)
	}
}

func TestDecideDrunkProfileSuppressesHardOverrides(t *testing.T) {
	rand := func() float64 { return 0 } // forces the disregard-signal branch
	v := NewVehicle("self", ProfileDrunk, NewMemory(10), nil, rand, nil)
	in := Inputs{
		Self:                   baseSelf(),
		Snapshot:               v2x.Snapshot{Messages: map[v2x.AgentId]v2x.Message{}},
		IntersectionControlled: true,
		LightGreenForSelf:      false,
		InsideIntersection:     false,
		FollowGapSeconds:       2,
		VMax:                   25,
	}
	got := v.Decide(context.Background(), 1, time.Now(), in)
	if got.Action != ActionGo {
		t.Fatalf("expected drunk driver to disregard the red light and go, got %+v", got)
	}
	if got.HeadingNoiseDeg == 0 {
		t.Fatalf("expected non-zero heading noise for drunk driver")
	}
}
