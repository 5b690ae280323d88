package trafficlight

import (
	"context"
	"sync"

	lightevents "intersection-sim/server/logging"
	lightlog "intersection-sim/server/logging/light"
)

var cycle = []Phase{PhaseNSGreen, PhaseAllRed, PhaseEWGreen, PhaseAllRed}

// Light is one intersection's traffic-signal state machine.
type Light struct {
	ID string

	GreenSeconds     float64
	AllRedSeconds    float64
	EmergencySeconds float64
	StarvationCredit float64

	Logger lightevents.Publisher

	mu sync.Mutex

	index     int // position in `cycle`
	phase     Phase
	remaining float64

	emergencyActive    bool
	emergencyDirection Direction
	preemptedIndex     int
}

// NewLight constructs a light starting in NS_GREEN. A nil logger disables
// telemetry emission.
func NewLight(id string, greenSeconds, allRedSeconds, emergencySeconds, starvationCredit float64, logger lightevents.Publisher) *Light {
	if logger == nil {
		logger = lightevents.NopPublisher()
	}
	return &Light{
		ID:               id,
		GreenSeconds:     greenSeconds,
		AllRedSeconds:    allRedSeconds,
		EmergencySeconds: emergencySeconds,
		StarvationCredit: starvationCredit,
		Logger:           logger,
		index:            0,
		phase:            cycle[0],
		remaining:        greenSeconds,
	}
}

// State returns the current phase and remaining time.
func (l *Light) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{Phase: l.phase, Remaining: l.remaining, Emergency: l.emergencyActive}
}

// GreenDirection reports which axis is currently non-red, if any.
func (l *Light) greenDirection() (Direction, bool) {
	switch l.phase {
	case PhaseNSGreen:
		return DirectionNS, true
	case PhaseEWGreen:
		return DirectionEW, true
	default:
		return "", false
	}
}

// Advance steps the light by dt seconds, applying the emergency override
// ahead of the normal cycle when signal.Present calls for one.
func (l *Light) Advance(ctx context.Context, tick uint64, dt float64, signal EmergencySignal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if signal.Present && !l.emergencyActive {
		if green, ok := l.greenDirection(); !ok || green != signal.Direction {
			l.beginEmergency(ctx, tick, signal.Direction)
		}
	}

	if l.emergencyActive {
		l.advanceEmergency(ctx, tick, dt, signal)
		return
	}

	l.remaining -= dt
	for l.remaining <= 0 {
		l.advanceNormalCycle(ctx, tick)
	}
}

func (l *Light) beginEmergency(ctx context.Context, tick uint64, direction Direction) {
	from := l.phase
	l.preemptedIndex = l.index
	l.emergencyActive = true
	l.emergencyDirection = direction
	l.phase = PhaseEmergencyAllRed
	l.remaining = l.EmergencySeconds
	lightlog.PhaseChanged(ctx, l.Logger, tick, lightevents.EntityRef{Kind: lightevents.EntityKindLight, ID: l.ID},
		lightlog.PhaseChangedPayload{From: string(from), To: string(l.phase), Remaining: l.remaining, Emergency: true})
}

func (l *Light) advanceEmergency(ctx context.Context, tick uint64, dt float64, signal EmergencySignal) {
	if l.phase == PhaseEmergencyAllRed {
		l.remaining -= dt
		if l.remaining <= 0 {
			from := l.phase
			if l.emergencyDirection == DirectionNS {
				l.phase = PhaseNSGreen
			} else {
				l.phase = PhaseEWGreen
			}
			l.remaining = 0 // held open until the vehicle clears, not time-bounded
			lightlog.PhaseChanged(ctx, l.Logger, tick, lightevents.EntityRef{Kind: lightevents.EntityKindLight, ID: l.ID},
				lightlog.PhaseChangedPayload{From: string(from), To: string(l.phase), Remaining: 0, Emergency: true})
		}
		return
	}

	// Holding green for the emergency direction until it clears.
	if !signal.Cleared {
		return
	}
	l.resumeNormalCycle(ctx, tick)
}

func (l *Light) resumeNormalCycle(ctx context.Context, tick uint64) {
	from := l.phase
	l.emergencyActive = false
	l.index = l.preemptedIndex
	resumed := cycle[l.index]
	l.phase = resumed
	// The resumed phase was the one the override cut short; it gets its
	// full duration back plus the starvation credit, regardless of how
	// little of its original span it had already used.
	l.remaining = durationFor(resumed, l.GreenSeconds, l.AllRedSeconds) + l.StarvationCredit
	lightlog.PhaseChanged(ctx, l.Logger, tick, lightevents.EntityRef{Kind: lightevents.EntityKindLight, ID: l.ID},
		lightlog.PhaseChangedPayload{From: string(from), To: string(l.phase), Remaining: l.remaining, Emergency: false})
}

func (l *Light) advanceNormalCycle(ctx context.Context, tick uint64) {
	from := l.phase
	overflow := -l.remaining
	l.index = (l.index + 1) % len(cycle)
	l.phase = cycle[l.index]
	l.remaining = durationFor(l.phase, l.GreenSeconds, l.AllRedSeconds) - overflow
	lightlog.PhaseChanged(ctx, l.Logger, tick, lightevents.EntityRef{Kind: lightevents.EntityKindLight, ID: l.ID},
		lightlog.PhaseChangedPayload{From: string(from), To: string(l.phase), Remaining: l.remaining, Emergency: false})
}

func durationFor(phase Phase, green, allRed float64) float64 {
	if phase == PhaseAllRed {
		return allRed
	}
	return green
}
