// Package breaker implements the advisor circuit breaker: closed forwards
// calls and counts failures in a rolling window; five failures in the
// window opens the breaker for a cooldown; the first call after cooldown
// is a single half-open probe.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	breakerevents "intersection-sim/server/logging"
	breakerlog "intersection-sim/server/logging/breaker"
)

// ErrOpen is returned by callers that consult Allow and find the breaker
// will not admit a call right now.
var ErrOpen = errors.New("breaker: open")

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Breaker is a sliding-window failure counter gating calls to an unreliable
// dependency (here, the LLM advisor).
type Breaker struct {
	FailureLimit int
	Window       time.Duration
	Cooldown     time.Duration

	Logger breakerevents.Publisher

	mu                    sync.Mutex
	state                 State
	failures              []time.Time
	openUntil             time.Time
	halfOpenProbeInFlight bool
}

// NewBreaker constructs a closed breaker. A nil logger disables telemetry
// emission.
func NewBreaker(failureLimit int, window, cooldown time.Duration, logger breakerevents.Publisher) *Breaker {
	if logger == nil {
		logger = breakerevents.NopPublisher()
	}
	return &Breaker{
		FailureLimit: failureLimit,
		Window:       window,
		Cooldown:     cooldown,
		Logger:       logger,
		state:        StateClosed,
	}
}

// State reports the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed right now, transitioning
// Open->HalfOpen when the cooldown has elapsed and reserving the single
// half-open probe slot if so.
func (b *Breaker) Allow(ctx context.Context, tick uint64, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.halfOpenProbeInFlight {
			return false
		}
		b.halfOpenProbeInFlight = true
		return true
	case StateOpen:
		if now.Before(b.openUntil) {
			return false
		}
		b.transition(ctx, tick, StateHalfOpen)
		b.halfOpenProbeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful call. In HalfOpen this closes the
// breaker and clears the failure history; in Closed it is a no-op (the
// failure window decays on its own).
func (b *Breaker) RecordSuccess(ctx context.Context, tick uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.failures = nil
		b.halfOpenProbeInFlight = false
		b.transition(ctx, tick, StateClosed)
	}
}

// RecordFailure reports a failed call: timeout, transport error,
// malformed response, or an unparseable action all count. A failure
// during a half-open probe reopens immediately; FailureLimit failures
// within Window from Closed does the same.
func (b *Breaker) RecordFailure(ctx context.Context, tick uint64, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.halfOpenProbeInFlight = false
		b.openUntil = now.Add(b.Cooldown)
		b.transition(ctx, tick, StateOpen)
		return
	}

	cutoff := now.Add(-b.Window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = append(kept, now)

	if b.state == StateClosed && len(b.failures) >= b.FailureLimit {
		b.openUntil = now.Add(b.Cooldown)
		b.transition(ctx, tick, StateOpen)
	}
}

func (b *Breaker) transition(ctx context.Context, tick uint64, to State) {
	from := b.state
	b.state = to
	if from == to {
		return
	}
	breakerlog.StateChanged(ctx, b.Logger, tick, string(from), string(to))
}
