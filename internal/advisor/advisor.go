package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"intersection-sim/server/internal/breaker"
)

// Advisor is the opaque call the decision function consults before falling
// back to its adaptive rule. Implementations decide how to reach whatever
// backend produces suggestions; this package only guarantees the contract
// around the call, not its transport.
type Advisor interface {
	Advise(ctx context.Context, reqCtx Context) (Decision, error)
}

// AdvisorFunc adapts a plain function to the Advisor interface.
type AdvisorFunc func(ctx context.Context, reqCtx Context) (Decision, error)

func (f AdvisorFunc) Advise(ctx context.Context, reqCtx Context) (Decision, error) {
	return f(ctx, reqCtx)
}

// Guarded wraps an Advisor with the breaker, the per-call timeout, and
// response validation, so the decision function's only failure mode is a
// plain error it must always be prepared to fall back on.
type Guarded struct {
	Inner   Advisor
	Breaker *breaker.Breaker
	Timeout time.Duration
	VMax    float64
}

// NewGuarded constructs a guarded advisor around inner.
func NewGuarded(inner Advisor, b *breaker.Breaker, timeout time.Duration, vMax float64) *Guarded {
	return &Guarded{Inner: inner, Breaker: b, Timeout: timeout, VMax: vMax}
}

// Advise enforces the breaker gate, applies T_llm as a context deadline,
// and validates the response shape and range before returning it. Any
// failure (breaker-open, timeout, transport error, malformed response,
// unparseable action, or out-of-range speed) counts against the breaker
// except a pre-existing breaker-open rejection, which the breaker already
// accounts for.
func (g *Guarded) Advise(ctx context.Context, tick uint64, now time.Time, reqCtx Context) (Decision, error) {
	if !g.Breaker.Allow(ctx, tick, now) {
		return Decision{}, breaker.ErrOpen
	}

	cctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	decision, err := g.Inner.Advise(cctx, reqCtx)
	if err != nil {
		g.Breaker.RecordFailure(ctx, tick, now)
		return Decision{}, err
	}

	if err := g.validate(decision); err != nil {
		g.Breaker.RecordFailure(ctx, tick, now)
		return Decision{}, err
	}

	g.Breaker.RecordSuccess(ctx, tick)
	return decision, nil
}

func (g *Guarded) validate(d Decision) error {
	switch d.Action {
	case ActionGo, ActionYield, ActionBrake, ActionStop:
	default:
		return fmt.Errorf("%w: %q", ErrUnparseableAction, d.Action)
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := validateDecisionShape(asMap); err != nil {
		return err
	}
	if d.Speed < 0 || d.Speed > g.VMax {
		return fmt.Errorf("%w: %v not in [0,%v]", ErrSpeedOutOfRange, d.Speed, g.VMax)
	}
	return nil
}
