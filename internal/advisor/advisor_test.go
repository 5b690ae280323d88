package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"intersection-sim/server/internal/breaker"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

func TestGuardedAdvisePassesThroughValidDecision(t *testing.T) {
	inner := AdvisorFunc(func(ctx context.Context, reqCtx Context) (Decision, error) {
		return Decision{Action: ActionGo, Speed: 10, Reason: "clear"}, nil
	})
	b := breaker.NewBreaker(5, 30*time.Second, 30*time.Second, nil)
	g := NewGuarded(inner, b, 800*time.Millisecond, 25)

	got, err := g.Advise(context.Background(), 1, at(0), Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Action != ActionGo || got.Speed != 10 {
		t.Fatalf("unexpected decision: %+v", got)
	}
	if b.State() != breaker.StateClosed {
		t.Fatalf("expected breaker to remain closed on success")
	}
}

func TestGuardedAdviseRecordsFailureOnTransportError(t *testing.T) {
	boom := errors.New("boom")
	inner := AdvisorFunc(func(ctx context.Context, reqCtx Context) (Decision, error) {
		return Decision{}, boom
	})
	b := breaker.NewBreaker(1, 30*time.Second, 30*time.Second, nil)
	g := NewGuarded(inner, b, 800*time.Millisecond, 25)

	_, err := g.Advise(context.Background(), 1, at(0), Context{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	if b.State() != breaker.StateOpen {
		t.Fatalf("expected single failure to open breaker with limit 1")
	}
}

func TestGuardedAdviseRejectsUnparseableAction(t *testing.T) {
	inner := AdvisorFunc(func(ctx context.Context, reqCtx Context) (Decision, error) {
		return Decision{Action: "floor_it", Speed: 5, Reason: "n/a"}, nil
	})
	b := breaker.NewBreaker(5, 30*time.Second, 30*time.Second, nil)
	g := NewGuarded(inner, b, 800*time.Millisecond, 25)

	_, err := g.Advise(context.Background(), 1, at(0), Context{})
	if !errors.Is(err, ErrUnparseableAction) {
		t.Fatalf("expected unparseable action error, got %v", err)
	}
}

func TestGuardedAdviseRejectsSpeedAboveVMax(t *testing.T) {
	inner := AdvisorFunc(func(ctx context.Context, reqCtx Context) (Decision, error) {
		return Decision{Action: ActionGo, Speed: 999, Reason: "n/a"}, nil
	})
	b := breaker.NewBreaker(5, 30*time.Second, 30*time.Second, nil)
	g := NewGuarded(inner, b, 800*time.Millisecond, 25)

	_, err := g.Advise(context.Background(), 1, at(0), Context{})
	if !errors.Is(err, ErrSpeedOutOfRange) {
		t.Fatalf("expected speed-out-of-range error, got %v", err)
	}
}

func TestGuardedAdviseTimesOutOnSlowInner(t *testing.T) {
	inner := AdvisorFunc(func(ctx context.Context, reqCtx Context) (Decision, error) {
		select {
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		case <-time.After(2 * time.Second):
			return Decision{Action: ActionGo, Speed: 5, Reason: "too slow"}, nil
		}
	})
	b := breaker.NewBreaker(5, 30*time.Second, 30*time.Second, nil)
	g := NewGuarded(inner, b, 20*time.Millisecond, 25)

	start := time.Now()
	_, err := g.Advise(context.Background(), 1, at(0), Context{})
	elapsed := time.Since(start)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed > time.Second {
		t.Fatalf("expected the call to be cancelled well before the inner delay, took %v", elapsed)
	}
}

func TestGuardedAdviseFailsFastWhenBreakerOpen(t *testing.T) {
	calls := 0
	inner := AdvisorFunc(func(ctx context.Context, reqCtx Context) (Decision, error) {
		calls++
		return Decision{}, errors.New("boom")
	})
	b := breaker.NewBreaker(1, 30*time.Second, 30*time.Second, nil)
	g := NewGuarded(inner, b, 800*time.Millisecond, 25)

	g.Advise(context.Background(), 1, at(0), Context{}) // opens the breaker
	if _, err := g.Advise(context.Background(), 2, at(0.1), Context{}); !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("expected breaker-open error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected inner advisor not to be called while breaker is open, got %d calls", calls)
	}
}

func TestHeuristicYieldsWhenAdvisoryMustYield(t *testing.T) {
	h := NewHeuristic(nil)
	got, err := h.Advise(context.Background(), Context{Advisory: "must_yield"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Action != ActionYield {
		t.Fatalf("expected yield action, got %+v", got)
	}
}

func TestHeuristicBrakesForCloseNearestPeer(t *testing.T) {
	h := NewHeuristic(nil)
	got, err := h.Advise(context.Background(), Context{
		V:     10,
		Peers: []PeerSummary{{ID: "x", Distance: 3}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Action != ActionBrake {
		t.Fatalf("expected brake for a close peer, got %+v", got)
	}
}
