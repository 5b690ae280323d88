package breaker

import (
	"context"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

func TestBreakerOpensAfterFailureLimitWithinWindow(t *testing.T) {
	b := NewBreaker(5, 30*time.Second, 30*time.Second, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		b.RecordFailure(ctx, uint64(i), at(float64(i)))
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after 4 failures, got %v", b.State())
	}
	b.RecordFailure(ctx, 5, at(5))
	if b.State() != StateOpen {
		t.Fatalf("expected open after 5th failure within window, got %v", b.State())
	}
	if b.Allow(ctx, 6, at(5)) {
		t.Fatalf("expected open breaker to deny calls immediately")
	}
}

func TestBreakerIgnoresFailuresOutsideWindow(t *testing.T) {
	b := NewBreaker(5, 30*time.Second, 30*time.Second, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		b.RecordFailure(ctx, uint64(i), at(float64(i)))
	}
	// This failure lands 40s later, well outside the 30s window, so the
	// earlier 4 have decayed and the limit is not reached.
	b.RecordFailure(ctx, 5, at(40))
	if b.State() != StateClosed {
		t.Fatalf("expected closed once earlier failures age out of the window, got %v", b.State())
	}
}

func TestBreakerHalfOpenAllowsSingleProbeThenClosesOnSuccess(t *testing.T) {
	b := NewBreaker(5, 30*time.Second, 30*time.Second, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.RecordFailure(ctx, uint64(i), at(float64(i)))
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	// Cooldown elapsed.
	if !b.Allow(ctx, 10, at(40)) {
		t.Fatalf("expected half-open probe to be allowed after cooldown")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half_open after cooldown elapses, got %v", b.State())
	}
	if b.Allow(ctx, 11, at(40)) {
		t.Fatalf("expected a second concurrent probe to be denied")
	}

	b.RecordSuccess(ctx, 12)
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %v", b.State())
	}
	if !b.Allow(ctx, 13, at(40)) {
		t.Fatalf("expected calls allowed again once closed")
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(5, 30*time.Second, 30*time.Second, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.RecordFailure(ctx, uint64(i), at(float64(i)))
	}
	b.Allow(ctx, 10, at(40)) // enters half-open, consumes the probe

	b.RecordFailure(ctx, 11, at(40))
	if b.State() != StateOpen {
		t.Fatalf("expected failed probe to reopen the breaker, got %v", b.State())
	}
	if b.Allow(ctx, 12, at(40)) {
		t.Fatalf("expected immediate re-open to deny calls before the new cooldown elapses")
	}
}
