package logging_test

import (
	"context"
	"testing"
	"time"

	"intersection-sim/server/logging"
	"intersection-sim/server/logging/sinks"
)

func newTestRouter(t *testing.T, mem *sinks.MemorySink, bufferSize int) *logging.Router {
	cfg := logging.DefaultConfig()
	cfg.BufferSize = bufferSize
	cfg.MinimumSeverity = logging.SeverityDebug
	r, err := logging.NewRouter(nil, cfg, []logging.NamedSink{{Name: "memory", Sink: mem}})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return r
}

func TestRouterDeliversEventsToMemorySink(t *testing.T) {
	mem := sinks.NewMemorySink()
	r := newTestRouter(t, mem, 16)
	defer r.Close(context.Background())

	r.Publish(context.Background(), logging.Event{Type: "agent.decision", Severity: logging.SeverityInfo, Category: logging.CategoryAgent})

	deadline := time.Now().Add(time.Second)
	for len(mem.Events()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := mem.Events(); len(got) != 1 {
		t.Fatalf("expected one event delivered to the memory sink, got %d", len(got))
	}
}

func TestRouterDropsRoutineEventsUnderBackpressureButNotCritical(t *testing.T) {
	mem := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.BufferSize = 1
	cfg.MinimumSeverity = logging.SeverityDebug
	cfg.CriticalSeverity = logging.SeverityError
	r, err := logging.NewRouter(nil, cfg, []logging.NamedSink{{Name: "memory", Sink: mem}})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer r.Close(context.Background())

	// Flood routine events through a single-slot queue; the producer loop
	// easily outruns the dispatch goroutine, so some of these are dropped
	// rather than blocking forever.
	for i := 0; i < 2000; i++ {
		r.Publish(context.Background(), logging.Event{Type: "agent.decision", Severity: logging.SeverityInfo, Category: logging.CategoryAgent})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.Publish(ctx, logging.Event{Type: "collision.nearmiss", Severity: logging.SeverityError, Category: logging.CategoryCollision})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		critical := mem.BySeverity(logging.SeverityError)
		if len(critical) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	critical := mem.BySeverity(logging.SeverityError)
	if len(critical) == 0 {
		t.Fatalf("expected the critical near-miss event to reach the sink despite backpressure")
	}

	stats := r.Stats()
	if stats.DroppedTotal == 0 {
		t.Fatalf("expected some routine events to be dropped under backpressure, got none")
	}
}

func TestRouterStatsTracksDropsByCategory(t *testing.T) {
	mem := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.BufferSize = 1
	cfg.MinimumSeverity = logging.SeverityDebug
	r, err := logging.NewRouter(nil, cfg, []logging.NamedSink{{Name: "memory", Sink: mem}})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer r.Close(context.Background())

	for i := 0; i < 2000; i++ {
		r.Publish(context.Background(), logging.Event{Type: "light.phase", Severity: logging.SeverityInfo, Category: logging.CategoryLight})
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if r.Stats().DroppedTotal > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	stats := r.Stats()
	if stats.DroppedByCategory[logging.CategoryLight] == 0 {
		t.Fatalf("expected drops tracked under category %q, got %+v", logging.CategoryLight, stats.DroppedByCategory)
	}
}
