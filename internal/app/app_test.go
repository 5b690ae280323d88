package app

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"intersection-sim/server/internal/config"
	"intersection-sim/server/internal/sim"
	"intersection-sim/server/internal/telemetry"
	"intersection-sim/server/logging"
)

func TestBuildRouterWithoutJSONPathUsesConsoleSinkOnly(t *testing.T) {
	router, err := buildRouter("")
	if err != nil {
		t.Fatalf("buildRouter: %v", err)
	}
	defer func() {
		if cerr := router.Close(context.Background()); cerr != nil {
			t.Fatalf("close router: %v", cerr)
		}
	}()
	if router.Sink("json") != nil {
		t.Fatalf("expected no json sink when no path is given")
	}
	if router.Sink("console") == nil {
		t.Fatalf("expected a console sink by default")
	}
}

func TestBuildRouterWithJSONPathAddsJSONSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	router, err := buildRouter(path)
	if err != nil {
		t.Fatalf("buildRouter: %v", err)
	}
	defer func() {
		if cerr := router.Close(context.Background()); cerr != nil {
			t.Fatalf("close router: %v", cerr)
		}
	}()
	if router.Sink("json") == nil {
		t.Fatalf("expected a json sink when a path is given")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected the json sink to create its file: %v", err)
	}
}

func TestPrintStateWritesValidJSON(t *testing.T) {
	state := sim.ExportedState{Running: true, Scenario: sim.ScenarioRightOfWay, Tick: 7}

	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = old }()

	if err := printState(state); err != nil {
		t.Fatalf("printState: %v", err)
	}
	w.Close()

	var buf bytes.Buffer
	buf.ReadFrom(r)

	var decoded sim.ExportedState
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode printed state: %v", err)
	}
	if decoded.Tick != 7 || decoded.Scenario != sim.ScenarioRightOfWay {
		t.Fatalf("unexpected decoded state: %+v", decoded)
	}
}

func TestRunLoopStopsAfterMaxTicksAndTalliesMetrics(t *testing.T) {
	cfg := config.DefaultRuntimeConfig()
	cfg.BackgroundPopulation = 0
	cfg = cfg.Normalized()

	manager := sim.NewManager(cfg, nil, nil, rand.New(rand.NewSource(1)))
	if err := manager.Init(sim.ModeScenario); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := manager.Start(sim.ScenarioRightOfWay); err != nil {
		t.Fatalf("Start: %v", err)
	}

	counters := &logging.Metrics{}
	metrics := telemetry.WrapMetrics(counters)
	logger := telemetry.LoggerFunc(func(string, ...any) {})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	runLoop(ctx, manager, cfg, 3, 1, logger, metrics)

	if got := counters.Snapshot()["ticks_total"]; got != 3 {
		t.Fatalf("expected ticks_total to reach 3, got %d", got)
	}
	if state := manager.GetState(); state.Tick != 3 {
		t.Fatalf("expected manager tick to reach 3, got %d", state.Tick)
	}
}
