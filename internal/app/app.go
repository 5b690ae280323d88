// Package app wires the simulation kernel into a runnable process: it
// loads configuration, builds the logging router and simulation manager,
// and drives the fixed-timestep tick loop until interrupted or the
// configured tick budget is spent.
//
// The specification treats every transport as an opaque concern; this
// package supplies the simplest one that satisfies it — a headless loop
// that periodically prints the exported state document to stdout. It is
// not the only valid transport, just the one this binary ships with.
package app

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"intersection-sim/server/internal/config"
	"intersection-sim/server/internal/sim"
	"intersection-sim/server/internal/telemetry"
	"intersection-sim/server/logging"
	"intersection-sim/server/logging/sinks"
)

// Config collects the process-level knobs Run reads from flags. Fields
// left zero-valued fall back to sane defaults inside Run.
type Config struct {
	ConfigPath   string
	ScenarioPath string
	Scenario     string
	Mode         sim.Mode
	Ticks        uint64
	ReportEvery  uint64
	LogJSONPath  string
}

// parseFlags builds a Config from the command line.
func parseFlags() Config {
	cfg := Config{}
	var mode string
	flag.StringVar(&cfg.ConfigPath, "config", "", "path to a runtime config YAML file (defaults built in)")
	flag.StringVar(&cfg.ScenarioPath, "scenario-file", "", "path to an ad hoc scenario YAML document")
	flag.StringVar(&cfg.Scenario, "scenario", sim.ScenarioRightOfWay, "builtin scenario id, or the id declared in -scenario-file")
	flag.StringVar(&mode, "mode", string(sim.ModeScenario), "CITY or SCENARIO")
	flag.Uint64Var(&cfg.Ticks, "ticks", 0, "stop after this many ticks (0 runs until interrupted)")
	flag.Uint64Var(&cfg.ReportEvery, "report-every", 0, "print get_state every N ticks (0 derives one report per second from tickRateHz)")
	flag.StringVar(&cfg.LogJSONPath, "log-json", "", "optional path to append newline-delimited telemetry events")
	flag.Parse()
	cfg.Mode = sim.Mode(mode)
	return cfg
}

// Run loads configuration, starts the requested scenario, and drives the
// tick loop until ctx is canceled, an interrupt signal arrives, or the
// configured tick budget is exhausted.
func Run(ctx context.Context) error {
	cfg := parseFlags()
	logger := telemetry.WrapLogger(log.Default())

	runtimeCfg, err := config.LoadRuntimeConfig(cfg.ConfigPath)
	if err != nil {
		return err
	}

	router, err := buildRouter(cfg.LogJSONPath)
	if err != nil {
		return fmt.Errorf("app: build logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			logger.Printf("app: close logging router: %v", cerr)
		}
	}()

	counters := &logging.Metrics{}
	metrics := telemetry.WrapMetrics(counters)

	manager := sim.NewManager(runtimeCfg, router, nil, nil)
	if err := manager.Init(cfg.Mode); err != nil {
		return fmt.Errorf("app: init: %w", err)
	}

	scenarioID := cfg.Scenario
	if cfg.ScenarioPath != "" {
		doc, err := config.LoadScenarioDocument(cfg.ScenarioPath)
		if err != nil {
			return err
		}
		if err := manager.LoadScenario(doc); err != nil {
			return fmt.Errorf("app: load scenario: %w", err)
		}
		scenarioID = doc.ID
	}
	if err := manager.Start(scenarioID); err != nil {
		return fmt.Errorf("app: start %q: %w", scenarioID, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reportEvery := cfg.ReportEvery
	if reportEvery == 0 {
		reportEvery = uint64(runtimeCfg.TickRateHz)
	}

	logger.Printf("app: running scenario %q at %d Hz (mode=%s)", scenarioID, runtimeCfg.TickRateHz, cfg.Mode)
	runLoop(ctx, manager, runtimeCfg, cfg.Ticks, reportEvery, logger, metrics)

	report := manager.TelemetryReport()
	telemetry.RecordSecurityStats(metrics, report.Security)
	telemetry.RecordRouterStats(metrics, report.Router)
	logger.Printf("app: final telemetry: security=%+v router=%+v counters=%+v", report.Security, report.Router, counters.Snapshot())
	return printState(manager.GetState())
}

// runLoop drives Advance on a fixed-rate ticker, printing a snapshot every
// reportEvery ticks and tallying a running tick counter through metrics,
// until ctx is canceled or maxTicks elapse.
func runLoop(ctx context.Context, manager *sim.Manager, cfg config.RuntimeConfig, maxTicks, reportEvery uint64, logger telemetry.Logger, metrics telemetry.Metrics) {
	rate := cfg.TickRateHz
	if rate <= 0 {
		rate = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	var ticks uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			state := manager.Advance(ctx, now)
			ticks++
			metrics.Add("ticks_total", 1)
			if reportEvery > 0 && ticks%reportEvery == 0 {
				if err := printState(state); err != nil {
					logger.Printf("app: print state: %v", err)
				}
			}
			if maxTicks > 0 && ticks >= maxTicks {
				return
			}
		}
	}
}

func printState(state sim.ExportedState) error {
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(state)
}

func buildRouter(jsonPath string) (*logging.Router, error) {
	logCfg := logging.DefaultConfig()
	named := []logging.NamedSink{
		{Name: "console", Sink: sinks.NewConsoleSink(os.Stderr, logCfg.Console)},
	}
	if jsonPath != "" {
		f, err := os.OpenFile(jsonPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", jsonPath, err)
		}
		named = append(named, logging.NamedSink{Name: "json", Sink: sinks.NewJSON(f, logCfg.JSON.FlushInterval)})
	}
	return logging.NewRouter(nil, logCfg, named)
}
