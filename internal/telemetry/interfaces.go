package telemetry

import (
	"log"

	"intersection-sim/server/internal/v2x"
	"intersection-sim/server/logging"
)

// Logger exposes the logging capabilities required by server components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// Metrics exposes the telemetry methods required by server components.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics adapts the logging router metrics into the Metrics interface.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return &metricsAdapter{metrics: metrics}
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m *metricsAdapter) Add(key string, delta uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m *metricsAdapter) Store(key string, value uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}

// RecordSecurityStats mirrors the security filter's filter-wide rejection
// counters into metrics, one gauge per reason, so a scrape sees the same
// breakdown telemetry_report returns.
func RecordSecurityStats(m Metrics, stats v2x.SecurityStats) {
	if m == nil {
		return
	}
	m.Store("security_rejected_invalid_mac", stats.InvalidMAC)
	m.Store("security_rejected_invalid_range", stats.InvalidRange)
	m.Store("security_rejected_stale", stats.Stale)
	m.Store("security_rejected_rate_limited", stats.RateLimited)
}

// RecordRouterStats mirrors the logging router's delivery and backpressure
// counters into metrics, including a per-category drop gauge so an operator
// can tell which event category is getting squeezed out under load.
func RecordRouterStats(m Metrics, stats logging.RouterStats) {
	if m == nil {
		return
	}
	m.Store("logging_events_total", stats.EventsTotal)
	m.Store("logging_dropped_total", stats.DroppedTotal)
	for category, count := range stats.DroppedByCategory {
		m.Store("logging_dropped_by_category_"+category, count)
	}
}
