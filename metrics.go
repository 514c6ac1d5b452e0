package mainloop

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// statsRecorder records per-pass loop activity.
type statsRecorder interface {
	recordPass(d time.Duration)
	recordTimeouts(n int)
	recordIdlers(n int)
	recordSources(n int)
}

// noopStats is used when metrics are disabled or fail to initialize.
type noopStats struct{}

func (noopStats) recordPass(time.Duration) {}
func (noopStats) recordTimeouts(int)       {}
func (noopStats) recordIdlers(int)         {}
func (noopStats) recordSources(int)        {}

// otelStats implements statsRecorder using OpenTelemetry.
type otelStats struct {
	passes            metric.Int64Counter
	passLatency       metric.Float64Histogram
	timeoutsFired     metric.Int64Counter
	idlersRun         metric.Int64Counter
	sourcesDispatched metric.Int64Counter
}

// newOtelStats creates the instruments from the global meter provider.
// Configure the provider before creating the loop:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func newOtelStats() (*otelStats, error) {
	meter := otel.Meter("mainloop")

	passes, err := meter.Int64Counter("mainloop.passes",
		metric.WithDescription("Number of completed loop passes"),
	)
	if err != nil {
		return nil, err
	}

	passLatency, err := meter.Float64Histogram("mainloop.pass.latency_ms",
		metric.WithDescription("Loop pass latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	timeoutsFired, err := meter.Int64Counter("mainloop.timeouts.fired",
		metric.WithDescription("Number of timeout callbacks dispatched"),
	)
	if err != nil {
		return nil, err
	}

	idlersRun, err := meter.Int64Counter("mainloop.idlers.run",
		metric.WithDescription("Number of idler callbacks dispatched"),
	)
	if err != nil {
		return nil, err
	}

	sourcesDispatched, err := meter.Int64Counter("mainloop.sources.dispatched",
		metric.WithDescription("Number of foreign source dispatches"),
	)
	if err != nil {
		return nil, err
	}

	return &otelStats{
		passes:            passes,
		passLatency:       passLatency,
		timeoutsFired:     timeoutsFired,
		idlersRun:         idlersRun,
		sourcesDispatched: sourcesDispatched,
	}, nil
}

// newStatsRecorder returns the otel recorder when enabled, falling back
// to a no-op recorder when disabled or on initialization failure.
func newStatsRecorder(enabled bool, log *Logger) statsRecorder {
	if !enabled {
		return noopStats{}
	}
	s, err := newOtelStats()
	if err != nil {
		log.Warning().Err(err).Log("metrics initialization failed, using no-op recorder")
		return noopStats{}
	}
	return s
}

func (s *otelStats) recordPass(d time.Duration) {
	ctx := context.Background()
	s.passes.Add(ctx, 1)
	s.passLatency.Record(ctx, float64(d)/float64(time.Millisecond))
}

func (s *otelStats) recordTimeouts(n int) {
	s.timeoutsFired.Add(context.Background(), int64(n))
}

func (s *otelStats) recordIdlers(n int) {
	s.idlersRun.Add(context.Background(), int64(n))
}

func (s *otelStats) recordSources(n int) {
	s.sourcesDispatched.Add(context.Background(), int64(n))
}
