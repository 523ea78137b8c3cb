// Package observe provides application-wide observability primitives for
// Voidtable: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voidtable metrics.
const meterName = "github.com/arkavel/voidtable"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// LLMDuration tracks LLM inference latency. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("agent", ...)
	LLMDuration metric.Float64Histogram

	// RoundDuration tracks wall-clock time per played round.
	RoundDuration metric.Float64Histogram

	// RollMargin tracks the margin of skill checks (total minus difficulty).
	RollMargin metric.Float64Histogram

	// --- Counters ---

	// LLMRequests counts LLM calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("agent", ...), attribute.String("status", ...)
	LLMRequests metric.Int64Counter

	// LLMFallbacks counts times an agent fell back to its deterministic
	// behaviour because the model was unavailable or noncompliant. Use with
	// attribute.String("agent", ...).
	LLMFallbacks metric.Int64Counter

	// Rolls counts resolved skill checks. Use with attribute:
	//   attribute.String("outcome", ...) — crit_success, success, fail, crit_fail
	Rolls metric.Int64Counter

	// VoidAccrued counts void points granted across all characters.
	VoidAccrued metric.Int64Counter

	// ClockTicks counts scene-clock movement. Use with attributes:
	//   attribute.String("clock", ...), attribute.String("direction", ...)
	ClockTicks metric.Int64Counter

	// EnemiesSpawned counts hostile spawns by template.
	EnemiesSpawned metric.Int64Counter

	// --- Error counters ---

	// LLMErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("agent", ...)
	LLMErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of sessions currently playing.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveAgents tracks the number of connected player agents.
	ActiveAgents metric.Int64UpDownCounter

	// LivingEnemies tracks hostiles currently on the field.
	LivingEnemies metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM round-trips rather than sub-second RPC traffic.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45, 90,
}

// marginBuckets covers the realistic margin range of attribute×skill+d20
// against difficulties between 10 and 40.
var marginBuckets = []float64{
	-20, -10, -5, -1, 0, 1, 5, 10, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LLMDuration, err = m.Float64Histogram("voidtable.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RoundDuration, err = m.Float64Histogram("voidtable.round.duration",
		metric.WithDescription("Wall-clock time per played round."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RollMargin, err = m.Float64Histogram("voidtable.roll.margin",
		metric.WithDescription("Margin of skill checks: total minus difficulty."),
		metric.WithExplicitBucketBoundaries(marginBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.LLMRequests, err = m.Int64Counter("voidtable.llm.requests",
		metric.WithDescription("Total LLM requests by provider, agent, and status."),
	); err != nil {
		return nil, err
	}
	if met.LLMFallbacks, err = m.Int64Counter("voidtable.llm.fallbacks",
		metric.WithDescription("Times an agent fell back to deterministic behaviour."),
	); err != nil {
		return nil, err
	}
	if met.Rolls, err = m.Int64Counter("voidtable.rolls",
		metric.WithDescription("Resolved skill checks by outcome."),
	); err != nil {
		return nil, err
	}
	if met.VoidAccrued, err = m.Int64Counter("voidtable.void.accrued",
		metric.WithDescription("Void points granted across all characters."),
	); err != nil {
		return nil, err
	}
	if met.ClockTicks, err = m.Int64Counter("voidtable.clock.ticks",
		metric.WithDescription("Scene-clock movement by clock and direction."),
	); err != nil {
		return nil, err
	}
	if met.EnemiesSpawned, err = m.Int64Counter("voidtable.enemies.spawned",
		metric.WithDescription("Hostile spawns by template."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.LLMErrors, err = m.Int64Counter("voidtable.llm.errors",
		metric.WithDescription("LLM provider errors by provider and agent."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voidtable.active_sessions",
		metric.WithDescription("Sessions currently playing."),
	); err != nil {
		return nil, err
	}
	if met.ActiveAgents, err = m.Int64UpDownCounter("voidtable.active_agents",
		metric.WithDescription("Connected player agents."),
	); err != nil {
		return nil, err
	}
	if met.LivingEnemies, err = m.Int64UpDownCounter("voidtable.living_enemies",
		metric.WithDescription("Hostiles currently on the field."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voidtable.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordLLMRequest records one LLM call with the standard attribute set.
func (m *Metrics) RecordLLMRequest(ctx context.Context, provider, agent, status string) {
	m.LLMRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("agent", agent),
			attribute.String("status", status),
		),
	)
}

// RecordFallback records one deterministic-fallback event for an agent.
func (m *Metrics) RecordFallback(ctx context.Context, agent string) {
	m.LLMFallbacks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("agent", agent)),
	)
}

// RecordRoll records one resolved skill check: the outcome counter and the
// margin histogram.
func (m *Metrics) RecordRoll(ctx context.Context, outcome string, margin int) {
	m.Rolls.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	m.RollMargin.Record(ctx, float64(margin))
}

// RecordClockTicks records scene-clock movement. Negative ticks count as
// direction "regress".
func (m *Metrics) RecordClockTicks(ctx context.Context, clock string, ticks int) {
	direction := "advance"
	n := int64(ticks)
	if ticks < 0 {
		direction = "regress"
		n = -n
	}
	m.ClockTicks.Add(ctx, n,
		metric.WithAttributes(
			attribute.String("clock", clock),
			attribute.String("direction", direction),
		),
	)
}

// RecordLLMError records one provider error.
func (m *Metrics) RecordLLMError(ctx context.Context, provider, agent string) {
	m.LLMErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("agent", agent),
		),
	)
}
