// Package observe provides the observability primitives of the widget
// backend: OpenTelemetry metrics, tracing, trace-aware logging, and the HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]. [DefaultMetrics] returns a process-wide
// instance; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/voxwidget"

// Metrics holds all OpenTelemetry metric instruments for the application.
type Metrics struct {
	// ── Latency ──

	// STTDuration tracks transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks synthesis latency.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks the time from submit (or stop recording) until the
	// assistant reply is appended. Attributes: mode ("text" or "voice").
	TurnDuration metric.Float64Histogram

	// ── Counters ──

	// ProviderRequests counts upstream calls.
	// Attributes: provider, kind ("llm", "stt", "tts"), status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts upstream failures. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// Turns counts completed turns. Attributes: mode, outcome ("reply",
	// "fallback", "empty_transcript").
	Turns metric.Int64Counter

	// Notifications counts lead notifications. Attributes: status.
	Notifications metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes.
	// Attributes: breaker, state.
	BreakerTransitions metric.Int64Counter

	// ── Gauges ──

	// ActiveSessions tracks connected widget sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ── HTTP ──

	// HTTPRequestDuration tracks HTTP request processing time.
	// Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram bucket boundaries in seconds. Completion and
// transcription calls routinely take seconds, so the upper range is wide.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates all instruments on the given [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "voxwidget.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "voxwidget.llm.duration", "Latency of chat completion."},
		{&met.TTSDuration, "voxwidget.tts.duration", "Latency of text-to-speech synthesis."},
		{&met.TurnDuration, "voxwidget.turn.duration", "Time from user input to appended reply."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "voxwidget.provider.requests", "Upstream requests by provider, kind, and status."},
		{&met.ProviderErrors, "voxwidget.provider.errors", "Upstream errors by provider and kind."},
		{&met.Turns, "voxwidget.turns", "Completed turns by mode and outcome."},
		{&met.Notifications, "voxwidget.notifications", "Lead notifications by status."},
		{&met.BreakerTransitions, "voxwidget.breaker.transitions", "Circuit breaker state changes."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voxwidget.active_sessions",
		metric.WithDescription("Number of connected widget sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxwidget.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, created on
// first use from [otel.GetMeterProvider]. Panics if instrument creation fails.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest increments the provider request counter.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTurn increments the turn counter and records its duration.
func (m *Metrics) RecordTurn(ctx context.Context, mode, outcome string, seconds float64) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("outcome", outcome),
		),
	)
	m.TurnDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordNotification increments the notification counter.
func (m *Metrics) RecordNotification(ctx context.Context, status string) {
	m.Notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordBreakerTransition increments the breaker transition counter.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("state", state),
		),
	)
}
