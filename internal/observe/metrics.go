// Package observe provides application-wide observability primitives for
// ClinScribe: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all ClinScribe metrics.
const meterName = "github.com/clinscribe/clinscribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// EnhancementDuration tracks text enhancement latency per final result.
	EnhancementDuration metric.Float64Histogram

	// RecognitionStartDuration tracks how long starting an engine stream
	// takes, including the backend dial.
	RecognitionStartDuration metric.Float64Histogram

	// --- Counters ---

	// Results counts produced transcription results. Use with attributes:
	//   attribute.String("kind", "interim"|"final")
	Results metric.Int64Counter

	// AudioChunks counts accepted audio chunks.
	AudioChunks metric.Int64Counter

	// EventsDropped counts broker events dropped under subscriber
	// backpressure.
	EventsDropped metric.Int64Counter

	// --- Error counters ---

	// EngineErrors counts engine-originated recognition failures. Use with
	// attribute: attribute.String("provider", ...)
	EngineErrors metric.Int64Counter

	// EnhancementDegraded counts enhancer failures where raw text was passed
	// through.
	EnhancementDegraded metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live dictation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// Subscribers tracks the number of attached event subscribers.
	Subscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for dictation-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.EnhancementDuration, err = m.Float64Histogram("clinscribe.enhancement.duration",
		metric.WithDescription("Latency of text enhancement per final result."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognitionStartDuration, err = m.Float64Histogram("clinscribe.recognition.start.duration",
		metric.WithDescription("Latency of starting an engine recognition stream."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Results, err = m.Int64Counter("clinscribe.results",
		metric.WithDescription("Total transcription results by kind."),
	); err != nil {
		return nil, err
	}
	if met.AudioChunks, err = m.Int64Counter("clinscribe.audio.chunks",
		metric.WithDescription("Total accepted audio chunks."),
	); err != nil {
		return nil, err
	}
	if met.EventsDropped, err = m.Int64Counter("clinscribe.events.dropped",
		metric.WithDescription("Total broker events dropped under subscriber backpressure."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.EngineErrors, err = m.Int64Counter("clinscribe.engine.errors",
		metric.WithDescription("Total engine-originated recognition failures by provider."),
	); err != nil {
		return nil, err
	}
	if met.EnhancementDegraded, err = m.Int64Counter("clinscribe.enhancement.degraded",
		metric.WithDescription("Total enhancer failures where raw text was passed through."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("clinscribe.active_sessions",
		metric.WithDescription("Number of live dictation sessions."),
	); err != nil {
		return nil, err
	}
	if met.Subscribers, err = m.Int64UpDownCounter("clinscribe.subscribers",
		metric.WithDescription("Number of attached event subscribers."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("clinscribe.http.request.duration",
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

// RecordResult records one produced transcription result.
func (m *Metrics) RecordResult(ctx context.Context, kind string) {
	m.Results.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordEngineError records one engine-originated recognition failure.
func (m *Metrics) RecordEngineError(ctx context.Context, provider string) {
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
