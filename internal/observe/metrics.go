// Package observe provides application-wide observability primitives for
// hearscribe: OpenTelemetry metrics, tracing helpers, a trace-aware slog
// logger, and HTTP middleware for the metrics and health endpoints.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus via [InitProvider]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all hearscribe metrics.
const meterName = "github.com/MrWong99/hearscribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// AttributionDuration tracks how long the engine takes to attribute one
	// segment, including any speaker memory write.
	AttributionDuration metric.Float64Histogram

	// TranscriptionDuration tracks remote speech-to-text latency per audio
	// segment.
	TranscriptionDuration metric.Float64Histogram

	// --- Counters ---

	// Segments counts attributed segments. Use with attribute:
	//   attribute.String("rule", ...)
	Segments metric.Int64Counter

	// SkippedSegments counts segments dropped before attribution. Use with
	// attribute:
	//   attribute.String("reason", ...)
	SkippedSegments metric.Int64Counter

	// SpeakerChanges counts attributions that moved the current speaker.
	SpeakerChanges metric.Int64Counter

	// MemoryWrites counts speaker memory persistence attempts. Use with
	// attribute:
	//   attribute.String("status", ...)
	MemoryWrites metric.Int64Counter

	// ProviderRequests counts transcription API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of running transcript sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// attributionBuckets covers the in-process attribution path, which is fast
// unless a memory write hits the disk.
var attributionBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// transcriptionBuckets covers remote transcription of a segment of up to a
// minute of audio.
var transcriptionBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AttributionDuration, err = m.Float64Histogram("hearscribe.attribution.duration",
		metric.WithDescription("Latency of attributing one segment to a speaker."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(attributionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("hearscribe.transcription.duration",
		metric.WithDescription("Latency of remote speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(transcriptionBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Segments, err = m.Int64Counter("hearscribe.segments",
		metric.WithDescription("Total attributed segments by attribution rule."),
	); err != nil {
		return nil, err
	}
	if met.SkippedSegments, err = m.Int64Counter("hearscribe.segments.skipped",
		metric.WithDescription("Total segments skipped before attribution by reason."),
	); err != nil {
		return nil, err
	}
	if met.SpeakerChanges, err = m.Int64Counter("hearscribe.speaker.changes",
		metric.WithDescription("Total changes of the current speaker."),
	); err != nil {
		return nil, err
	}
	if met.MemoryWrites, err = m.Int64Counter("hearscribe.memory.writes",
		metric.WithDescription("Total speaker memory writes by status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("hearscribe.provider.requests",
		metric.WithDescription("Total transcription provider requests by provider and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("hearscribe.active_sessions",
		metric.WithDescription("Number of running transcript sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("hearscribe.http.request.duration",
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

// RecordSegment records one attributed segment under the rule that decided
// its speaker, and a speaker change when changed is true.
func (m *Metrics) RecordSegment(ctx context.Context, rule string, changed bool) {
	m.Segments.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", rule)))
	if changed {
		m.SpeakerChanges.Add(ctx, 1)
	}
}

// RecordSkipped records a segment dropped before attribution.
func (m *Metrics) RecordSkipped(ctx context.Context, reason string) {
	m.SkippedSegments.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordMemoryWrite records a speaker memory persistence attempt.
func (m *Metrics) RecordMemoryWrite(ctx context.Context, status string) {
	m.MemoryWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordProviderRequest records a transcription request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}
