// Package observe provides application-wide observability primitives for
// mediascribe: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all mediascribe metrics.
const meterName = "github.com/mediascribe/mediascribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use since the underlying OTel types
// handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ExtractionDuration tracks ffmpeg audio extraction latency.
	ExtractionDuration metric.Float64Histogram

	// TranscriptionDuration tracks speech-recognition latency.
	TranscriptionDuration metric.Float64Histogram

	// EncodeDuration tracks transcript encoding and file write latency.
	EncodeDuration metric.Float64Histogram

	// JobDuration tracks end-to-end job latency from input file to
	// written outputs.
	JobDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts recognition backend calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts recognition backend errors. Use with attribute:
	//   attribute.String("provider", ...)
	ProviderErrors metric.Int64Counter

	// SegmentsProduced counts transcript segments emitted by finished jobs.
	SegmentsProduced metric.Int64Counter

	// JobsCompleted counts finished jobs. Use with attribute:
	//   attribute.String("status", ...)
	JobsCompleted metric.Int64Counter

	// --- Gauges ---

	// ActiveJobs tracks the number of jobs currently transcribing.
	ActiveJobs metric.Int64UpDownCounter

	// QueuedJobs tracks the number of jobs waiting for a worker slot.
	QueuedJobs metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// batch media jobs, which run from sub-second to many minutes.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ExtractionDuration, err = m.Float64Histogram("mediascribe.extraction.duration",
		metric.WithDescription("Latency of ffmpeg audio extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("mediascribe.transcription.duration",
		metric.WithDescription("Latency of speech recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EncodeDuration, err = m.Float64Histogram("mediascribe.encode.duration",
		metric.WithDescription("Latency of transcript encoding and output writes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.JobDuration, err = m.Float64Histogram("mediascribe.job.duration",
		metric.WithDescription("End-to-end job latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("mediascribe.provider.requests",
		metric.WithDescription("Total recognition backend requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("mediascribe.provider.errors",
		metric.WithDescription("Total recognition backend errors by provider."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsProduced, err = m.Int64Counter("mediascribe.segments.produced",
		metric.WithDescription("Total transcript segments emitted."),
	); err != nil {
		return nil, err
	}
	if met.JobsCompleted, err = m.Int64Counter("mediascribe.jobs.completed",
		metric.WithDescription("Total finished jobs by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveJobs, err = m.Int64UpDownCounter("mediascribe.active_jobs",
		metric.WithDescription("Number of jobs currently transcribing."),
	); err != nil {
		return nil, err
	}
	if met.QueuedJobs, err = m.Int64UpDownCounter("mediascribe.queued_jobs",
		metric.WithDescription("Number of jobs waiting for a worker slot."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("mediascribe.http.request.duration",
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

// RecordProviderRequest records a backend request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a backend error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordJobCompleted records a finished job with its terminal status.
func (m *Metrics) RecordJobCompleted(ctx context.Context, status string) {
	m.JobsCompleted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
