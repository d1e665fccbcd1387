package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig describes how the daemon reports telemetry about itself.
type ProviderConfig struct {
	// ServiceName identifies this process in exported telemetry.
	// Default: "mediascribe".
	ServiceName string

	// ServiceVersion is stamped onto every metric and span resource, so a
	// dashboard can tell which build produced a slow transcription.
	ServiceVersion string

	// TraceExporter receives finished spans. Left nil, spans are still
	// created (correlation IDs and trace-bound logs keep working) but
	// nothing leaves the process. Metrics are unaffected: they are always
	// scrapeable from /metrics.
	TraceExporter sdktrace.SpanExporter
}

// InitProvider wires the OTel SDK for the daemon and registers the meter and
// tracer providers globally. Metrics flow through a Prometheus exporter so
// the /metrics route serves them without a collector in between; spans go to
// cfg.TraceExporter when one is configured.
//
// The returned shutdown flushes both providers. Transcription jobs can run
// for many minutes, so call it with a generous timeout from main.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "mediascribe"
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	mp, err := newMeterProvider(res)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(mp)

	tp := newTracerProvider(res, cfg.TraceExporter)
	otel.SetTracerProvider(tp)

	shutdown = func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}
	return shutdown, nil
}

// newResource merges the service identity into the SDK's default resource
// (host, process, and SDK attributes).
func newResource(cfg ProviderConfig) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
}

// newMeterProvider builds a meter provider backed by the Prometheus bridge.
func newMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	), nil
}

// newTracerProvider builds a tracer provider, batching to exp when non-nil.
func newTracerProvider(res *resource.Resource, exp sdktrace.SpanExporter) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...)
}
