package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderOption configures the tracer and meter providers. Both providers
// accept the same options and ignore those of the other signal.
type ProviderOption func(*providerSettings)

type providerSettings struct {
	serviceName    string
	serviceVersion string
	endpoint       string
	insecure       bool

	tracing      *TracingConfig
	spanExporter sdktrace.SpanExporter

	metrics    *MetricsConfig
	registerer prometheus.Registerer
}

func newProviderSettings(opts []ProviderOption) *providerSettings {
	s := &providerSettings{
		serviceName:    DefaultServiceName,
		serviceVersion: "unknown",
		endpoint:       DefaultEndpoint,
		registerer:     prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithService names the service in the exported resource
func WithService(name, version string) ProviderOption {
	return func(s *providerSettings) {
		if name != "" {
			s.serviceName = name
		}
		if version != "" {
			s.serviceVersion = version
		}
	}
}

// WithEndpoint sets the OTLP collector ("host:port"). insecure sends over
// plain HTTP.
func WithEndpoint(endpoint string, insecure bool) ProviderOption {
	return func(s *providerSettings) {
		if endpoint != "" {
			s.endpoint = endpoint
		}
		s.insecure = insecure
	}
}

// WithTracingConfig enables tracing as configured by tc
func WithTracingConfig(tc *TracingConfig) ProviderOption {
	return func(s *providerSettings) {
		s.tracing = tc
	}
}

// WithSpanExporter replaces the OTLP span exporter, typically with an
// in-memory exporter in tests.
func WithSpanExporter(exporter sdktrace.SpanExporter) ProviderOption {
	return func(s *providerSettings) {
		s.spanExporter = exporter
	}
}

// WithMetricsConfig enables metrics as configured by mc
func WithMetricsConfig(mc *MetricsConfig) ProviderOption {
	return func(s *providerSettings) {
		s.metrics = mc
	}
}

// WithMeterRegisterer sets the registry the Prometheus exporter registers
// its collector on. Defaults to prometheus.DefaultRegisterer.
func WithMeterRegisterer(reg prometheus.Registerer) ProviderOption {
	return func(s *providerSettings) {
		s.registerer = reg
	}
}

// configOptions converts the telemetry configuration into provider options
func configOptions(cfg *Config) []ProviderOption {
	return []ProviderOption{
		WithService(cfg.GetServiceName(), cfg.GetServiceVersion()),
		WithEndpoint(cfg.GetEndpoint(), cfg.Insecure),
		WithTracingConfig(cfg.Tracing),
		WithMetricsConfig(cfg.Metrics),
	}
}

// resource describes the process. resource.New avoids schema URL conflicts
// with resource.Default().
func (s *providerSettings) resource(ctx context.Context) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(s.serviceName),
			semconv.ServiceVersion(s.serviceVersion),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
