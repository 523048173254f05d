package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewTracerProvider(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		tp, err := NewTracerProvider(context.Background(), WithTracingConfig(&TracingConfig{}))
		require.NoError(t, err)
		assert.IsType(t, noop.TracerProvider{}, tp)
	})

	t.Run("enabled records spans", func(t *testing.T) {
		t.Parallel()

		exporter := tracetest.NewInMemoryExporter()
		tp, err := NewTracerProvider(context.Background(),
			WithService("search-mirror-test", "0.0.1"),
			WithTracingConfig(&TracingConfig{Enabled: true, Sampling: 1}),
			WithSpanExporter(exporter),
		)
		require.NoError(t, err)
		sdkTP, ok := tp.(*sdktrace.TracerProvider)
		require.True(t, ok)

		_, span := tp.Tracer("test").Start(context.Background(), "mirror.Search")
		span.End()
		require.NoError(t, sdkTP.ForceFlush(context.Background()))
		require.NoError(t, sdkTP.Shutdown(context.Background()))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "mirror.Search", spans[0].Name)
	})

	t.Run("otlp exporter", func(t *testing.T) {
		t.Parallel()

		tp, err := NewTracerProvider(context.Background(),
			WithTracingConfig(&TracingConfig{Enabled: true}),
			WithEndpoint("localhost:4318", true),
		)
		require.NoError(t, err)
		assert.IsType(t, &sdktrace.TracerProvider{}, tp)
		_ = tp.(*sdktrace.TracerProvider).Shutdown(context.Background())
	})
}
