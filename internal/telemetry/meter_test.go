package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestNewMeterProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		opts       []ProviderOption
		expectNoOp bool
	}{
		{
			name:       "no config",
			expectNoOp: true,
		},
		{
			name:       "metrics disabled",
			opts:       []ProviderOption{WithMetricsConfig(&MetricsConfig{Enabled: false})},
			expectNoOp: true,
		},
		{
			name: "prometheus exporter",
			opts: []ProviderOption{
				WithMetricsConfig(&MetricsConfig{Enabled: true}),
				WithMeterRegisterer(prometheus.NewRegistry()),
			},
		},
		{
			name: "otlp exporter",
			opts: []ProviderOption{
				WithMetricsConfig(&MetricsConfig{Enabled: true, Exporter: ExporterOTLP}),
				WithEndpoint("", true),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			mp, err := NewMeterProvider(ctx, tt.opts...)
			require.NoError(t, err)
			require.NotNil(t, mp)

			if tt.expectNoOp {
				_, ok := mp.(noop.MeterProvider)
				assert.True(t, ok, "expected no-op meter provider")
				return
			}
			sdkMP, ok := mp.(*sdkmetric.MeterProvider)
			require.True(t, ok, "expected SDK meter provider")
			// Flushing to a missing collector fails
			_ = sdkMP.Shutdown(ctx)
		})
	}
}

func TestNewMeterProvider_PrometheusRegistry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := prometheus.NewRegistry()
	mp, err := NewMeterProvider(ctx,
		WithMetricsConfig(&MetricsConfig{Enabled: true, Exporter: ExporterPrometheus}),
		WithMeterRegisterer(reg),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.(*sdkmetric.MeterProvider).Shutdown(ctx) })

	metrics, err := NewSyncMetrics(mp)
	require.NoError(t, err)
	metrics.RecordObjectsSynced(ctx, "products", 12)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, family := range families {
		if family.GetName() == "search_mirror_sync_objects_total" {
			found = true
			require.Len(t, family.GetMetric(), 1)
			assert.Equal(t, 12.0, family.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "synced objects counter is exposed on the registry")
}
