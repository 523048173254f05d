// Package telemetry provides OpenTelemetry instrumentation for the search mirror.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// MirrorMetricsMeterName is the name used for the mirror metrics meter
	MirrorMetricsMeterName = "github.com/stacklok/search-mirror/mirror"

	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/stacklok/search-mirror/sync"
)

// RequestMetrics holds the OpenTelemetry instruments for routed requests
type RequestMetrics struct {
	requestsTotal metric.Int64Counter
	localObjects  metric.Int64Gauge
}

// NewRequestMetrics creates a new RequestMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewRequestMetrics(provider metric.MeterProvider) (*RequestMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(MirrorMetricsMeterName)

	requestsTotal, err := meter.Int64Counter(
		"search_mirror_requests_total",
		metric.WithDescription("Number of routed requests by strategy and answering origin"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	localObjects, err := meter.Int64Gauge(
		"search_mirror_local_objects",
		metric.WithDescription("Number of objects held by each local index"),
		metric.WithUnit("{object}"),
	)
	if err != nil {
		return nil, err
	}

	return &RequestMetrics{
		requestsTotal: requestsTotal,
		localObjects:  localObjects,
	}, nil
}

// RecordRequest counts one routed request. origin is empty for a failed
// request or a request on an index that is not mirrored.
func (m *RequestMetrics) RecordRequest(ctx context.Context, indexName, operation, strategy, origin string, success bool) {
	if m == nil || m.requestsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("index", indexName),
		attribute.String("operation", operation),
		attribute.String("strategy", strategy),
		attribute.String("origin", origin),
		attribute.Bool("success", success),
	}

	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLocalObjects records the current number of objects in a local index
func (m *RequestMetrics) RecordLocalObjects(ctx context.Context, indexName string, count int64) {
	if m == nil || m.localObjects == nil {
		return
	}

	m.localObjects.Record(ctx, count, metric.WithAttributes(attribute.String("index", indexName)))
}

// SyncMetrics holds the OpenTelemetry instruments for sync operation metrics
type SyncMetrics struct {
	syncDuration  metric.Float64Histogram
	objectsSynced metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"search_mirror_sync_duration_seconds",
		metric.WithDescription("Duration of sync operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	objectsSynced, err := meter.Int64Counter(
		"search_mirror_sync_objects_total",
		metric.WithDescription("Number of objects fetched by successful syncs"),
		metric.WithUnit("{object}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:  syncDuration,
		objectsSynced: objectsSynced,
	}, nil
}

// RecordSyncDuration records the duration of a sync operation for an index
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, indexName string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("index", indexName),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordObjectsSynced adds the number of objects a sync fetched for an index
func (m *SyncMetrics) RecordObjectsSynced(ctx context.Context, indexName string, count int) {
	if m == nil || m.objectsSynced == nil || count <= 0 {
		return
	}

	m.objectsSynced.Add(ctx, int64(count), metric.WithAttributes(attribute.String("index", indexName)))
}
