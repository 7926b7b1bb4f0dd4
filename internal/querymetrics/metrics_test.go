package querymetrics

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sum(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	s, ok := data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected int64 sum, got %T", data)
	}
	var total int64
	for _, dp := range s.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsRecorded(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m := New(provider, "locks", nil)
	ctx := context.Background()
	m.AddBatches(ctx, 3, false)
	m.AddBatches(ctx, 2, true)
	m.AddPointReads(ctx, 4)
	m.AddDropped(ctx, "decode")
	m.RecordQuery(ctx, PathScan, 5*time.Millisecond, nil)
	m.RecordQuery(ctx, PathExact, time.Millisecond, errors.New("boom"))

	got := collect(t, reader)
	if n := sum(t, got["tcconsole.query.scan.batches"]); n != 5 {
		t.Fatalf("batches = %d", n)
	}
	if n := sum(t, got["tcconsole.query.scan.truncated"]); n != 1 {
		t.Fatalf("truncations = %d", n)
	}
	if n := sum(t, got["tcconsole.query.point_reads"]); n != 4 {
		t.Fatalf("point reads = %d", n)
	}
	if n := sum(t, got["tcconsole.query.records.dropped"]); n != 1 {
		t.Fatalf("dropped = %d", n)
	}
	hist, ok := got["tcconsole.query.duration_ms"].(metricdata.Histogram[int64])
	if !ok {
		t.Fatalf("expected histogram, got %T", got["tcconsole.query.duration_ms"])
	}
	if len(hist.DataPoints) != 2 {
		t.Fatalf("expected one series per path, got %d", len(hist.DataPoints))
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	ctx := context.Background()
	m.AddBatches(ctx, 1, true)
	m.AddPointReads(ctx, 1)
	m.AddDropped(ctx, "decode")
	m.RecordQuery(ctx, PathScan, time.Second, nil)
}
