// Package querymetrics holds the otel instruments shared by the console
// query services.
package querymetrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"pkt.systems/pslog"
)

const meterName = "pkt.systems/tcconsole/query"

// Query path labels.
const (
	PathExact       = "exact"
	PathScan        = "scan"
	PathUnsupported = "unsupported"
	PathInvalid     = "invalid"
)

// Metrics records query activity. A nil *Metrics is a valid no-op.
type Metrics struct {
	query string

	duration    metric.Int64Histogram
	batches     metric.Int64Counter
	pointReads  metric.Int64Counter
	dropped     metric.Int64Counter
	truncations metric.Int64Counter
}

// New creates the instruments for query (e.g. "locks") on provider. A nil
// provider uses the global one.
func New(provider metric.MeterProvider, query string, logger pslog.Logger) *Metrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)
	m := &Metrics{query: query}
	var err error

	m.duration, err = meter.Int64Histogram(
		"tcconsole.query.duration_ms",
		metric.WithDescription("Time spent answering a console query"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "tcconsole.query.duration_ms", err)

	m.batches, err = meter.Int64Counter(
		"tcconsole.query.scan.batches",
		metric.WithDescription("Scan round-trips issued by console queries"),
	)
	logMetricInitError(logger, "tcconsole.query.scan.batches", err)

	m.pointReads, err = meter.Int64Counter(
		"tcconsole.query.point_reads",
		metric.WithDescription("Point reads issued by console queries"),
	)
	logMetricInitError(logger, "tcconsole.query.point_reads", err)

	m.dropped, err = meter.Int64Counter(
		"tcconsole.query.records.dropped",
		metric.WithDescription("Stored records skipped because they could not be decoded"),
	)
	logMetricInitError(logger, "tcconsole.query.records.dropped", err)

	m.truncations, err = meter.Int64Counter(
		"tcconsole.query.scan.truncated",
		metric.WithDescription("Traversals stopped by the scan batch budget"),
	)
	logMetricInitError(logger, "tcconsole.query.scan.truncated", err)

	return m
}

// RecordQuery records the duration of one query.
func (m *Metrics) RecordQuery(ctx context.Context, path string, duration time.Duration, err error) {
	if m == nil || m.duration == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.duration.Record(metricContext(ctx), duration.Milliseconds(), metric.WithAttributes(
		attribute.String("tcconsole.query", m.query),
		attribute.String("tcconsole.query.path", path),
		attribute.String("tcconsole.query.result", result),
	))
}

// AddBatches counts scan round-trips.
func (m *Metrics) AddBatches(ctx context.Context, n int, truncated bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tcconsole.query", m.query))
	if m.batches != nil && n > 0 {
		m.batches.Add(metricContext(ctx), int64(n), attrs)
	}
	if m.truncations != nil && truncated {
		m.truncations.Add(metricContext(ctx), 1, attrs)
	}
}

// AddPointReads counts point reads.
func (m *Metrics) AddPointReads(ctx context.Context, n int) {
	if m == nil || m.pointReads == nil || n <= 0 {
		return
	}
	m.pointReads.Add(metricContext(ctx), int64(n), metric.WithAttributes(attribute.String("tcconsole.query", m.query)))
}

// AddDropped counts records skipped for reason.
func (m *Metrics) AddDropped(ctx context.Context, reason string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.Add(metricContext(ctx), 1, metric.WithAttributes(
		attribute.String("tcconsole.query", m.query),
		attribute.String("tcconsole.query.drop_reason", reason),
	))
}

func metricContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
