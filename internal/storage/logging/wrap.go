package logging

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"pkt.systems/pslog"

	"pkt.systems/tcconsole/internal/correlation"
	"pkt.systems/tcconsole/internal/storage"
	"pkt.systems/tcconsole/internal/svcfields"
)

const tracerName = "pkt.systems/tcconsole/storage"

type backend struct {
	inner  storage.Backend
	logger pslog.Logger
	tracer trace.Tracer
	sys    string
}

// Wrap decorates inner with spans and trace/debug logging around every
// round-trip.
func Wrap(inner storage.Backend, logger pslog.Logger, sys string) storage.Backend {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &backend{
		inner:  inner,
		logger: svcfields.WithSubsystem(logger, svcfields.SubsystemStorage),
		tracer: otel.Tracer(tracerName),
		sys:    sys,
	}
}

// Unwrap returns the decorated backend.
func Unwrap(b storage.Backend) storage.Backend {
	if w, ok := b.(*backend); ok {
		return w.inner
	}
	return b
}

func (b *backend) start(ctx context.Context, op string) (context.Context, trace.Span, pslog.Logger, func(string, error)) {
	begin := time.Now()
	ctx, span := b.tracer.Start(ctx, "tcconsole.storage."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("tcconsole.storage.operation", op),
		attribute.String("tcconsole.sys", b.sys),
	)
	if id := correlation.ID(ctx); id != "" {
		span.SetAttributes(attribute.String("tcconsole.correlation_id", id))
	}
	logger := svcfields.WithCorrelation(ctx, b.logger)
	return ctx, span, logger, func(result string, err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "storage_error")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.SetAttributes(
			attribute.String("tcconsole.storage.result", result),
			attribute.Int64("tcconsole.storage.duration_ms", time.Since(begin).Milliseconds()),
		)
	}
}

func (b *backend) Acquire(ctx context.Context) (storage.Conn, error) {
	ctx, span, logger, finish := b.start(ctx, "acquire")
	defer span.End()
	begin := time.Now()
	logger.Trace("storage.acquire.begin")
	conn, err := b.inner.Acquire(ctx)
	if err != nil {
		finish("error", err)
		logger.Debug("storage.acquire.error", "error", err, "elapsed", time.Since(begin))
		return nil, err
	}
	finish("ok", nil)
	return &loggedConn{inner: conn, backend: b, acquired: begin}, nil
}

func (b *backend) Close() error {
	err := b.inner.Close()
	if err != nil {
		b.logger.Warn("storage.close.error", "error", err)
	}
	return err
}

type loggedConn struct {
	inner    storage.Conn
	backend  *backend
	acquired time.Time
}

func (c *loggedConn) Scan(ctx context.Context, cursor, match string, count int) (storage.ScanResult, error) {
	ctx, span, logger, finish := c.backend.start(ctx, "scan")
	defer span.End()
	span.SetAttributes(
		attribute.String("tcconsole.storage.match", match),
		attribute.Int("tcconsole.storage.count", count),
	)
	begin := time.Now()
	logger.Trace("storage.scan.begin", "cursor", cursor, "match", match, "count", count)
	res, err := c.inner.Scan(ctx, cursor, match, count)
	if err != nil {
		finish("error", err)
		logger.Debug("storage.scan.error", "cursor", cursor, "match", match, "error", err, "elapsed", time.Since(begin))
		return res, err
	}
	span.SetAttributes(
		attribute.Int("tcconsole.storage.keys", len(res.Keys)),
		attribute.Bool("tcconsole.storage.wrapped", res.Wrapped()),
	)
	finish("ok", nil)
	logger.Debug("storage.scan.success",
		"cursor", cursor,
		"next_cursor", res.Cursor,
		"match", match,
		"keys", len(res.Keys),
		"elapsed", time.Since(begin),
	)
	return res, nil
}

func (c *loggedConn) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, span, logger, finish := c.backend.start(ctx, "hgetall")
	defer span.End()
	begin := time.Now()
	logger.Trace("storage.hgetall.begin", "key", key)
	fields, err := c.inner.HashGetAll(ctx, key)
	if err != nil {
		finish("error", err)
		logger.Debug("storage.hgetall.error", "key", key, "error", err, "elapsed", time.Since(begin))
		return nil, err
	}
	span.SetAttributes(attribute.Int("tcconsole.storage.fields", len(fields)))
	finish("ok", nil)
	logger.Debug("storage.hgetall.success", "key", key, "fields", len(fields), "elapsed", time.Since(begin))
	return fields, nil
}

func (c *loggedConn) ListRange(ctx context.Context, key string) ([]string, error) {
	ctx, span, logger, finish := c.backend.start(ctx, "lrange")
	defer span.End()
	begin := time.Now()
	logger.Trace("storage.lrange.begin", "key", key)
	values, err := c.inner.ListRange(ctx, key)
	if err != nil {
		finish("error", err)
		logger.Debug("storage.lrange.error", "key", key, "error", err, "elapsed", time.Since(begin))
		return nil, err
	}
	span.SetAttributes(attribute.Int("tcconsole.storage.values", len(values)))
	finish("ok", nil)
	logger.Debug("storage.lrange.success", "key", key, "values", len(values), "elapsed", time.Since(begin))
	return values, nil
}

func (c *loggedConn) Close() error {
	err := c.inner.Close()
	logger := c.backend.logger
	if err != nil {
		logger.Warn("storage.release.error", "error", err, "held", time.Since(c.acquired))
		return err
	}
	logger.Trace("storage.release", "held", time.Since(c.acquired))
	return nil
}
