package tcconsole

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"pkt.systems/pslog"

	"pkt.systems/tcconsole/api"
	"pkt.systems/tcconsole/internal/failure"
	"pkt.systems/tcconsole/internal/lockquery"
	"pkt.systems/tcconsole/internal/sessionquery"
	"pkt.systems/tcconsole/internal/storage"
	"pkt.systems/tcconsole/internal/xid"
)

// Error sentinels matched with errors.Is.
var (
	ErrInvalidParameter = failure.ErrInvalidParameter
	ErrStoreUnavailable = failure.ErrStoreUnavailable
)

// Console answers lock and session queries over one store backend.
type Console struct {
	cfg       Config
	backend   storage.Backend
	ownsStore bool
	locks     *lockquery.Service
	sessions  *sessionquery.Service
	xid       xid.Generator
	telemetry *telemetryBundle
	logger    pslog.Logger
}

// New validates cfg, opens the configured store and wires the query
// services. Close releases everything New acquired.
func New(ctx context.Context, cfg Config) (*Console, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	tel, err := setupTelemetry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	var provider metric.MeterProvider = cfg.MeterProvider
	if provider == nil {
		provider = tel.MeterProvider()
	}
	fail := func(err error) (*Console, error) {
		if cfg.Backend == nil {
			_ = backend.Close()
		}
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	layout := cfg.KeyLayout()
	gen := xid.Generator{Address: cfg.XIDAddress}
	locks, err := lockquery.New(lockquery.Options{
		Backend:       backend,
		Layout:        layout,
		XID:           gen,
		Scan:          cfg.ScanConfig(),
		Logger:        logger,
		MeterProvider: provider,
	})
	if err != nil {
		return fail(err)
	}
	sessions, err := sessionquery.New(sessionquery.Options{
		Backend:       backend,
		Layout:        layout,
		Scan:          cfg.ScanConfig(),
		Logger:        logger,
		MeterProvider: provider,
	})
	if err != nil {
		return fail(err)
	}
	return &Console{
		cfg:       cfg,
		backend:   backend,
		ownsStore: cfg.Backend == nil,
		locks:     locks,
		sessions:  sessions,
		xid:       gen,
		telemetry: tel,
		logger:    logger,
	}, nil
}

// Config returns the validated configuration.
func (c *Console) Config() Config { return c.cfg }

// Locks returns one page of global locks.
func (c *Console) Locks(ctx context.Context, param api.GlobalLockParam) (api.PageResult[api.GlobalLockView], error) {
	return c.locks.Query(ctx, param)
}

// Sessions returns one page of global sessions.
func (c *Console) Sessions(ctx context.Context, param api.GlobalSessionParam) (api.PageResult[api.GlobalSessionView], error) {
	return c.sessions.Query(ctx, param)
}

// XID regenerates the XID of transactionID under the configured coordinator
// address.
func (c *Console) XID(transactionID int64) string {
	return c.xid.Generate(transactionID)
}

// MetricsAddr returns the bound Prometheus address, or "" when disabled.
func (c *Console) MetricsAddr() string { return c.telemetry.MetricsAddr() }

// Close releases the store (unless it was supplied via Config.Backend) and
// flushes telemetry.
func (c *Console) Close(ctx context.Context) error {
	var errs []error
	if c.ownsStore {
		if err := c.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if err := c.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	c.logger.Debug("console.closed", "owns_store", c.ownsStore, "error", err)
	return err
}
