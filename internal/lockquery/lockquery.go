// Package lockquery answers global lock queries against a scan-capable store.
//
// Queries either resolve to one key (xid or transaction id supplied) or
// enumerate the lock namespace with the keyspace scanner. Enumeration is
// weakly consistent and the total is recomputed with a full traversal on
// every call, so its cost grows with the number of stored locks.
package lockquery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"pkt.systems/pslog"

	"pkt.systems/tcconsole/api"
	"pkt.systems/tcconsole/internal/convert"
	"pkt.systems/tcconsole/internal/correlation"
	"pkt.systems/tcconsole/internal/failure"
	"pkt.systems/tcconsole/internal/model"
	"pkt.systems/tcconsole/internal/querymetrics"
	"pkt.systems/tcconsole/internal/scan"
	"pkt.systems/tcconsole/internal/storage"
	"pkt.systems/tcconsole/internal/svcfields"
	"pkt.systems/tcconsole/internal/xid"
)

// Options configures a Service.
type Options struct {
	Backend       storage.Backend
	Layout        storage.KeyLayout
	XID           xid.Generator
	Scan          scan.Config
	Logger        pslog.Logger
	MeterProvider metric.MeterProvider
}

// Service is stateless; one instance may serve concurrent queries.
type Service struct {
	backend storage.Backend
	layout  storage.KeyLayout
	xid     xid.Generator
	scanner *scan.Scanner
	logger  pslog.Logger
	metrics *querymetrics.Metrics
}

// New validates opts and returns a Service.
func New(opts Options) (*Service, error) {
	if opts.Backend == nil {
		return nil, errors.New("lockquery: backend required")
	}
	if err := opts.XID.Validate(); err != nil {
		return nil, fmt.Errorf("lockquery: %w", err)
	}
	logger := svcfields.WithSubsystem(opts.Logger, svcfields.SubsystemLockQuery)
	scanCfg := opts.Scan
	if scanCfg.Logger == nil {
		scanCfg.Logger = opts.Logger
	}
	return &Service{
		backend: opts.Backend,
		layout:  opts.Layout.WithDefaults(),
		xid:     opts.XID,
		scanner: scan.New(opts.Backend, scanCfg),
		logger:  logger,
		metrics: querymetrics.New(opts.MeterProvider, "locks", logger),
	}, nil
}

// Query returns one page of global locks matching param.
func (s *Service) Query(ctx context.Context, param api.GlobalLockParam) (result api.PageResult[api.GlobalLockView], err error) {
	begin := time.Now()
	path := querymetrics.PathInvalid
	defer func() { s.metrics.RecordQuery(ctx, path, time.Since(begin), err) }()

	if err := api.CheckPage(param.PageNum, param.PageSize); err != nil {
		return api.PageResult[api.GlobalLockView]{}, err
	}
	txText := strings.TrimSpace(param.TransactionID)
	var txID int64
	if txText != "" {
		id, perr := xid.ParseTransactionID(txText)
		if perr != nil {
			return api.PageResult[api.GlobalLockView]{}, failure.InvalidParameter("%v", perr)
		}
		txID = id
	}

	ctx, cid := correlation.Ensure(ctx)
	logger := s.logger.With(svcfields.CorrelationKey, cid)
	xidText := strings.TrimSpace(param.XID)

	switch {
	case xidText != "" || txText != "":
		path = querymetrics.PathExact
		key, ok := s.resolve(xidText, txText, txID)
		if !ok {
			logger.Debug("lockquery.exact.mismatch", "xid", xidText, "transaction_id", txText)
			return api.SuccessPage[api.GlobalLockView](nil, 0, param.PageNum, param.PageSize), nil
		}
		return s.exact(ctx, logger, key, param)
	case strings.TrimSpace(param.TableName) != "" || strings.TrimSpace(param.BranchID) != "":
		path = querymetrics.PathUnsupported
		logger.Debug("lockquery.unsupported_filter",
			"table_name", param.TableName,
			"branch_id", param.BranchID,
		)
		return api.Success[api.GlobalLockView](), nil
	default:
		path = querymetrics.PathScan
		return s.enumerate(ctx, logger, param)
	}
}

// resolve maps the identifier filters onto one lock key. A supplied xid must
// equal the one regenerated from the transaction id.
func (s *Service) resolve(xidText, txText string, txID int64) (string, bool) {
	if txText == "" {
		return s.layout.LockKey(xidText), true
	}
	generated := s.xid.Generate(txID)
	if xidText != "" && xidText != generated {
		return "", false
	}
	return s.layout.LockKey(generated), true
}

func (s *Service) exact(ctx context.Context, logger pslog.Logger, key string, param api.GlobalLockParam) (api.PageResult[api.GlobalLockView], error) {
	view, ok, err := s.load(ctx, logger, key)
	if err != nil {
		return api.PageResult[api.GlobalLockView]{}, err
	}
	var data []api.GlobalLockView
	if ok {
		data = append(data, view)
	}
	logger.Debug("lockquery.exact.complete", "key", key, "found", ok)
	return api.SuccessPage(data, len(data), param.PageNum, param.PageSize), nil
}

func (s *Service) enumerate(ctx context.Context, logger pslog.Logger, param api.GlobalLockParam) (api.PageResult[api.GlobalLockView], error) {
	match := s.layout.LockMatch()
	from := scan.Position{}
	offset := api.Offset(param.PageNum, param.PageSize)
	if strings.TrimSpace(param.Cursor) != "" {
		pos, err := scan.ParsePosition(param.Cursor)
		if err != nil {
			return api.PageResult[api.GlobalLockView]{}, err
		}
		from = pos
		offset = 0
	}

	keys, walk, err := s.scanner.Window(ctx, match, from, offset, param.PageSize, nil)
	s.metrics.AddBatches(ctx, walk.Batches, walk.Truncated)
	if err != nil {
		logger.Warn("lockquery.scan.error", "match", match, "batches", walk.Batches, "error", err)
		return api.PageResult[api.GlobalLockView]{}, err
	}

	data := make([]api.GlobalLockView, 0, len(keys))
	dropped := 0
	for _, key := range keys {
		view, ok, err := s.load(ctx, logger, key)
		if err != nil {
			return api.PageResult[api.GlobalLockView]{}, err
		}
		if !ok {
			dropped++
			continue
		}
		data = append(data, view)
	}

	total, totalWalk, err := s.scanner.CountUnique(ctx, match, nil)
	s.metrics.AddBatches(ctx, totalWalk.Batches, totalWalk.Truncated)
	if err != nil {
		logger.Warn("lockquery.total.error", "match", match, "batches", totalWalk.Batches, "error", err)
		return api.PageResult[api.GlobalLockView]{}, err
	}

	result := api.SuccessPage(data, total, param.PageNum, param.PageSize)
	if !walk.Wrapped {
		result.NextCursor = walk.Resume.String()
	}
	logger.Debug("lockquery.page.complete",
		"page_num", param.PageNum,
		"page_size", param.PageSize,
		"items", len(data),
		"dropped", dropped,
		"total", total,
		"page_batches", walk.Batches,
		"total_batches", totalWalk.Batches,
		"truncated", walk.Truncated || totalWalk.Truncated,
		"next_cursor", result.NextCursor,
	)
	return result, nil
}

// load reads and decodes the lock at key. ok is false when the key is gone
// or its record could not be decoded.
func (s *Service) load(ctx context.Context, logger pslog.Logger, key string) (api.GlobalLockView, bool, error) {
	s.metrics.AddPointReads(ctx, 1)
	fields, err := storage.ReadHash(ctx, s.backend, key)
	if err != nil {
		if errors.Is(err, storage.ErrWrongType) {
			s.drop(ctx, logger, key, "wrong_type", err)
			return api.GlobalLockView{}, false, nil
		}
		return api.GlobalLockView{}, false, failure.StoreUnavailable("hgetall", err)
	}
	rec, err := model.DecodeGlobalLock(fields)
	if err != nil {
		s.drop(ctx, logger, key, "decode", err)
		return api.GlobalLockView{}, false, nil
	}
	if rec == nil {
		return api.GlobalLockView{}, false, nil
	}
	return convert.GlobalLockView(rec), true, nil
}

func (s *Service) drop(ctx context.Context, logger pslog.Logger, key, reason string, err error) {
	s.metrics.AddDropped(ctx, reason)
	logger.Debug("lockquery.decode.dropped", "key", key, "reason", reason, "error", err)
}
