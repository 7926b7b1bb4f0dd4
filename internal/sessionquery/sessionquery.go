// Package sessionquery answers global session queries against a
// scan-capable store. Sessions are enumerated from the global namespace,
// which shares its prefix stem with the lock namespace; lock keys are
// filtered out before they count toward a page or the total.
package sessionquery

import (
	"context"
	"errors"
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
	"pkt.systems/tcconsole/internal/session"
	"pkt.systems/tcconsole/internal/storage"
	"pkt.systems/tcconsole/internal/svcfields"
)

// Options configures a Service.
type Options struct {
	Backend       storage.Backend
	Layout        storage.KeyLayout
	Scan          scan.Config
	Logger        pslog.Logger
	MeterProvider metric.MeterProvider
}

// Service is stateless; one instance may serve concurrent queries.
type Service struct {
	backend storage.Backend
	layout  storage.KeyLayout
	scanner *scan.Scanner
	logger  pslog.Logger
	metrics *querymetrics.Metrics
}

// New returns a Service over opts.Backend.
func New(opts Options) (*Service, error) {
	if opts.Backend == nil {
		return nil, errors.New("sessionquery: backend required")
	}
	logger := svcfields.WithSubsystem(opts.Logger, svcfields.SubsystemSessionQuery)
	scanCfg := opts.Scan
	if scanCfg.Logger == nil {
		scanCfg.Logger = opts.Logger
	}
	return &Service{
		backend: opts.Backend,
		layout:  opts.Layout.WithDefaults(),
		scanner: scan.New(opts.Backend, scanCfg),
		logger:  logger,
		metrics: querymetrics.New(opts.MeterProvider, "sessions", logger),
	}, nil
}

// query carries the state of one call.
type query struct {
	param  api.GlobalSessionParam
	logger pslog.Logger
	// records caches decoded records by key; nil marks a dropped key.
	records map[string]*model.GlobalTransactionRecord
	dropped int
}

// Query returns one page of global sessions matching param.
func (s *Service) Query(ctx context.Context, param api.GlobalSessionParam) (result api.PageResult[api.GlobalSessionView], err error) {
	begin := time.Now()
	path := querymetrics.PathInvalid
	defer func() { s.metrics.RecordQuery(ctx, path, time.Since(begin), err) }()

	if err := api.CheckPage(param.PageNum, param.PageSize); err != nil {
		return api.PageResult[api.GlobalSessionView]{}, err
	}
	if param.Status != nil {
		if _, ok := model.GlobalStatusOf(*param.Status); !ok {
			return api.PageResult[api.GlobalSessionView]{}, failure.InvalidParameter("unknown global status %d", *param.Status)
		}
	}

	ctx, cid := correlation.Ensure(ctx)
	q := &query{
		param:   param,
		logger:  s.logger.With(svcfields.CorrelationKey, cid),
		records: make(map[string]*model.GlobalTransactionRecord),
	}
	xidText := strings.TrimSpace(param.XID)

	switch {
	case xidText != "":
		path = querymetrics.PathExact
		return s.exact(ctx, q, xidText)
	case unsupported(param):
		path = querymetrics.PathUnsupported
		q.logger.Debug("sessionquery.unsupported_filter",
			"application_id", param.ApplicationID,
			"transaction_name", param.TransactionName,
			"time_start", param.TimeStart,
			"time_end", param.TimeEnd,
		)
		return api.Success[api.GlobalSessionView](), nil
	default:
		path = querymetrics.PathScan
		return s.enumerate(ctx, q)
	}
}

func unsupported(param api.GlobalSessionParam) bool {
	return strings.TrimSpace(param.ApplicationID) != "" ||
		strings.TrimSpace(param.TransactionName) != "" ||
		param.TimeStart != 0 ||
		param.TimeEnd != 0
}

func (s *Service) exact(ctx context.Context, q *query, xid string) (api.PageResult[api.GlobalSessionView], error) {
	key := s.layout.GlobalKey(xid)
	var data []api.GlobalSessionView
	ok, err := s.matches(ctx, q, key)
	if err != nil {
		return api.PageResult[api.GlobalSessionView]{}, err
	}
	if ok {
		view, found, err := s.view(ctx, q, key)
		if err != nil {
			return api.PageResult[api.GlobalSessionView]{}, err
		}
		if found {
			data = append(data, view)
		}
	}
	q.logger.Debug("sessionquery.exact.complete", "key", key, "found", len(data) == 1)
	return api.SuccessPage(data, len(data), q.param.PageNum, q.param.PageSize), nil
}

func (s *Service) enumerate(ctx context.Context, q *query) (api.PageResult[api.GlobalSessionView], error) {
	match := s.layout.GlobalMatch()
	from := scan.Position{}
	offset := api.Offset(q.param.PageNum, q.param.PageSize)
	if strings.TrimSpace(q.param.Cursor) != "" {
		pos, err := scan.ParsePosition(q.param.Cursor)
		if err != nil {
			return api.PageResult[api.GlobalSessionView]{}, err
		}
		from = pos
		offset = 0
	}
	keep := func(key string) (bool, error) { return s.matches(ctx, q, key) }

	keys, walk, err := s.scanner.Window(ctx, match, from, offset, q.param.PageSize, keep)
	s.metrics.AddBatches(ctx, walk.Batches, walk.Truncated)
	if err != nil {
		q.logger.Warn("sessionquery.scan.error", "match", match, "batches", walk.Batches, "error", err)
		return api.PageResult[api.GlobalSessionView]{}, err
	}

	data := make([]api.GlobalSessionView, 0, len(keys))
	for _, key := range keys {
		view, ok, err := s.view(ctx, q, key)
		if err != nil {
			return api.PageResult[api.GlobalSessionView]{}, err
		}
		if ok {
			data = append(data, view)
		}
	}

	total, totalWalk, err := s.scanner.CountUnique(ctx, match, keep)
	s.metrics.AddBatches(ctx, totalWalk.Batches, totalWalk.Truncated)
	if err != nil {
		q.logger.Warn("sessionquery.total.error", "match", match, "batches", totalWalk.Batches, "error", err)
		return api.PageResult[api.GlobalSessionView]{}, err
	}

	result := api.SuccessPage(data, total, q.param.PageNum, q.param.PageSize)
	if !walk.Wrapped {
		result.NextCursor = walk.Resume.String()
	}
	q.logger.Debug("sessionquery.page.complete",
		"page_num", q.param.PageNum,
		"page_size", q.param.PageSize,
		"items", len(data),
		"dropped", q.dropped,
		"total", total,
		"with_branch", q.param.WithBranch,
		"page_batches", walk.Batches,
		"total_batches", totalWalk.Batches,
		"truncated", walk.Truncated || totalWalk.Truncated,
		"next_cursor", result.NextCursor,
	)
	return result, nil
}

// matches reports whether key is a global session satisfying the status
// filter. Without a filter no record is read.
func (s *Service) matches(ctx context.Context, q *query, key string) (bool, error) {
	if s.layout.IsLockKey(key) {
		return false, nil
	}
	if q.param.Status == nil {
		return true, nil
	}
	rec, err := s.record(ctx, q, key)
	if err != nil || rec == nil {
		return false, err
	}
	return rec.Status == *q.param.Status, nil
}

// record reads and decodes the global record at key once per query. A nil
// record means the key is gone or was dropped.
func (s *Service) record(ctx context.Context, q *query, key string) (*model.GlobalTransactionRecord, error) {
	if rec, ok := q.records[key]; ok {
		return rec, nil
	}
	s.metrics.AddPointReads(ctx, 1)
	fields, err := storage.ReadHash(ctx, s.backend, key)
	if err != nil {
		if errors.Is(err, storage.ErrWrongType) {
			s.drop(ctx, q, key, "wrong_type", err)
			q.records[key] = nil
			return nil, nil
		}
		return nil, failure.StoreUnavailable("hgetall", err)
	}
	rec, err := model.DecodeGlobalTransaction(fields)
	if err != nil {
		s.drop(ctx, q, key, "decode", err)
		rec = nil
	}
	q.records[key] = rec
	return rec, nil
}

// view converts the session at key, loading its branches when asked.
func (s *Service) view(ctx context.Context, q *query, key string) (api.GlobalSessionView, bool, error) {
	rec, err := s.record(ctx, q, key)
	if err != nil || rec == nil {
		return api.GlobalSessionView{}, false, err
	}
	sess, err := convert.GlobalSession(rec)
	if err != nil {
		s.drop(ctx, q, key, "convert", err)
		return api.GlobalSessionView{}, false, nil
	}
	if q.param.WithBranch {
		if err := s.loadBranches(ctx, q, sess); err != nil {
			return api.GlobalSessionView{}, false, err
		}
	}
	return convert.GlobalSessionView(sess), true, nil
}

func (s *Service) loadBranches(ctx context.Context, q *query, sess *session.GlobalSession) error {
	listKey := s.layout.XIDBranchesKey(sess.XID)
	s.metrics.AddPointReads(ctx, 1)
	branchKeys, err := storage.ReadList(ctx, s.backend, listKey)
	if err != nil {
		if errors.Is(err, storage.ErrWrongType) {
			s.drop(ctx, q, listKey, "wrong_type", err)
			return nil
		}
		return failure.StoreUnavailable("lrange", err)
	}
	for _, key := range branchKeys {
		s.metrics.AddPointReads(ctx, 1)
		fields, err := storage.ReadHash(ctx, s.backend, key)
		if err != nil {
			if errors.Is(err, storage.ErrWrongType) {
				s.drop(ctx, q, key, "wrong_type", err)
				continue
			}
			return failure.StoreUnavailable("hgetall", err)
		}
		rec, err := model.DecodeBranchTransaction(fields)
		if err != nil {
			s.drop(ctx, q, key, "decode", err)
			continue
		}
		branch, err := convert.BranchSession(rec)
		if err != nil {
			s.drop(ctx, q, key, "convert", err)
			continue
		}
		sess.Add(branch)
	}
	return nil
}

func (s *Service) drop(ctx context.Context, q *query, key, reason string, err error) {
	q.dropped++
	s.metrics.AddDropped(ctx, reason)
	q.logger.Debug("sessionquery.decode.dropped", "key", key, "reason", reason, "error", err)
}
