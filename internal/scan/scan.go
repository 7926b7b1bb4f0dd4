// Package scan drives cursor-based enumeration of a storage.Backend keyspace.
//
// Traversals are weakly consistent: a key may be returned in more than one
// batch, and keys written or removed while a traversal is running may or may
// not be observed. Callers deduplicate with KeySet.
package scan

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"pkt.systems/pslog"

	"pkt.systems/tcconsole/internal/failure"
	"pkt.systems/tcconsole/internal/storage"
	"pkt.systems/tcconsole/internal/svcfields"
)

const (
	// DefaultBatchSize is the count hint passed with every scan batch.
	DefaultBatchSize = 100
	// DefaultMaxBatches bounds one traversal.
	DefaultMaxBatches = 100000
)

// Config tunes a Scanner.
type Config struct {
	BatchSize  int
	MaxBatches int
	Logger     pslog.Logger
}

// Scanner performs scan round-trips, one connection per batch.
type Scanner struct {
	backend    storage.Backend
	batchSize  int
	maxBatches int
	logger     pslog.Logger
}

// New returns a Scanner over backend. Zero config values take defaults.
func New(backend storage.Backend, cfg Config) *Scanner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = DefaultMaxBatches
	}
	return &Scanner{
		backend:    backend,
		batchSize:  cfg.BatchSize,
		maxBatches: cfg.MaxBatches,
		logger:     svcfields.WithSubsystem(cfg.Logger, svcfields.SubsystemScan),
	}
}

// Batch is one scan round-trip.
type Batch struct {
	Keys   []string
	Cursor string
}

// Wrapped reports whether the traversal returned to its origin.
func (b Batch) Wrapped() bool {
	return b.Cursor == storage.CursorStart || b.Cursor == ""
}

// Next fetches the batch at cursor. An empty cursor starts a traversal.
func (s *Scanner) Next(ctx context.Context, match, cursor string) (Batch, error) {
	if cursor == "" {
		cursor = storage.CursorStart
	}
	conn, err := s.backend.Acquire(ctx)
	if err != nil {
		return Batch{}, failure.StoreUnavailable("acquire", err)
	}
	defer conn.Close()
	res, err := conn.Scan(ctx, cursor, match, s.batchSize)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			return Batch{}, failure.InvalidParameter("invalid cursor %q", cursor)
		}
		return Batch{}, failure.StoreUnavailable("scan", err)
	}
	return Batch{Keys: res.Keys, Cursor: res.Cursor}, nil
}

// Position identifies where a traversal resumes: the store cursor of a batch
// and how many of that batch's keys were already consumed.
type Position struct {
	Cursor string
	Skip   int
}

const skipSeparator = "~"

// IsStart reports whether p denotes the beginning of a traversal.
func (p Position) IsStart() bool {
	return (p.Cursor == "" || p.Cursor == storage.CursorStart) && p.Skip == 0
}

// String encodes p as an opaque token.
func (p Position) String() string {
	if p.Skip == 0 {
		return p.Cursor
	}
	cursor := p.Cursor
	if cursor == "" {
		cursor = storage.CursorStart
	}
	return cursor + skipSeparator + strconv.Itoa(p.Skip)
}

// ParsePosition decodes a token produced by Position.String.
func ParsePosition(token string) (Position, error) {
	token = strings.TrimSpace(token)
	idx := strings.LastIndex(token, skipSeparator)
	if idx < 0 {
		return Position{Cursor: token}, nil
	}
	skip, err := strconv.Atoi(token[idx+1:])
	if err != nil || skip <= 0 || idx == 0 {
		return Position{}, failure.InvalidParameter("invalid cursor %q", token)
	}
	return Position{Cursor: token[:idx], Skip: skip}, nil
}

// WalkResult describes how a traversal ended.
type WalkResult struct {
	// Batches is the number of scan round-trips made.
	Batches int
	// Wrapped is set when the store reported the end of the keyspace.
	Wrapped bool
	// Truncated is set when the batch budget ran out first.
	Truncated bool
	// Resume is where a follow-up traversal continues. It is the zero
	// Position when Wrapped.
	Resume Position
}

// Walk visits keys from position from until visit returns false, the
// traversal wraps, or the batch budget is exhausted. At least one batch is
// always fetched.
func (s *Scanner) Walk(ctx context.Context, match string, from Position, visit func(key string) bool) (WalkResult, error) {
	var result WalkResult
	cursor := from.Cursor
	if cursor == "" {
		cursor = storage.CursorStart
	}
	skip := from.Skip
	for result.Batches < s.maxBatches {
		batch, err := s.Next(ctx, match, cursor)
		if err != nil {
			return result, err
		}
		result.Batches++
		start := min(skip, len(batch.Keys))
		skip = 0
		for i := start; i < len(batch.Keys); i++ {
			if visit(batch.Keys[i]) {
				continue
			}
			if i < len(batch.Keys)-1 {
				result.Resume = Position{Cursor: cursor, Skip: i + 1}
				return result, nil
			}
			if batch.Wrapped() {
				result.Wrapped = true
				return result, nil
			}
			result.Resume = Position{Cursor: batch.Cursor}
			return result, nil
		}
		if batch.Wrapped() {
			result.Wrapped = true
			return result, nil
		}
		cursor = batch.Cursor
	}
	result.Truncated = true
	result.Resume = Position{Cursor: cursor}
	s.logger.Warn("scan.walk.truncated",
		"match", match,
		"batches", result.Batches,
		"cursor", cursor,
	)
	return result, nil
}

// CountUnique traverses the whole keyspace matching match and counts the
// distinct keys for which keep reports true. A nil keep counts every key.
// keep is called at most once per distinct key; an error from it aborts the
// traversal.
func (s *Scanner) CountUnique(ctx context.Context, match string, keep func(key string) (bool, error)) (int, WalkResult, error) {
	seen := NewKeySet()
	total := 0
	var keepErr error
	res, err := s.Walk(ctx, match, Position{}, func(key string) bool {
		if !seen.Add(key) {
			return true
		}
		if keep == nil {
			total++
			return true
		}
		ok, err := keep(key)
		if err != nil {
			keepErr = err
			return false
		}
		if ok {
			total++
		}
		return true
	})
	if err != nil {
		return 0, res, err
	}
	if keepErr != nil {
		return 0, res, keepErr
	}
	return total, res, nil
}

// Window walks from position from and returns the distinct keys with
// indexes [offset, offset+limit) among those accepted by keep, in first-seen
// order. A nil keep accepts every key. The walk stops as soon as the window
// is full, so WalkResult.Resume points just past its last key.
func (s *Scanner) Window(ctx context.Context, match string, from Position, offset, limit int, keep func(key string) (bool, error)) ([]string, WalkResult, error) {
	if limit <= 0 {
		return nil, WalkResult{}, nil
	}
	if offset < 0 {
		offset = 0
	}
	seen := NewKeySet()
	// limit is caller-supplied; size the buffer by the batch instead.
	window := make([]string, 0, min(limit, s.batchSize))
	accepted := 0
	var keepErr error
	res, err := s.Walk(ctx, match, from, func(key string) bool {
		if !seen.Add(key) {
			return true
		}
		if keep != nil {
			ok, err := keep(key)
			if err != nil {
				keepErr = err
				return false
			}
			if !ok {
				return true
			}
		}
		accepted++
		if accepted <= offset {
			return true
		}
		window = append(window, key)
		return len(window) < limit
	})
	if err != nil {
		return nil, res, err
	}
	if keepErr != nil {
		return nil, res, keepErr
	}
	return window, res, nil
}

// KeySet is an insertion-ordered set of keys.
type KeySet struct {
	index map[string]struct{}
	keys  []string
}

// NewKeySet returns an empty set.
func NewKeySet() *KeySet {
	return &KeySet{index: make(map[string]struct{})}
}

// Add inserts key and reports whether it was new.
func (s *KeySet) Add(key string) bool {
	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = struct{}{}
	s.keys = append(s.keys, key)
	return true
}

// Len returns the number of distinct keys.
func (s *KeySet) Len() int { return len(s.keys) }

// Keys returns keys in first-seen order.
func (s *KeySet) Keys() []string { return s.keys }
