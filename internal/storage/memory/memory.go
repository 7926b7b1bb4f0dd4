package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"pkt.systems/tcconsole/internal/storage"
)

// Store implements storage.Backend in-memory; intended for tests, local dev
// and fixture-driven demos. Scan cursors are positions in the sorted
// keyspace, so keys inserted or removed between batches can be skipped or
// returned twice, the same weak guarantee a Redis SCAN gives.
type Store struct {
	mu     sync.RWMutex
	hashes map[string]map[string]string
	lists  map[string][]string

	sortedKeys []string
	keysDirty  bool
	closed     bool

	acquired atomic.Int64
	released atomic.Int64
}

// Stats reports connection accounting for leak checks in tests.
type Stats struct {
	Acquired int64
	Released int64
}

// New returns a ready to use in-memory store.
func New() *Store {
	return &Store{
		hashes:    make(map[string]map[string]string),
		lists:     make(map[string][]string),
		keysDirty: true,
	}
}

// Close marks the store closed; subsequent Acquire calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Acquire returns a connection handle for one round-trip.
func (s *Store) Acquire(ctx context.Context) (storage.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, storage.ErrClosed
	}
	s.acquired.Add(1)
	return &conn{store: s}, nil
}

// Stats returns the number of acquired and released connections.
func (s *Store) Stats() Stats {
	return Stats{Acquired: s.acquired.Load(), Released: s.released.Load()}
}

// PutHash merges fields into the hash stored at key, creating it when
// missing. A list at key is replaced.
func (s *Store) PutHash(ctx context.Context, key string, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, isList := s.lists[key]; isList {
		delete(s.lists, key)
	}
	hash, ok := s.hashes[key]
	if !ok {
		hash = make(map[string]string, len(fields))
		s.hashes[key] = hash
		s.keysDirty = true
	}
	for field, value := range fields {
		hash[field] = value
	}
	return nil
}

// PutList appends values to the list stored at key, creating it when
// missing. A hash at key is replaced.
func (s *Store) PutList(ctx context.Context, key string, values ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, isHash := s.hashes[key]; isHash {
		delete(s.hashes, key)
	}
	if _, ok := s.lists[key]; !ok {
		s.keysDirty = true
	}
	s.lists[key] = append(s.lists[key], values...)
	return nil
}

// Delete removes keys of any kind.
func (s *Store) Delete(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.hashes, key)
		delete(s.lists, key)
	}
	s.keysDirty = true
}

// Len returns the number of keys held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hashes) + len(s.lists)
}

func (s *Store) keysLocked() []string {
	if s.keysDirty {
		s.sortedKeys = s.sortedKeys[:0]
		for key := range s.hashes {
			s.sortedKeys = append(s.sortedKeys, key)
		}
		for key := range s.lists {
			s.sortedKeys = append(s.sortedKeys, key)
		}
		sort.Strings(s.sortedKeys)
		s.keysDirty = false
	}
	return s.sortedKeys
}

type conn struct {
	store    *Store
	released atomic.Bool
}

func (c *conn) Close() error {
	if c.released.CompareAndSwap(false, true) {
		c.store.released.Add(1)
	}
	return nil
}

// Scan inspects up to count keys from cursor and returns the ones matching
// match. Like Redis, count bounds work rather than results, so a batch can be
// empty while the traversal is still in progress.
func (c *conn) Scan(ctx context.Context, cursor, match string, count int) (storage.ScanResult, error) {
	if err := c.check(ctx); err != nil {
		return storage.ScanResult{}, err
	}
	start := 0
	if cursor != "" && cursor != storage.CursorStart {
		pos, err := strconv.Atoi(cursor)
		if err != nil || pos < 0 {
			return storage.ScanResult{}, fmt.Errorf("%w: %q", storage.ErrInvalidCursor, cursor)
		}
		start = pos
	}
	if count <= 0 {
		count = 10
	}
	s := c.store
	s.mu.Lock()
	keys := s.keysLocked()
	end := min(start+count, len(keys))
	result := storage.ScanResult{Cursor: storage.CursorStart}
	for i := start; i < end; i++ {
		if storage.MatchPattern(match, keys[i]) {
			result.Keys = append(result.Keys, keys[i])
		}
	}
	if end < len(keys) {
		result.Cursor = strconv.Itoa(end)
	}
	s.mu.Unlock()
	return result, nil
}

func (c *conn) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	s := c.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, isList := s.lists[key]; isList {
		return nil, storage.ErrWrongType
	}
	hash := s.hashes[key]
	out := make(map[string]string, len(hash))
	for field, value := range hash {
		out[field] = value
	}
	return out, nil
}

func (c *conn) ListRange(ctx context.Context, key string) ([]string, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	s := c.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, isHash := s.hashes[key]; isHash {
		return nil, storage.ErrWrongType
	}
	return append([]string{}, s.lists[key]...), nil
}

func (c *conn) check(ctx context.Context) error {
	if c.released.Load() {
		return storage.ErrClosed
	}
	return ctx.Err()
}
