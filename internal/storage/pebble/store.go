// Package pebble implements storage.Backend on an embedded Pebble database.
// Hashes and lists are stored as one storage.Value per key; scans iterate the ordered
// keyspace bounded by the literal prefix of the match pattern.
package pebble

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"pkt.systems/pslog"

	"pkt.systems/tcconsole/internal/storage"
)

// Config controls how the database is opened.
type Config struct {
	// Path is the database directory.
	Path string
	// FS overrides the filesystem; tests use vfs.NewMem().
	FS vfs.FS
	// ReadOnly opens the database without write access.
	ReadOnly bool
	// Logger receives Pebble's internal log lines.
	Logger pslog.Logger
}

// Store is a Pebble-backed storage.Backend.
type Store struct {
	db      *pebble.DB
	writeMu sync.Mutex
}

// Open opens (or creates, unless ReadOnly) the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("pebble: path required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	opts := &pebble.Options{
		ReadOnly: cfg.ReadOnly,
		Logger:   pebbleLogger{logger: logger},
	}
	if cfg.FS != nil {
		opts.FS = cfg.FS
	}
	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", cfg.Path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Acquire pins a snapshot for the lifetime of the connection.
func (s *Store) Acquire(ctx context.Context) (storage.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &conn{snap: s.db.NewSnapshot()}, nil
}

// PutHash merges fields into the hash stored at key. A list at key is
// replaced.
func (s *Store) PutHash(ctx context.Context, key string, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	current, err := s.load(key)
	if err != nil {
		return err
	}
	return s.store(key, storage.MergeHash(current, fields))
}

// PutList appends values to the list stored at key. A hash at key is
// replaced.
func (s *Store) PutList(ctx context.Context, key string, values ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	current, err := s.load(key)
	if err != nil {
		return err
	}
	return s.store(key, storage.AppendList(current, values...))
}

func (s *Store) load(key string) (*storage.Value, error) {
	raw, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pebble: get %s: %w", key, err)
	}
	defer closer.Close()
	return decodeValue(key, raw)
}

func (s *Store) store(key string, v *storage.Value) error {
	raw, err := storage.EncodeValue(v)
	if err != nil {
		return err
	}
	if err := s.db.Set([]byte(key), raw, pebble.Sync); err != nil {
		return fmt.Errorf("pebble: set %s: %w", key, err)
	}
	return nil
}

type conn struct {
	snap *pebble.Snapshot
	once sync.Once
	err  error
}

func (c *conn) Close() error {
	c.once.Do(func() { c.err = c.snap.Close() })
	return c.err
}

// Scan examines at most count keys after cursor. The returned cursor is the
// last examined key, encoded; it is CursorStart once the range is exhausted.
func (c *conn) Scan(ctx context.Context, cursor, match string, count int) (storage.ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.ScanResult{}, err
	}
	var after []byte
	if cursor != "" && cursor != storage.CursorStart {
		decoded, err := base64.RawURLEncoding.DecodeString(cursor)
		if err != nil || len(decoded) == 0 {
			return storage.ScanResult{}, fmt.Errorf("%w: %q", storage.ErrInvalidCursor, cursor)
		}
		after = decoded
	}
	if count <= 0 {
		count = 10
	}
	prefix := []byte(storage.LiteralPrefix(match))
	iter, err := c.snap.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return storage.ScanResult{}, fmt.Errorf("pebble: iterator: %w", err)
	}
	defer iter.Close()

	start := prefix
	if after != nil && bytes.Compare(after, prefix) > 0 {
		start = after
	}
	result := storage.ScanResult{Cursor: storage.CursorStart}
	examined := 0
	var last []byte
	for valid := iter.SeekGE(start); valid; valid = iter.Next() {
		key := iter.Key()
		if after != nil && bytes.Equal(key, after) {
			continue
		}
		if examined == count {
			result.Cursor = base64.RawURLEncoding.EncodeToString(last)
			break
		}
		examined++
		last = append(last[:0], key...)
		if storage.MatchPattern(match, string(key)) {
			result.Keys = append(result.Keys, string(key))
		}
	}
	if err := iter.Error(); err != nil {
		return storage.ScanResult{}, fmt.Errorf("pebble: iterate: %w", err)
	}
	return result, nil
}

func (c *conn) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	v, err := c.get(ctx, key)
	if err != nil {
		return nil, err
	}
	return storage.HashOf(key, v)
}

func (c *conn) ListRange(ctx context.Context, key string) ([]string, error) {
	v, err := c.get(ctx, key)
	if err != nil {
		return nil, err
	}
	return storage.ListOf(key, v)
}

func (c *conn) get(ctx context.Context, key string) (*storage.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, closer, err := c.snap.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pebble: get %s: %w", key, err)
	}
	defer closer.Close()
	return decodeValue(key, raw)
}

func decodeValue(key string, raw []byte) (*storage.Value, error) {
	v, err := storage.DecodeValue(raw)
	if err != nil {
		return nil, fmt.Errorf("pebble: %s: %w", key, err)
	}
	return v, nil
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil when no such bound exists.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

type pebbleLogger struct {
	logger pslog.Logger
}

func (l pebbleLogger) Infof(format string, args ...any) {
	l.logger.Trace("storage.pebble.info", "detail", fmt.Sprintf(format, args...))
}

func (l pebbleLogger) Errorf(format string, args ...any) {
	l.logger.Error("storage.pebble.error", "detail", fmt.Sprintf(format, args...))
}

func (l pebbleLogger) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Error("storage.pebble.fatal", "detail", msg)
	panic("pebble: " + msg)
}
