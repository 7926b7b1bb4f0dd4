package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pkt.systems/tcconsole/internal/storage"
)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("storagetest: injected failure")

// Counts tallies round-trips seen by a Recorder or Scripted backend.
type Counts struct {
	Acquired  int
	Released  int
	Scans     int
	HashReads int
	ListReads int
}

// Calls returns the number of store round-trips, acquisitions included.
func (c Counts) Calls() int {
	return c.Acquired + c.Scans + c.HashReads + c.ListReads
}

// Balanced reports whether every acquired connection was released.
func (c Counts) Balanced() bool { return c.Acquired == c.Released }

type counter struct {
	mu sync.Mutex
	c  Counts
}

func (c *counter) bump(f func(*Counts)) {
	c.mu.Lock()
	f(&c.c)
	c.mu.Unlock()
}

func (c *counter) snapshot() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.c
}

// Recorder wraps a backend, counts its round-trips and injects failures.
type Recorder struct {
	Inner storage.Backend
	// FailAcquire makes every Acquire fail.
	FailAcquire bool
	// FailScanAt fails the n-th scan (1-based); 0 disables.
	FailScanAt int
	// FailHashKeys fails HashGetAll for the listed keys.
	FailHashKeys map[string]bool

	counter
}

// NewRecorder wraps inner.
func NewRecorder(inner storage.Backend) *Recorder {
	return &Recorder{Inner: inner}
}

// Counts returns a snapshot of the tallies.
func (r *Recorder) Counts() Counts { return r.snapshot() }

func (r *Recorder) Acquire(ctx context.Context) (storage.Conn, error) {
	if r.FailAcquire {
		return nil, ErrInjected
	}
	conn, err := r.Inner.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	r.bump(func(c *Counts) { c.Acquired++ })
	return &recordedConn{inner: conn, r: r}, nil
}

func (r *Recorder) Close() error { return r.Inner.Close() }

type recordedConn struct {
	inner storage.Conn
	r     *Recorder
	once  sync.Once
}

func (c *recordedConn) Scan(ctx context.Context, cursor, match string, count int) (storage.ScanResult, error) {
	var n int
	c.r.bump(func(cs *Counts) { cs.Scans++; n = cs.Scans })
	if c.r.FailScanAt > 0 && n == c.r.FailScanAt {
		return storage.ScanResult{}, ErrInjected
	}
	return c.inner.Scan(ctx, cursor, match, count)
}

func (c *recordedConn) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	c.r.bump(func(cs *Counts) { cs.HashReads++ })
	if c.r.FailHashKeys[key] {
		return nil, ErrInjected
	}
	return c.inner.HashGetAll(ctx, key)
}

func (c *recordedConn) ListRange(ctx context.Context, key string) ([]string, error) {
	c.r.bump(func(cs *Counts) { cs.ListReads++ })
	return c.inner.ListRange(ctx, key)
}

func (c *recordedConn) Close() error {
	c.once.Do(func() { c.r.bump(func(cs *Counts) { cs.Released++ }) })
	return c.inner.Close()
}

// Scripted is a backend whose scan batches are fixed per input cursor, for
// exercising duplicate and reordered batches a real store may produce.
// Match patterns are ignored by Scan.
type Scripted struct {
	Batches map[string]storage.ScanResult
	Hashes  map[string]map[string]string
	Lists   map[string][]string

	counter
}

// Counts returns a snapshot of the tallies.
func (s *Scripted) Counts() Counts { return s.snapshot() }

func (s *Scripted) Acquire(ctx context.Context) (storage.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.bump(func(c *Counts) { c.Acquired++ })
	return &scriptedConn{s: s}, nil
}

func (s *Scripted) Close() error { return nil }

type scriptedConn struct {
	s    *Scripted
	once sync.Once
}

func (c *scriptedConn) Scan(_ context.Context, cursor, _ string, _ int) (storage.ScanResult, error) {
	c.s.bump(func(cs *Counts) { cs.Scans++ })
	res, ok := c.s.Batches[cursor]
	if !ok {
		return storage.ScanResult{}, fmt.Errorf("%w: %q", storage.ErrInvalidCursor, cursor)
	}
	return res, nil
}

func (c *scriptedConn) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	c.s.bump(func(cs *Counts) { cs.HashReads++ })
	out := make(map[string]string, len(c.s.Hashes[key]))
	for k, v := range c.s.Hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (c *scriptedConn) ListRange(_ context.Context, key string) ([]string, error) {
	c.s.bump(func(cs *Counts) { cs.ListReads++ })
	return append([]string{}, c.s.Lists[key]...), nil
}

func (c *scriptedConn) Close() error {
	c.once.Do(func() { c.s.bump(func(cs *Counts) { cs.Released++ }) })
	return nil
}
