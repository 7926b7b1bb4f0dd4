// Package redis implements storage.Backend on Redis through go-redis. Every
// Acquire pins one pooled connection for a single round-trip.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"pkt.systems/tcconsole/internal/storage"
)

// Config captures the Redis connection parameters.
type Config struct {
	// URL is a redis:// or rediss:// DSN understood by redis.ParseURL.
	URL string
	// PoolSize overrides the client pool size when positive.
	PoolSize int
	// DialTimeout bounds connection establishment when positive.
	DialTimeout time.Duration
	// ReadTimeout bounds each reply when positive.
	ReadTimeout time.Duration
}

// Store wraps a go-redis client.
type Store struct {
	client *goredis.Client
}

// New parses cfg.URL and builds a client. No connection is made until the
// first Acquire.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("redis: url required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	// The console surfaces store failures instead of retrying them.
	opts.MaxRetries = -1
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	return &Store{client: goredis.NewClient(opts)}, nil
}

// NewWithClient wraps an existing client; the store takes ownership.
func NewWithClient(client *goredis.Client) *Store {
	return &Store{client: client}
}

// Client exposes the underlying go-redis client.
func (s *Store) Client() *goredis.Client { return s.client }

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return classify(s.client.Ping(ctx).Err())
}

// Close closes the client pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Acquire pins a pooled connection.
func (s *Store) Acquire(ctx context.Context) (storage.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &conn{c: s.client.Conn()}, nil
}

// PutHash writes fields into the hash at key (HSET).
func (s *Store) PutHash(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for field, value := range fields {
		args = append(args, field, value)
	}
	return classify(s.client.HSet(ctx, key, args...).Err())
}

// PutList appends values to the list at key (RPUSH).
func (s *Store) PutList(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return classify(s.client.RPush(ctx, key, args...).Err())
}

type conn struct {
	c *goredis.Conn
}

func (c *conn) Close() error {
	return c.c.Close()
}

func (c *conn) Scan(ctx context.Context, cursor, match string, count int) (storage.ScanResult, error) {
	var pos uint64
	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return storage.ScanResult{}, fmt.Errorf("%w: %q", storage.ErrInvalidCursor, cursor)
		}
		pos = parsed
	}
	if match == "" {
		match = "*"
	}
	keys, next, err := c.c.Scan(ctx, pos, match, int64(count)).Result()
	if err != nil {
		return storage.ScanResult{}, classify(err)
	}
	return storage.ScanResult{Keys: keys, Cursor: strconv.FormatUint(next, 10)}, nil
}

func (c *conn) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := c.c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, classify(err)
	}
	if fields == nil {
		fields = map[string]string{}
	}
	return fields, nil
}

func (c *conn) ListRange(ctx context.Context, key string) ([]string, error) {
	values, err := c.c.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, classify(err)
	}
	return values, nil
}

// classify maps server replies onto storage errors and marks connectivity
// failures transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if strings.HasPrefix(err.Error(), "WRONGTYPE") {
		return fmt.Errorf("%w: %v", storage.ErrWrongType, err)
	}
	if errors.Is(err, goredis.ErrClosed) {
		return fmt.Errorf("%w: %v", storage.ErrClosed, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return storage.NewTransientError(err)
	}
	return err
}
