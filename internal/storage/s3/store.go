package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"pkt.systems/pslog"

	"pkt.systems/tcconsole/internal/storage"
)

const contentTypeJSON = "application/json"

// Config controls the behaviour of the S3 storage backend.
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	Insecure       bool
	ForcePathStyle bool
	CustomCreds    *credentials.Credentials
	Transport      http.RoundTripper
}

// Store implements storage.Backend on S3-compatible object storage. Each key
// is one JSON object named <prefix>/<key>; scans list objects in key order.
type Store struct {
	client  *minio.Client
	cfg     Config
	writeMu sync.Mutex
}

// New constructs a Store using the provided configuration.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.Region != "" {
			endpoint = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region)
		} else {
			endpoint = "s3.amazonaws.com"
		}
	}
	if cfg.Transport == nil {
		cfg.Transport = defaultTransport()
	}
	var creds *credentials.Credentials
	if cfg.CustomCreds != nil {
		creds = cfg.CustomCreds
	} else {
		chain := []credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		}
		creds = credentials.NewChainCredentials(chain)
	}
	options := &minio.Options{
		Creds:     creds,
		Secure:    !cfg.Insecure,
		Region:    cfg.Region,
		Transport: cfg.Transport,
		// The console surfaces store failures instead of retrying them.
		MaxRetries: 1,
	}
	if cfg.ForcePathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}
	client, err := minio.New(endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Store{client: client, cfg: cfg}, nil
}

func defaultTransport() http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	clone := base.Clone()
	if clone.MaxIdleConnsPerHost == 0 {
		clone.MaxIdleConnsPerHost = 16
	}
	if clone.IdleConnTimeout == 0 {
		clone.IdleConnTimeout = 90 * time.Second
	}
	return clone
}

// Close is a no-op for the S3 client.
func (s *Store) Close() error { return nil }

// Client exposes the underlying MinIO client for diagnostics.
func (s *Store) Client() *minio.Client {
	return s.client
}

// BucketExists reports whether the configured bucket exists.
func (s *Store) BucketExists(ctx context.Context) (bool, error) {
	ok, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	return ok, s.wrapError(err, "s3: bucket exists")
}

// Config returns a copy of the configuration used to build the store.
func (s *Store) Config() Config {
	return s.cfg
}

// Acquire returns a connection handle. HTTP connections are pooled by the
// transport, so the handle only scopes the round-trip.
func (s *Store) Acquire(ctx context.Context) (storage.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &conn{store: s}, nil
}

// PutHash merges fields into the hash object at key.
func (s *Store) PutHash(ctx context.Context, key string, fields map[string]string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	current, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	return s.store(ctx, key, storage.MergeHash(current, fields))
}

// PutList appends values to the list object at key.
func (s *Store) PutList(ctx context.Context, key string, values ...string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	current, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	return s.store(ctx, key, storage.AppendList(current, values...))
}

func (s *Store) load(ctx context.Context, key string) (*storage.Value, error) {
	logger := pslog.LoggerFromContext(ctx)
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, s.wrapError(err, "s3: get object")
	}
	defer obj.Close()
	raw, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		logger.Debug("s3.get_object.error", "key", key, "error", err)
		return nil, s.wrapError(err, "s3: read object")
	}
	v, err := storage.DecodeValue(raw)
	if err != nil {
		return nil, fmt.Errorf("s3: %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) store(ctx context.Context, key string, v *storage.Value) error {
	raw, err := storage.EncodeValue(v)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, s.objectKey(key), bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{ContentType: contentTypeJSON})
	return s.wrapError(err, "s3: put object")
}

func (s *Store) root() string {
	if s.cfg.Prefix == "" {
		return ""
	}
	return s.cfg.Prefix + "/"
}

func (s *Store) objectKey(key string) string {
	return s.root() + key
}

type conn struct {
	store *Store
}

func (c *conn) Close() error { return nil }

// Scan lists up to count objects after cursor whose names start with the
// literal prefix of match, then filters them by match.
func (c *conn) Scan(ctx context.Context, cursor, match string, count int) (storage.ScanResult, error) {
	s := c.store
	logger := pslog.LoggerFromContext(ctx)
	if count <= 0 {
		count = 10
	}
	root := s.root()
	listOpts := minio.ListObjectsOptions{
		Prefix:    root + storage.LiteralPrefix(match),
		Recursive: true,
		MaxKeys:   count + 1,
	}
	after := ""
	if cursor != "" && cursor != storage.CursorStart {
		decoded, err := base64.RawURLEncoding.DecodeString(cursor)
		if err != nil || len(decoded) == 0 {
			return storage.ScanResult{}, fmt.Errorf("%w: %q", storage.ErrInvalidCursor, cursor)
		}
		after = string(decoded)
		listOpts.StartAfter = root + after
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	result := storage.ScanResult{Cursor: storage.CursorStart}
	examined := 0
	lastKey := ""
	for object := range s.client.ListObjects(ctx, s.cfg.Bucket, listOpts) {
		if object.Err != nil {
			logger.Debug("s3.list_objects.error", "prefix", listOpts.Prefix, "error", object.Err)
			return storage.ScanResult{}, s.wrapError(object.Err, "s3: list objects")
		}
		key := strings.TrimPrefix(object.Key, root)
		if root != "" && key == object.Key {
			continue
		}
		// Some S3 implementations ignore start-after.
		if after != "" && key <= after {
			continue
		}
		if examined == count {
			result.Cursor = base64.RawURLEncoding.EncodeToString([]byte(lastKey))
			break
		}
		examined++
		lastKey = key
		if storage.MatchPattern(match, key) {
			result.Keys = append(result.Keys, key)
		}
	}
	return result, nil
}

func (c *conn) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	v, err := c.store.load(ctx, key)
	if err != nil {
		return nil, err
	}
	return storage.HashOf(key, v)
}

func (c *conn) ListRange(ctx context.Context, key string) ([]string, error) {
	v, err := c.store.load(ctx, key)
	if err != nil {
		return nil, err
	}
	return storage.ListOf(key, v)
}

func isNotFound(err error) bool {
	errResp := minio.ErrorResponse{}
	if errors.As(err, &errResp) {
		return errResp.StatusCode == http.StatusNotFound
	}
	return false
}

func (s *Store) wrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	retryable := isRetryable(err)
	if msg != "" {
		err = fmt.Errorf("%s: %w", msg, err)
	}
	if retryable {
		return storage.NewTransientError(err)
	}
	return err
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if isNetworkConnectionError(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsTemporary {
			return true
		}
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode >= http.StatusInternalServerError {
		return true
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return true
	}
	return false
}

func isNetworkConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return isNetworkConnectionError(opErr.Err)
	}
	return false
}
