package tcconsole

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	minioCredentials "github.com/minio/minio-go/v7/pkg/credentials"
	"pkt.systems/pslog"

	"pkt.systems/tcconsole/internal/storage"
	"pkt.systems/tcconsole/internal/storage/logging"
	"pkt.systems/tcconsole/internal/storage/memory"
	pebblestore "pkt.systems/tcconsole/internal/storage/pebble"
	redisstore "pkt.systems/tcconsole/internal/storage/redis"
	"pkt.systems/tcconsole/internal/storage/s3"
)

// CredentialSummary describes which credentials were selected for object storage.
type CredentialSummary struct {
	AccessKey string
	HasSecret bool
	Source    string
}

var storeSchemes = []string{"mem", "redis", "rediss", "pebble", "s3"}

// StoreSchemes lists the DSN schemes accepted by Config.Store.
func StoreSchemes() []string {
	return append([]string(nil), storeSchemes...)
}

func supportedScheme(scheme string) bool {
	switch scheme {
	case "memory", "":
		return true
	}
	for _, s := range storeSchemes {
		if s == scheme {
			return true
		}
	}
	return false
}

// openBackend resolves cfg.Store into a backend decorated with spans and
// round-trip logging.
func openBackend(ctx context.Context, cfg Config, logger pslog.Logger) (storage.Backend, error) {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	if cfg.Backend != nil {
		return logging.Wrap(cfg.Backend, logger, "custom"), nil
	}
	u, err := url.Parse(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("parse store URL: %w", err)
	}
	var backend storage.Backend
	switch u.Scheme {
	case "memory", "mem", "":
		backend, err = openMemory(ctx, u, logger)
	case "redis", "rediss":
		backend, err = openRedis(ctx, cfg)
	case "pebble":
		backend, err = openPebble(u, logger)
	case "s3":
		backend, err = openS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("store scheme %q not supported", u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("store.opened", "scheme", u.Scheme, "store", redactStore(u))
	return logging.Wrap(backend, logger, u.Scheme), nil
}

func openMemory(ctx context.Context, u *url.URL, logger pslog.Logger) (storage.Backend, error) {
	store := memory.New()
	path := strings.TrimSpace(u.Query().Get("fixture"))
	if path == "" {
		return store, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("memory store fixture: %w", err)
	}
	defer f.Close()
	n, err := storage.LoadFixture(ctx, store, f)
	if err != nil {
		return nil, fmt.Errorf("memory store fixture %s: %w", path, err)
	}
	logger.Debug("store.memory.fixture_loaded", "path", path, "keys", n)
	return store, nil
}

func openRedis(ctx context.Context, cfg Config) (storage.Backend, error) {
	store, err := redisstore.New(redisstore.Config{
		URL:         cfg.Store,
		PoolSize:    cfg.RedisPoolSize,
		DialTimeout: cfg.RedisTimeout,
		ReadTimeout: cfg.RedisTimeout,
	})
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("redis store not reachable: %w", err)
	}
	return store, nil
}

// BuildPebbleConfig parses pebble:// URLs. Both pebble:///abs/path and
// pebble://relative/path are accepted.
func BuildPebbleConfig(raw string) (pebblestore.Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return pebblestore.Config{}, fmt.Errorf("parse store URL: %w", err)
	}
	return pebbleConfig(u)
}

func pebbleConfig(u *url.URL) (pebblestore.Config, error) {
	if u.Scheme != "pebble" {
		return pebblestore.Config{}, fmt.Errorf("store scheme %q not supported", u.Scheme)
	}
	path := u.Path
	if u.Host != "" {
		path = filepath.Join(u.Host, u.Path)
	}
	path = strings.TrimSpace(path)
	if path == "" || path == "/" {
		return pebblestore.Config{}, fmt.Errorf("pebble store missing path (expected pebble:///path/to/db)")
	}
	cfg := pebblestore.Config{Path: filepath.Clean(path)}
	if v := u.Query().Get("readonly"); v != "" {
		ok, err := strconv.ParseBool(v)
		if err != nil {
			return pebblestore.Config{}, fmt.Errorf("pebble store readonly: %w", err)
		}
		cfg.ReadOnly = ok
	}
	return cfg, nil
}

func openPebble(u *url.URL, logger pslog.Logger) (storage.Backend, error) {
	cfg, err := pebbleConfig(u)
	if err != nil {
		return nil, err
	}
	cfg.Logger = logger
	return pebblestore.Open(cfg)
}

func openS3(ctx context.Context, cfg Config) (storage.Backend, error) {
	s3cfg, summary, err := BuildS3Config(cfg)
	if err != nil {
		return nil, err
	}
	store, err := s3.New(s3cfg)
	if err != nil {
		return nil, err
	}
	exists, err := store.BucketExists(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3 store not reachable (credentials from %s): %w", summary.Source, err)
	}
	if !exists {
		return nil, fmt.Errorf("s3 bucket %q does not exist", s3cfg.Bucket)
	}
	return store, nil
}

// BuildS3Config parses s3:// URLs that target S3-compatible services.
func BuildS3Config(cfg Config) (s3.Config, CredentialSummary, error) {
	u, err := url.Parse(cfg.Store)
	if err != nil {
		return s3.Config{}, CredentialSummary{}, fmt.Errorf("parse store URL: %w", err)
	}
	if u.Scheme != "s3" {
		return s3.Config{}, CredentialSummary{}, fmt.Errorf("store scheme %q not supported", u.Scheme)
	}
	endpoint := strings.TrimSpace(u.Host)
	if endpoint == "" {
		return s3.Config{}, CredentialSummary{}, fmt.Errorf("s3 store missing host (expected s3://host[:port]/bucket[/prefix])")
	}
	bucket, prefix, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return s3.Config{}, CredentialSummary{}, fmt.Errorf("s3 store missing bucket (expected s3://host[:port]/bucket[/prefix])")
	}
	query := u.Query()
	insecure, err := queryBool(query, "insecure")
	if err != nil {
		return s3.Config{}, CredentialSummary{}, err
	}
	pathStyle, err := queryBool(query, "path-style")
	if err != nil {
		return s3.Config{}, CredentialSummary{}, err
	}
	region := strings.TrimSpace(cfg.S3Region)
	if v := strings.TrimSpace(query.Get("region")); v != "" {
		region = v
	}
	creds, summary, err := resolveS3Credentials(cfg)
	if err != nil {
		return s3.Config{}, summary, err
	}
	return s3.Config{
		Endpoint:       endpoint,
		Region:         region,
		Bucket:         bucket,
		Prefix:         strings.Trim(prefix, "/"),
		Insecure:       insecure,
		ForcePathStyle: pathStyle,
		CustomCreds:    creds,
	}, summary, nil
}

func queryBool(query url.Values, name string) (bool, error) {
	v := query.Get(name)
	if v == "" {
		return false, nil
	}
	ok, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("store option %s: %w", name, err)
	}
	return ok, nil
}

// resolveS3Credentials prefers explicit config, then TCCONSOLE_S3_* env. A
// nil result lets the s3 backend fall back to the minio credential chain.
func resolveS3Credentials(cfg Config) (*minioCredentials.Credentials, CredentialSummary, error) {
	accessKey := strings.TrimSpace(cfg.S3AccessKeyID)
	secretKey := cfg.S3SecretAccessKey
	sessionToken := cfg.S3SessionToken
	source := "config"
	if accessKey == "" && secretKey == "" && sessionToken == "" {
		accessKey = strings.TrimSpace(os.Getenv("TCCONSOLE_S3_ACCESS_KEY_ID"))
		secretKey = os.Getenv("TCCONSOLE_S3_SECRET_ACCESS_KEY")
		sessionToken = os.Getenv("TCCONSOLE_S3_SESSION_TOKEN")
		source = "env:TCCONSOLE_S3_ACCESS_KEY_ID"
	}
	if accessKey == "" && secretKey == "" && sessionToken == "" {
		return nil, CredentialSummary{Source: "chain"}, nil
	}
	summary := CredentialSummary{AccessKey: accessKey, HasSecret: secretKey != "", Source: source}
	if accessKey == "" || secretKey == "" {
		return nil, summary, fmt.Errorf("s3 credentials incomplete (need access key and secret key)")
	}
	return minioCredentials.NewStaticV4(accessKey, secretKey, sessionToken), summary, nil
}

func redactStore(u *url.URL) string {
	if u.User == nil {
		return u.String()
	}
	clone := *u
	clone.User = url.User("redacted")
	return clone.String()
}
