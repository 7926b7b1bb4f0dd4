package tcconsole

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"pkt.systems/pslog"

	"pkt.systems/tcconsole/internal/scan"
	"pkt.systems/tcconsole/internal/storage"
	"pkt.systems/tcconsole/internal/xid"
)

const (
	// DefaultStore points the console at an empty in-memory store.
	DefaultStore = "mem://"
	// DefaultXIDAddress is the coordinator address used to regenerate XIDs.
	DefaultXIDAddress = "127.0.0.1:8091"
	// DefaultScanBatchSize is the count hint sent with every scan batch.
	DefaultScanBatchSize = scan.DefaultBatchSize
	// DefaultMaxScanBatches bounds a single keyspace traversal.
	DefaultMaxScanBatches = scan.DefaultMaxBatches
	// DefaultRedisTimeout bounds Redis dials and replies.
	DefaultRedisTimeout = 5 * time.Second
	// DefaultMetricsListen disables the Prometheus endpoint.
	DefaultMetricsListen = ""
	// DefaultConfigFileName is looked up in DefaultConfigDir by the CLI.
	DefaultConfigFileName = "config.yaml"
)

// DefaultConfigDir returns the per-user configuration directory
// ($XDG_CONFIG_HOME/tcconsole or the platform equivalent).
func DefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tcconsole"), nil
}

// Config captures the tunables for a Console.
type Config struct {
	// Store is the backend DSN (mem://, redis://, rediss://, pebble://, s3://).
	Store string

	// Key namespace prefixes. Empty values take the coordinator defaults.
	LockPrefix        string
	GlobalPrefix      string
	BranchPrefix      string
	XIDBranchesPrefix string

	// XIDAddress is the coordinator host:port XIDs were issued under.
	XIDAddress string

	ScanBatchSize  int
	MaxScanBatches int

	RedisPoolSize int
	RedisTimeout  time.Duration

	// S3 credentials; when empty TCCONSOLE_S3_* and then the minio
	// credential chain are consulted.
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3SessionToken    string
	S3Region          string

	// MetricsListen serves Prometheus metrics at /metrics when set.
	MetricsListen string
	// RuntimeMetrics adds Go runtime instruments to the metrics endpoint.
	RuntimeMetrics bool
	// OTLPEndpoint exports traces (grpc://, grpcs://, http://, https:// or
	// bare host:port for insecure gRPC).
	OTLPEndpoint string

	// Logger receives structured logs; nil disables logging.
	Logger pslog.Logger
	// MeterProvider overrides the meter provider used by the query services.
	MeterProvider metric.MeterProvider
	// Backend bypasses Store and uses the given backend as-is.
	Backend storage.Backend
}

// Validate applies defaults and checks the configuration.
func (c *Config) Validate() error {
	c.Store = strings.TrimSpace(c.Store)
	if c.Store == "" && c.Backend == nil {
		c.Store = DefaultStore
	}
	if c.Backend == nil {
		u, err := url.Parse(c.Store)
		if err != nil {
			return fmt.Errorf("config: parse store: %w", err)
		}
		if !supportedScheme(u.Scheme) {
			return fmt.Errorf("config: store scheme %q not supported (options: %s)", u.Scheme, strings.Join(StoreSchemes(), ", "))
		}
	}
	c.XIDAddress = strings.TrimSpace(c.XIDAddress)
	if c.XIDAddress == "" {
		c.XIDAddress = DefaultXIDAddress
	}
	if err := (xid.Generator{Address: c.XIDAddress}).Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.ScanBatchSize == 0 {
		c.ScanBatchSize = DefaultScanBatchSize
	} else if c.ScanBatchSize < 0 {
		return fmt.Errorf("config: scan batch size must be > 0")
	}
	if c.MaxScanBatches == 0 {
		c.MaxScanBatches = DefaultMaxScanBatches
	} else if c.MaxScanBatches < 0 {
		return fmt.Errorf("config: max scan batches must be > 0")
	}
	if c.RedisPoolSize < 0 {
		return fmt.Errorf("config: redis pool size must be >= 0")
	}
	if c.RedisTimeout == 0 {
		c.RedisTimeout = DefaultRedisTimeout
	} else if c.RedisTimeout < 0 {
		return fmt.Errorf("config: redis timeout must be >= 0")
	}
	layout := c.KeyLayout()
	c.LockPrefix = layout.LockPrefix
	c.GlobalPrefix = layout.GlobalPrefix
	c.BranchPrefix = layout.BranchPrefix
	c.XIDBranchesPrefix = layout.XIDBranchesPrefix
	c.MetricsListen = strings.TrimSpace(c.MetricsListen)
	if c.RuntimeMetrics && c.MetricsListen == "" {
		return fmt.Errorf("config: runtime metrics require metrics-listen")
	}
	return nil
}

// KeyLayout returns the key namespace described by the prefix fields.
func (c Config) KeyLayout() storage.KeyLayout {
	return storage.KeyLayout{
		LockPrefix:        strings.TrimSpace(c.LockPrefix),
		GlobalPrefix:      strings.TrimSpace(c.GlobalPrefix),
		BranchPrefix:      strings.TrimSpace(c.BranchPrefix),
		XIDBranchesPrefix: strings.TrimSpace(c.XIDBranchesPrefix),
	}.WithDefaults()
}

// ScanConfig returns the scanner tuning described by c.
func (c Config) ScanConfig() scan.Config {
	return scan.Config{
		BatchSize:  c.ScanBatchSize,
		MaxBatches: c.MaxScanBatches,
		Logger:     c.Logger,
	}
}
