package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"pkt.systems/tcconsole"
	"pkt.systems/tcconsole/internal/svcfields"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("TCCONSOLE_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "tcconsole")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if err != context.Canceled {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

// cli carries the state shared by every subcommand of one root command.
type cli struct {
	v      *viper.Viper
	logger pslog.Logger
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	app := &cli{v: viper.New(), logger: baseLogger}
	cmd := &cobra.Command{
		Use:           "tcconsole",
		Short:         "Inspect global locks and sessions held in a transaction coordinator store",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.loadConfigFile()
			if err != nil {
				return err
			}
			if level, ok := pslog.ParseLevel(app.v.GetString("log-level")); ok {
				app.logger = baseLogger.LogLevel(level)
			}
			if path != "" {
				svcfields.WithSubsystem(app.logger, "cli.config").Debug("cli.config.loaded", "path", path)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "path to YAML config file (defaults to $XDG_CONFIG_HOME/tcconsole/config.yaml)")
	flags.String("store", tcconsole.DefaultStore, "store DSN ("+strings.Join(tcconsole.StoreSchemes(), ", ")+")")
	flags.String("lock-prefix", "", "key prefix of global lock records")
	flags.String("global-prefix", "", "key prefix of global session records")
	flags.String("branch-prefix", "", "key prefix of branch session records")
	flags.String("xid-branches-prefix", "", "key prefix of per-XID branch lists")
	flags.String("xid-address", tcconsole.DefaultXIDAddress, "coordinator host:port XIDs were issued under")
	flags.Int("scan-batch-size", tcconsole.DefaultScanBatchSize, "count hint sent with each scan batch")
	flags.Int("max-scan-batches", tcconsole.DefaultMaxScanBatches, "maximum scan batches per keyspace traversal")
	flags.Int("redis-pool-size", 0, "redis connection pool size (0 uses the client default)")
	flags.Duration("redis-timeout", tcconsole.DefaultRedisTimeout, "redis dial and reply timeout")
	flags.String("s3-access-key-id", "", "S3 access key (falls back to TCCONSOLE_S3_ACCESS_KEY_ID and the credential chain)")
	flags.String("s3-secret-access-key", "", "S3 secret key")
	flags.String("s3-session-token", "", "S3 session token")
	flags.String("s3-region", "", "S3 region")
	flags.String("metrics-listen", tcconsole.DefaultMetricsListen, "serve Prometheus metrics on this address while the command runs")
	flags.Bool("runtime-metrics", false, "include Go runtime metrics (requires --metrics-listen)")
	flags.String("otlp-endpoint", "", "OTLP trace collector endpoint (e.g. grpc://localhost:4317)")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.StringP("output", "o", outputTable, "output format (table, json, yaml)")

	app.v.SetEnvPrefix("TCCONSOLE")
	app.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	app.v.AutomaticEnv()
	names := []string{
		"config", "store",
		"lock-prefix", "global-prefix", "branch-prefix", "xid-branches-prefix",
		"xid-address", "scan-batch-size", "max-scan-batches",
		"redis-pool-size", "redis-timeout",
		"s3-access-key-id", "s3-secret-access-key", "s3-session-token", "s3-region",
		"metrics-listen", "runtime-metrics", "otlp-endpoint",
		"log-level", "output",
	}
	bindFlags(app.v, flags, names...)

	cmd.AddCommand(newLocksCommand(app))
	cmd.AddCommand(newSessionsCommand(app))
	cmd.AddCommand(newXIDCommand(app))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		flag := flags.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := v.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}
}

func (a *cli) loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(a.v.GetString("config"))
	explicit := cfgPath != ""

	if cfgPath == "" {
		if dir, err := tcconsole.DefaultConfigDir(); err == nil {
			candidate := filepath.Join(dir, tcconsole.DefaultConfigFileName)
			if _, err := os.Stat(candidate); err == nil {
				cfgPath = candidate
			}
		}
	}
	if cfgPath == "" {
		return "", nil
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	a.v.SetConfigFile(expanded)
	if err := a.v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

// config assembles a console configuration from flags, env and the config
// file.
func (a *cli) config() tcconsole.Config {
	return tcconsole.Config{
		Store:             a.v.GetString("store"),
		LockPrefix:        a.v.GetString("lock-prefix"),
		GlobalPrefix:      a.v.GetString("global-prefix"),
		BranchPrefix:      a.v.GetString("branch-prefix"),
		XIDBranchesPrefix: a.v.GetString("xid-branches-prefix"),
		XIDAddress:        a.v.GetString("xid-address"),
		ScanBatchSize:     a.v.GetInt("scan-batch-size"),
		MaxScanBatches:    a.v.GetInt("max-scan-batches"),
		RedisPoolSize:     a.v.GetInt("redis-pool-size"),
		RedisTimeout:      a.v.GetDuration("redis-timeout"),
		S3AccessKeyID:     a.v.GetString("s3-access-key-id"),
		S3SecretAccessKey: a.v.GetString("s3-secret-access-key"),
		S3SessionToken:    a.v.GetString("s3-session-token"),
		S3Region:          a.v.GetString("s3-region"),
		MetricsListen:     a.v.GetString("metrics-listen"),
		RuntimeMetrics:    a.v.GetBool("runtime-metrics"),
		OTLPEndpoint:      a.v.GetString("otlp-endpoint"),
		Logger:            a.logger,
	}
}

// withConsole opens a console for the duration of fn.
func (a *cli) withConsole(ctx context.Context, fn func(*tcconsole.Console) error) error {
	console, err := tcconsole.New(ctx, a.config())
	if err != nil {
		return err
	}
	runErr := fn(console)
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := console.Close(closeCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func (a *cli) printer(cmd *cobra.Command) (printer, error) {
	return newPrinter(cmd.OutOrStdout(), a.v.GetString("output"))
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
