// Package svcfields holds the log field conventions shared by console
// subsystems.
package svcfields

import (
	"context"
	"strings"

	"pkt.systems/pslog"

	"pkt.systems/tcconsole/internal/correlation"
)

// Log field keys.
const (
	SubsystemKey   = pslog.TrustedString("sys")
	CorrelationKey = pslog.TrustedString("cid")
)

// Subsystem names used across the console.
const (
	SubsystemLockQuery    = "query.locks"
	SubsystemSessionQuery = "query.sessions"
	SubsystemScan         = "storage.scan"
	SubsystemStorage      = "storage"
	SubsystemCLI          = "cli"
)

// Subsystem joins parts into a dot-delimited path, skipping empty fragments.
func Subsystem(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, ". ")
		if part != "" {
			filtered = append(filtered, part)
		}
	}
	return strings.Join(filtered, ".")
}

// WithSubsystem attaches a subsystem tag to every log entry.
func WithSubsystem(logger pslog.Logger, subsystem string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	subsystem = strings.Trim(subsystem, ". ")
	if subsystem == "" {
		return logger
	}
	return logger.With(SubsystemKey, subsystem)
}

// WithCorrelation tags logger with the correlation id carried by ctx, if any.
func WithCorrelation(ctx context.Context, logger pslog.Logger) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	if id := correlation.ID(ctx); id != "" {
		return logger.With(CorrelationKey, id)
	}
	return logger
}
