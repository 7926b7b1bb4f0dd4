package storage

import (
	"context"
	"errors"
	"strings"
)

// CursorStart is the reserved scan cursor. As input it begins a fresh
// traversal; as output it signals the traversal has returned to its origin.
const CursorStart = "0"

// Default key namespace prefixes used by the coordinator's store layout.
const (
	DefaultLockPrefix        = "SEATA_GLOBAL_LOCK"
	DefaultGlobalPrefix      = "SEATA_GLOBAL_"
	DefaultBranchPrefix      = "SEATA_BRANCH_"
	DefaultXIDBranchesPrefix = "SEATA_XID_BRANCHES_"
)

var (
	// ErrClosed indicates the backend was closed before the call.
	ErrClosed = errors.New("storage: backend closed")
	// ErrWrongType indicates the key holds a different value kind (hash vs list).
	ErrWrongType = errors.New("storage: wrong value type")
	// ErrInvalidCursor indicates a cursor that was not produced by this backend.
	ErrInvalidCursor = errors.New("storage: invalid cursor")
)

// ScanResult is one batch of a cursor traversal.
type ScanResult struct {
	Keys   []string
	Cursor string
}

// Wrapped reports whether the traversal returned to its origin.
func (r ScanResult) Wrapped() bool {
	return r.Cursor == CursorStart || r.Cursor == ""
}

// Conn is a connection scoped to a single round-trip. Callers acquire it
// immediately before use and must Close it on every exit path.
type Conn interface {
	// Scan returns one batch of keys matching the glob pattern starting at
	// cursor. count is a hint; backends may return more or fewer keys and may
	// return the same key in more than one batch.
	Scan(ctx context.Context, cursor, match string, count int) (ScanResult, error)
	// HashGetAll returns every field of the hash stored at key. A missing key
	// yields an empty map and no error.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	// ListRange returns every element of the list stored at key. A missing key
	// yields an empty slice and no error.
	ListRange(ctx context.Context, key string) ([]string, error)
	// Close releases the connection back to the backend.
	Close() error
}

// Backend hands out scoped connections to a scan-capable key-value store.
type Backend interface {
	// Acquire returns a connection for one round-trip.
	Acquire(ctx context.Context) (Conn, error)
	// Close releases backend resources.
	Close() error
}

// KeyLayout captures the process-wide key namespace prefixes.
type KeyLayout struct {
	LockPrefix        string
	GlobalPrefix      string
	BranchPrefix      string
	XIDBranchesPrefix string
}

// DefaultKeyLayout returns the coordinator's default prefixes.
func DefaultKeyLayout() KeyLayout {
	return KeyLayout{
		LockPrefix:        DefaultLockPrefix,
		GlobalPrefix:      DefaultGlobalPrefix,
		BranchPrefix:      DefaultBranchPrefix,
		XIDBranchesPrefix: DefaultXIDBranchesPrefix,
	}
}

// WithDefaults fills empty prefixes from DefaultKeyLayout.
func (l KeyLayout) WithDefaults() KeyLayout {
	def := DefaultKeyLayout()
	if l.LockPrefix == "" {
		l.LockPrefix = def.LockPrefix
	}
	if l.GlobalPrefix == "" {
		l.GlobalPrefix = def.GlobalPrefix
	}
	if l.BranchPrefix == "" {
		l.BranchPrefix = def.BranchPrefix
	}
	if l.XIDBranchesPrefix == "" {
		l.XIDBranchesPrefix = def.XIDBranchesPrefix
	}
	return l
}

// LockKey returns the store key of the global lock held by xid.
func (l KeyLayout) LockKey(xid string) string { return l.LockPrefix + xid }

// LockMatch returns the scan pattern matching every global lock key.
func (l KeyLayout) LockMatch() string { return EscapePattern(l.LockPrefix) + "*" }

// GlobalKey returns the store key of the global transaction xid.
func (l KeyLayout) GlobalKey(xid string) string { return l.GlobalPrefix + xid }

// GlobalMatch returns the scan pattern matching global transaction keys.
// Lock keys may share the prefix; callers filter them with IsLockKey.
func (l KeyLayout) GlobalMatch() string { return EscapePattern(l.GlobalPrefix) + "*" }

// IsLockKey reports whether key lives in the lock namespace.
func (l KeyLayout) IsLockKey(key string) bool {
	return l.LockPrefix != "" && strings.HasPrefix(key, l.LockPrefix)
}

// BranchKey returns the store key of branch branchID.
func (l KeyLayout) BranchKey(branchID string) string { return l.BranchPrefix + branchID }

// XIDBranchesKey returns the list key enumerating the branch keys of xid.
func (l KeyLayout) XIDBranchesKey(xid string) string { return l.XIDBranchesPrefix + xid }

type transientError struct {
	err error
}

func (t transientError) Error() string { return t.err.Error() }
func (t transientError) Unwrap() error { return t.err }

// NewTransientError marks err as a connectivity problem that a caller may
// choose to retry. The console itself never retries.
func NewTransientError(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err was marked as transient.
func IsTransient(err error) bool {
	var te transientError
	return errors.As(err, &te)
}

// ReadHash performs one HashGetAll round-trip on a connection acquired for it.
func ReadHash(ctx context.Context, b Backend, key string) (map[string]string, error) {
	conn, err := b.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.HashGetAll(ctx, key)
}

// ReadList performs one ListRange round-trip on a connection acquired for it.
func ReadList(ctx context.Context, b Backend, key string) ([]string, error) {
	conn, err := b.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.ListRange(ctx, key)
}
