// Package failure defines the transport-neutral error taxonomy shared by the
// console query services and converters.
package failure

import (
	"errors"
	"fmt"
)

// Error codes surfaced by the console.
const (
	CodeInvalidParameter = "invalid_parameter"
	CodeStoreUnavailable = "store_unavailable"
	CodeInvalidArgument  = "invalid_argument"
	CodeTypeMismatch     = "type_mismatch"
)

// Sentinels for errors.Is matching; only Code is compared.
var (
	ErrInvalidParameter = Failure{Code: CodeInvalidParameter}
	ErrStoreUnavailable = Failure{Code: CodeStoreUnavailable}
	ErrInvalidArgument  = Failure{Code: CodeInvalidArgument}
	ErrTypeMismatch     = Failure{Code: CodeTypeMismatch}
)

// Failure captures error details that adapters (CLI, HTTP) can map to their
// own status vocabulary.
type Failure struct {
	Code   string
	Detail string
	Err    error
}

func (f Failure) Error() string {
	switch {
	case f.Detail != "" && f.Err != nil:
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Detail, f.Err)
	case f.Detail != "":
		return fmt.Sprintf("%s: %s", f.Code, f.Detail)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Code, f.Err)
	}
	return f.Code
}

// Unwrap exposes the underlying cause, if any.
func (f Failure) Unwrap() error { return f.Err }

// Is matches any Failure carrying the same code.
func (f Failure) Is(target error) bool {
	var other Failure
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == f.Code
}

// InvalidParameter builds a caller-input failure.
func InvalidParameter(format string, args ...any) error {
	return Failure{Code: CodeInvalidParameter, Detail: fmt.Sprintf(format, args...)}
}

// InvalidArgument builds a conversion failure for values that do not map onto
// a known enumeration.
func InvalidArgument(format string, args ...any) error {
	return Failure{Code: CodeInvalidArgument, Detail: fmt.Sprintf(format, args...)}
}

// TypeMismatch reports a session of the wrong kind handed to a directional
// converter.
func TypeMismatch(want string, got any) error {
	return Failure{Code: CodeTypeMismatch, Detail: fmt.Sprintf("want %s, got %T", want, got)}
}

// StoreUnavailable wraps a failed store round-trip.
func StoreUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing Failure
	if errors.As(err, &existing) && existing.Code == CodeStoreUnavailable {
		return err
	}
	return Failure{Code: CodeStoreUnavailable, Detail: op, Err: err}
}

// CodeOf returns the failure code carried by err, or "" when err is not a Failure.
func CodeOf(err error) string {
	var f Failure
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}
