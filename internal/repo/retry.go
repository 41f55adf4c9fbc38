// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides a bounded retry wrapper for store
// operations that fail transiently (busy database, dropped connection,
// serialization conflict). Constraint violations are never retried: they are
// data errors, not infrastructure hiccups, and retrying them cannot succeed.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// maxAttempts bounds how often WithRetry re-runs an operation.
const maxAttempts = 3

// retryBackoff is the base delay between attempts; attempt n waits n times
// this long.
const retryBackoff = 50 * time.Millisecond

// ErrDuplicate indicates a uniqueness-constraint violation on insert.
var ErrDuplicate = errors.New("duplicate")

// permanentError pins an error as non-retryable regardless of its text.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so WithRetry fails fast on it. Callers use it for
// failures raised by collaborators inside a transaction, where the error text
// may look like an infrastructure hiccup (a refused upstream connection, say)
// but re-running the store operation cannot help and repeats the side effect.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// WithRetry runs op, retrying only transient store failures up to
// maxAttempts. Any other error (including constraint violations and business
// errors raised inside op) propagates immediately. When attempts are
// exhausted the last transient error is returned.
//
// op must be safe to re-run from scratch: callers wrap a whole transaction,
// never half of one.
func WithRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return err
}

// IsTransient reports whether err looks like a recoverable infrastructure
// failure. Driver error types differ between SQLite and Postgres, so this
// matches on well-known message fragments, the same way unique violations
// are sniffed in IsConstraintViolation. Errors wrapped by Permanent never
// qualify, whatever their text says.
func IsTransient(err error) bool {
	if err == nil || IsConstraintViolation(err) {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	low := strings.ToLower(err.Error())
	for _, frag := range []string{
		"database is locked",
		"database table is locked",
		"database is busy",
		"connection refused",
		"connection reset",
		"broken pipe",
		"bad connection",
		"serialization failure",
		"could not serialize access",
		"deadlock detected",
	} {
		if strings.Contains(low, frag) {
			return true
		}
	}
	return false
}

// IsConstraintViolation reports whether err is an integrity-constraint
// failure (uniqueness, foreign key, not-null). glebarez/sqlite often returns
// plain-text errors for these, so both the GORM sentinel and message
// fragments are checked.
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	for _, frag := range []string{
		"unique constraint",
		"constraint failed",
		"duplicate key",
		"foreign key constraint",
		"not null constraint",
	} {
		if strings.Contains(low, frag) {
			return true
		}
	}
	return false
}

// asDuplicate maps a uniqueness violation to ErrDuplicate and passes every
// other error through unchanged.
func asDuplicate(err error) error {
	if err == nil {
		return nil
	}
	low := strings.ToLower(err.Error())
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key") {
		return ErrDuplicate
	}
	return err
}
