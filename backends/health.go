package backends

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// DefaultTimeout bounds every store call when a backend config leaves its
// timeout unset.
const DefaultTimeout = 100 * time.Millisecond

// ErrUnavailable is a sentinel used to signal that the store is unreachable
// or did not answer in time.
var ErrUnavailable = errors.New("store unavailable")

// UnavailableError wraps an underlying cause with operation context.
// Use for connectivity/auth/TLS/timeout issues, never for "key absent".
type UnavailableError struct {
	Op    string // logical operation context, e.g. "redis:Incr", "postgres:Ping"
	Cause error  // underlying error returned by driver/client
}

// Error returns a formatted error message that includes the operation context and underlying cause.
// For an UnavailableError with Op="redis:Incr" and Cause="connection refused", this returns:
// "store unavailable: redis:Incr: connection refused"
func (e *UnavailableError) Error() string {
	if e == nil {
		return ErrUnavailable.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", ErrUnavailable, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: %v", ErrUnavailable, e.Cause)
}

// Unwrap returns the underlying cause error, enabling error chaining with errors.Unwrap.
func (e *UnavailableError) Unwrap() error { return e.Cause }

// Is implements errors.Is to allow matching against the ErrUnavailable sentinel.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// NewUnavailableError wraps a cause as an unavailability error with context.
// If cause is nil, the sentinel ErrUnavailable is returned.
func NewUnavailableError(op string, cause error) error {
	if cause == nil {
		return ErrUnavailable
	}
	return &UnavailableError{Op: op, Cause: cause}
}

// IsUnavailable reports whether err indicates the store could not be reached.
// It returns false for regular operational errors (bad arguments, wrong type)
// that say nothing about store health.
func IsUnavailable(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// MaybeConnError checks if the error is a connectivity issue using the provided patterns.
//
// The op parameter should describe the operation being performed (e.g., "redis:Incr", "postgres:Ping").
// patterns contains lowercase string patterns to match against error messages.
// If patterns is nil, no pattern matching is performed.
//
// Returns an UnavailableError if the error matches any pattern, is a context
// error or a net.Error, otherwise returns the original error.
func MaybeConnError(op string, err error, patterns []string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return NewUnavailableError(op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewUnavailableError(op, err)
	}

	if patterns != nil {
		errStr := strings.ToLower(err.Error())
		for _, pattern := range patterns {
			if strings.Contains(errStr, pattern) {
				return NewUnavailableError(op, err)
			}
		}
	}

	return err
}

// WithTimeout derives the context a single store call runs under. A
// non-positive timeout leaves ctx untouched.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
