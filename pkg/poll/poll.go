// Package poll implements retry-with-timeout waiting on a predicate.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	// DefaultTimeout for waiting operations
	DefaultTimeout = 5 * time.Minute
	// DefaultInterval between polling attempts
	DefaultInterval = 5 * time.Second
)

// Predicate reports whether the awaited condition holds. A returned error is remembered
// as the last error and polling continues.
type Predicate func(ctx context.Context) (bool, error)

// TimeoutError is returned when the predicate did not hold before the timeout.
type TimeoutError struct {
	Message string
	Timeout time.Duration
	// LastErr is the last error returned by the predicate, if any.
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %v", e.Timeout)
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", e.Message, msg)
	}
	if e.LastErr != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.LastErr)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

// PermanentError stops polling immediately. Until returns the wrapped error.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Until polls predicate every interval until it holds, the timeout expires or ctx is
// cancelled. The predicate is evaluated immediately on entry. A predicate error wrapped
// with Permanent ends polling with that error.
func Until(ctx context.Context, predicate Predicate, timeout, interval time.Duration, message string) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	var lastErr error
	var permanent *PermanentError
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		ok, err := predicate(ctx)
		if errors.As(err, &permanent) {
			return false, err
		}
		if err != nil {
			lastErr = err
			return false, nil
		}
		return ok, nil
	})
	if err == nil {
		return nil
	}
	if permanent != nil {
		return fmt.Errorf("%s: %w", message, permanent.Err)
	}

	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", message, ctx.Err())
	}
	return &TimeoutError{Message: message, Timeout: timeout, LastErr: lastErr}
}
