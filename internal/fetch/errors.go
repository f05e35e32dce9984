package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fedifetch/internal/safety"
)

// TimeoutError means a request exceeded its deadline. Retryable.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.URL, e.Timeout)
}

// StatusError is a non-2xx, non-304 HTTP response. Retryable; surfaced
// after attempts are exhausted.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s returned HTTP %d", e.URL, e.StatusCode)
}

// TooLargeError means a response exceeded the configured size ceiling.
// Not retried: the resource will not shrink between attempts.
type TooLargeError struct {
	URL           string
	ContentLength int64
	Limit         int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("response from %s exceeds %d byte limit", e.URL, e.Limit)
}

// SchemaError means a remote payload did not deserialize into, or did not
// validate as, the expected shape. Not retried.
type SchemaError struct {
	URL string
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("response from %s failed validation: %v", e.URL, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// retryable reports whether another attempt could plausibly succeed.
// Policy rejections, oversized responses, and caller cancellation are
// terminal; timeouts, HTTP status failures, and transport errors are not.
func retryable(err error) bool {
	var (
		unsafeErr  *safety.UnsafeTargetError
		blockedErr *safety.BlockedInstanceError
		largeErr   *TooLargeError
	)
	switch {
	case errors.As(err, &unsafeErr),
		errors.As(err, &blockedErr),
		errors.As(err, &largeErr):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}
