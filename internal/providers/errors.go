package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownMethod is returned for serving methods with no configured model.
var ErrUnknownMethod = errors.New("unknown method")

// TransientError marks a failure worth retrying, such as an unavailable
// serving endpoint.
type TransientError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient error (status %d): %s", e.StatusCode, e.Message)
	}
	return "transient error: " + e.Message
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimitError is a 429 from a backend, with the server's Retry-After.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError returns the RateLimitError in err's chain, if any.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if _, ok := IsRateLimitError(err); ok {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	for _, s := range []string{
		"status 500", "status 502", "status 503", "status 504", "status 429",
		"connection refused", "connection reset", "timeout", "EOF",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// classifyStatus wraps a backend HTTP failure, marking retryable codes.
func classifyStatus(backend string, status int, msg string, header http.Header) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:    fmt.Sprintf("%s rate limited: %s", backend, msg),
			RetryAfter: parseRetryAfter(header.Get("Retry-After")),
			StatusCode: status,
		}
	case status >= 500, status == http.StatusRequestTimeout:
		return &TransientError{StatusCode: status, Message: fmt.Sprintf("%s: %s", backend, msg)}
	default:
		return fmt.Errorf("%s error (status %d): %s", backend, status, msg)
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
