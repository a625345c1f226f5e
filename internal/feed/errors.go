package feed

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// RateLimitedError is returned for HTTP 429. RetryAfter is only meaningful
// when HasRetryAfter is true.
type RateLimitedError struct {
	RetryAfter    time.Duration
	HasRetryAfter bool
}

func (e *RateLimitedError) Error() string {
	if e.HasRetryAfter {
		return fmt.Sprintf("feed rate limited (retry after %s)", e.RetryAfter)
	}
	return "feed rate limited"
}

// HTTPError is returned for any other status >= 400.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("feed http error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// TransportError wraps network-level failures (timeout, DNS, reset, body read).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "feed transport error: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ParseError is returned when a 2xx body is not a JSON array.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "feed parse error: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// AsRateLimited unwraps err into a *RateLimitedError.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

func IsRateLimited(err error) bool {
	_, ok := AsRateLimited(err)
	return ok
}

// Kind names the failure class of err for logs and metrics.
func Kind(err error) string {
	var (
		rl *RateLimitedError
		he *HTTPError
		te *TransportError
		pe *ParseError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.As(err, &he):
		return "http_error"
	case errors.As(err, &te):
		return "transport_error"
	case errors.As(err, &pe):
		return "parse_error"
	default:
		return "error"
	}
}
