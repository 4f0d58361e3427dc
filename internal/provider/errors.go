package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	ErrUnauthorized    = errors.New("provider: credentials rejected")
	ErrTimeout         = errors.New("provider: request timed out")
	ErrUnavailable     = errors.New("provider: temporarily unavailable")
	ErrNotSupported    = errors.New("provider: operation not supported")
	ErrUnknownProvider = errors.New("provider: unknown provider")
)

// ThrottledError is returned when a vendor (or the local limiter) refuses a
// request because of rate limits.
type ThrottledError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s: rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s: rate limited", e.Provider)
}

// StatusError is an unexpected HTTP status from a vendor.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("provider %s: HTTP %d: %s", e.Provider, e.Code, e.Body)
	}
	return fmt.Sprintf("provider %s: HTTP %d", e.Provider, e.Code)
}

// Unwrap maps server-side failures to ErrUnavailable so they classify as
// transient.
func (e *StatusError) Unwrap() error {
	if e.Code >= 500 {
		return ErrUnavailable
	}
	return nil
}

// ParseRetryAfter reads a Retry-After header given either in seconds or as
// an HTTP date.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
