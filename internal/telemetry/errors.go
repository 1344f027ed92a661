package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Error codes normalized from server bodies and transport failures. Server
// bodies follow {ok:false, error:<code>}; transport failures are mapped to
// the synthetic codes below.
const (
	CodeInvalidPairingCode = "invalid_or_expired_pairing_code"
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeNetworkError       = "network_error"
	CodeTimeout            = "timeout"
	CodeBadResponse        = "bad_response"
	CodeRequestFailed      = "request_failed"
)

// APIError classifies every failed request. Status is 0 for failures that
// never produced an HTTP response (network errors and client timeouts).
type APIError struct {
	Status     int
	Code       string
	RetryAfter time.Duration // parsed from Retry-After when present
	cause      error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("telemetry: %s (http %d)", e.Code, e.Status)
	}
	if e.cause != nil {
		return fmt.Sprintf("telemetry: %s: %v", e.Code, e.cause)
	}
	return fmt.Sprintf("telemetry: %s", e.Code)
}

func (e *APIError) Unwrap() error { return e.cause }

// Transient reports whether retrying the same request can succeed:
// HTTP 429, any 5xx, and all network/timeout failures.
func (e *APIError) Transient() bool {
	if e.Status == 0 {
		return true
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsUnauthorized reports whether err is an HTTP 401 failure, the only kind
// that invalidates the stored credential.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// AsAPIError extracts the classification from err, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// transportError maps a failed round trip (no HTTP response) to an
// APIError, distinguishing the client deadline from other failures.
func transportError(ctx context.Context, err error) *APIError {
	code := CodeNetworkError
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return &APIError{Status: 0, Code: code, cause: err}
}

// parseRetryAfter reads a Retry-After header value in either delta-seconds
// or HTTP-date form. Zero means absent or unparseable.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
