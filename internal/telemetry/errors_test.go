package telemetry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"delta seconds", "2", 2 * time.Second},
		{"zero seconds", "0", 0},
		{"negative seconds", "-5", 0},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{"http date in past", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value, now); got != tt.want {
				t.Fatalf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name   string
		err    *APIError
		want   bool
	}{
		{"network", &APIError{Status: 0, Code: CodeNetworkError}, true},
		{"timeout", &APIError{Status: 0, Code: CodeTimeout}, true},
		{"429", &APIError{Status: http.StatusTooManyRequests, Code: CodeRequestFailed}, true},
		{"500", &APIError{Status: http.StatusInternalServerError, Code: CodeRequestFailed}, true},
		{"503", &APIError{Status: http.StatusServiceUnavailable, Code: CodeRequestFailed}, true},
		{"401", &APIError{Status: http.StatusUnauthorized, Code: CodeUnauthorized}, false},
		{"400", &APIError{Status: http.StatusBadRequest, Code: CodeBadRequest}, false},
		{"404", &APIError{Status: http.StatusNotFound, Code: CodeRequestFailed}, false},
		{"bad response", &APIError{Status: http.StatusOK, Code: CodeBadResponse}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Transient(); got != tt.want {
				t.Fatalf("Transient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUnauthorized(t *testing.T) {
	if !IsUnauthorized(&APIError{Status: http.StatusUnauthorized}) {
		t.Fatal("401 not recognized")
	}
	if IsUnauthorized(&APIError{Status: http.StatusForbidden}) {
		t.Fatal("403 misclassified as unauthorized")
	}
	if IsUnauthorized(errors.New("plain")) {
		t.Fatal("plain error misclassified as unauthorized")
	}
	// Classification survives wrapping.
	wrapped := &APIError{Status: http.StatusUnauthorized, cause: errors.New("inner")}
	if !IsUnauthorized(wrapped) {
		t.Fatal("wrapped 401 not recognized")
	}
}

func TestTransportErrorDistinguishesTimeout(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	apiErr := transportError(ctx, ctx.Err())
	if apiErr.Code != CodeTimeout {
		t.Fatalf("Code = %q, want %q", apiErr.Code, CodeTimeout)
	}
	if apiErr.Status != 0 {
		t.Fatalf("Status = %d, want 0", apiErr.Status)
	}

	plain := transportError(context.Background(), errors.New("connection refused"))
	if plain.Code != CodeNetworkError {
		t.Fatalf("Code = %q, want %q", plain.Code, CodeNetworkError)
	}
}
