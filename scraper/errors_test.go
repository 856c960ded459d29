package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "ok status", err: nil, statusCode: http.StatusOK, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusServiceUnavailable, expected: "status"},
		{name: "server error with cause", err: errors.New("Service Unavailable"), statusCode: http.StatusServiceUnavailable, expected: "status"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestClassifyErrorKeepsCause(t *testing.T) {
	cause := errors.New("Not Found")
	err := classifyError(cause, http.StatusNotFound)
	if !errors.Is(err, cause) {
		t.Fatalf("classified error should wrap its cause, got %v", err)
	}

	err = classifyError(errors.New("Bad Gateway"), http.StatusBadGateway)
	var status ErrStatus
	if !errors.As(err, &status) || status.Status != http.StatusBadGateway {
		t.Fatalf("expected ErrStatus 502, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "timeout", err: classifyError(context.DeadlineExceeded, 0), want: true},
		{name: "connection", err: classifyError(&net.OpError{Op: "dial", Err: errors.New("refused")}, 0), want: true},
		{name: "rate limited", err: classifyError(nil, http.StatusTooManyRequests), want: true},
		{name: "server error", err: classifyError(nil, http.StatusInternalServerError), want: true},
		{name: "not found", err: classifyError(nil, http.StatusNotFound), want: false},
		{name: "forbidden", err: classifyError(nil, http.StatusForbidden), want: false},
		{name: "client status", err: classifyError(nil, http.StatusBadRequest), want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Fatalf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
