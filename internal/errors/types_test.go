package errors

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "explicit transient error",
			err:      NewTransientError(errors.New("test"), "transient"),
			expected: true,
		},
		{
			name:     "explicit permanent error",
			err:      NewPermanentError(errors.New("test"), "permanent"),
			expected: false,
		},
		{
			name:     "content blocked",
			err:      NewContentBlockedError(errors.New("test"), "SAFETY", "blocked"),
			expected: false,
		},
		{
			name:     "rate limit 429",
			err:      fmt.Errorf("API error 429: rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error 500",
			err:      fmt.Errorf("HTTP 500: internal server error"),
			expected: true,
		},
		{
			name:     "service unavailable 503",
			err:      fmt.Errorf("API request failed with status 503: overloaded"),
			expected: true,
		},
		{
			name:     "bad request 400",
			err:      fmt.Errorf("API request failed with status 400: bad request"),
			expected: false,
		},
		{
			name:     "unauthorized 401",
			err:      fmt.Errorf("HTTP 401: unauthorized"),
			expected: false,
		},
		{
			name:     "connection refused",
			err:      fmt.Errorf("dial tcp: connection refused"),
			expected: true,
		},
		{
			name:     "deadline exceeded",
			err:      fmt.Errorf("context deadline exceeded"),
			expected: true,
		},
		{
			name:     "syscall ECONNRESET",
			err:      syscall.ECONNRESET,
			expected: true,
		},
		{
			name:     "plain error",
			err:      errors.New("something odd"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.expected {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsContentBlocked(t *testing.T) {
	blocked := NewContentBlockedError(errors.New("safety"), "SAFETY", "I can't help with that.")
	if !IsContentBlocked(blocked) {
		t.Fatal("expected content blocked error to be detected")
	}
	wrapped := fmt.Errorf("dispatch: %w", blocked)
	if !IsContentBlocked(wrapped) {
		t.Fatal("expected wrapped content blocked error to be detected")
	}
	if IsContentBlocked(errors.New("ordinary")) {
		t.Fatal("ordinary error must not look blocked")
	}
}

func TestGetErrorType(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{"transient", NewTransientError(errors.New("x"), ""), ErrorTypeTransient},
		{"permanent", NewPermanentError(errors.New("x"), ""), ErrorTypePermanent},
		{"blocked", NewContentBlockedError(errors.New("x"), "SAFETY", ""), ErrorTypeContentBlocked},
		{"unknown defaults to permanent", errors.New("mystery"), ErrorTypePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorType(tt.err); got != tt.expected {
				t.Errorf("GetErrorType(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestFormatForUserPrefersCustomMessage(t *testing.T) {
	err := NewTransientError(errors.New("HTTP 429"), "Hold on, the model needs a breather.")
	if got := FormatForUser(err); got != "Hold on, the model needs a breather." {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestFormatForUserMapsRateLimit(t *testing.T) {
	got := FormatForUser(fmt.Errorf("API error 429: rate limit exceeded"))
	if got == "" || got == "API error 429: rate limit exceeded" {
		t.Errorf("expected friendly rate limit message, got %q", got)
	}
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("root cause")
	transient := NewTransientError(cause, "msg")
	if !errors.Is(transient, cause) {
		t.Fatal("transient error should unwrap to its cause")
	}
	permanent := NewPermanentError(cause, "msg")
	if !errors.Is(permanent, cause) {
		t.Fatal("permanent error should unwrap to its cause")
	}
}
