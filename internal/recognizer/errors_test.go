package recognizer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      string
		retryable bool
	}{
		{
			name:      "rate limited",
			err:       &APIError{Provider: "openai", StatusCode: 429, Type: "rate_limit_error"},
			kind:      KindRateLimit,
			retryable: true,
		},
		{
			name: "quota exhausted",
			err:  &APIError{Provider: "openai", StatusCode: 429, Type: "insufficient_quota", Code: "insufficient_quota"},
			kind: KindQuotaExhausted,
		},
		{
			name: "invalid request",
			err:  &APIError{Provider: "openai", StatusCode: 400, Type: "invalid_request_error"},
			kind: KindInvalidRequest,
		},
		{
			name: "other client error",
			err:  &APIError{Provider: "gemini", StatusCode: 403, Type: "PERMISSION_DENIED"},
			kind: KindClient,
		},
		{
			name:      "service unavailable",
			err:       &APIError{Provider: "openai", StatusCode: 503},
			kind:      KindServer,
			retryable: true,
		},
		{
			name:      "request timeout",
			err:       &APIError{Provider: "openai", StatusCode: 408},
			kind:      KindTimeout,
			retryable: true,
		},
		{
			name:      "wrapped api error",
			err:       fmt.Errorf("page 12: %w", &APIError{Provider: "openai", StatusCode: 502}),
			kind:      KindServer,
			retryable: true,
		},
		{
			name:      "connection reset",
			err:       &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)},
			kind:      KindNetwork,
			retryable: true,
		},
		{
			name:      "connection refused",
			err:       fmt.Errorf("dial: %w", syscall.ECONNREFUSED),
			kind:      KindNetwork,
			retryable: true,
		},
		{
			name:      "host not found",
			err:       &net.DNSError{Err: "no such host", Name: "api.example.com", IsNotFound: true},
			kind:      KindNetwork,
			retryable: true,
		},
		{
			name:      "empty response",
			err:       ErrEmptyResponse,
			kind:      KindEmptyResponse,
			retryable: true,
		},
		{
			name:      "refusal",
			err:       fmt.Errorf("%w: policy", ErrModelRefusal),
			kind:      KindModelRefusal,
			retryable: true,
		},
		{
			name: "cancelled",
			err:  fmt.Errorf("recognize: %w", context.Canceled),
			kind: KindCancelled,
		},
		{
			name:      "unknown",
			err:       errors.New("something odd"),
			kind:      KindUnknown,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", got.Kind, tt.kind)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if IsRetryable(tt.err) != tt.retryable {
				t.Errorf("IsRetryable disagrees with Classify")
			}
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Provider: "openai", StatusCode: 400, Type: "invalid_request_error", Message: "bad image"}
	want := "openai error (status 400, invalid_request_error): bad image"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
