package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"
)

// APIError is a structured error returned by a hosted model.
type APIError struct {
	Provider   string
	StatusCode int
	Type       string // e.g. "invalid_request_error", "RESOURCE_EXHAUSTED"
	Code       string // e.g. "insufficient_quota"
	Message    string
	RequestID  string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	tag := e.Type
	if tag == "" {
		tag = e.Code
	}
	if tag != "" {
		return fmt.Sprintf("%s error (status %d, %s): %s", e.Provider, e.StatusCode, tag, e.Message)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Failure kinds reported by Classify.
const (
	KindEmptyResponse  = "empty_response"
	KindModelRefusal   = "model_refusal"
	KindRateLimit      = "rate_limit"
	KindServer         = "server_error"
	KindTimeout        = "timeout"
	KindNetwork        = "network"
	KindQuotaExhausted = "quota_exhausted"
	KindInvalidRequest = "invalid_request"
	KindClient         = "client_error"
	KindCancelled      = "cancelled"
	KindUnknown        = "unknown"
)

// Failure is the classification of a recognition error.
type Failure struct {
	Kind      string
	Retryable bool
}

// Classify sorts an error into the retry taxonomy. Errors that are not
// recognized are treated as retryable; the caller's attempt bound still applies.
func Classify(err error) Failure {
	switch {
	case err == nil:
		return Failure{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Failure{Kind: KindCancelled}
	case errors.Is(err, ErrEmptyResponse):
		return Failure{Kind: KindEmptyResponse, Retryable: true}
	case errors.Is(err, ErrModelRefusal):
		return Failure{Kind: KindModelRefusal, Retryable: true}
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return Failure{Kind: KindNetwork, Retryable: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Failure{Kind: KindNetwork, Retryable: true}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Failure{Kind: KindTimeout, Retryable: true}
	}

	return Failure{Kind: KindUnknown, Retryable: true}
}

func classifyAPIError(e *APIError) Failure {
	if e.Type == "insufficient_quota" || e.Code == "insufficient_quota" {
		return Failure{Kind: KindQuotaExhausted}
	}
	if e.Type == "invalid_request_error" {
		return Failure{Kind: KindInvalidRequest}
	}

	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return Failure{Kind: KindRateLimit, Retryable: true}
	case e.StatusCode == http.StatusRequestTimeout:
		return Failure{Kind: KindTimeout, Retryable: true}
	case e.StatusCode >= 500:
		return Failure{Kind: KindServer, Retryable: true}
	case e.StatusCode >= 400:
		return Failure{Kind: KindClient}
	}
	return Failure{Kind: KindUnknown, Retryable: true}
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	return Classify(err).Retryable
}

// IsRateLimited reports whether err is a 429 from a hosted model.
func IsRateLimited(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return apiErr, true
	}
	return nil, false
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
