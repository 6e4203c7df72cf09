package recognizer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockRecognizer is a Recognizer for testing. Respond decides each answer;
// when nil, every call returns Text.
type MockRecognizer struct {
	Text    string
	Latency time.Duration
	Respond func(req Request, call int) (string, error)

	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64

	mu       sync.Mutex
	requests []Request
}

// NewMockRecognizer creates a mock that answers every call with text.
func NewMockRecognizer(text string) *MockRecognizer {
	return &MockRecognizer{Text: text}
}

// Name returns the client identifier.
func (m *MockRecognizer) Name() string {
	return MockName
}

// Recognize records the request and returns the scripted answer.
func (m *MockRecognizer) Recognize(ctx context.Context, req Request) (string, error) {
	call := int(m.calls.Add(1))

	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.Latency):
		}
	}

	if m.Respond != nil {
		return m.Respond(req, call)
	}
	return m.Text, nil
}

// Calls returns how many times Recognize was called.
func (m *MockRecognizer) Calls() int {
	return int(m.calls.Load())
}

// PeakConcurrency returns the largest number of simultaneous calls observed.
func (m *MockRecognizer) PeakConcurrency() int {
	return int(m.peak.Load())
}

// Requests returns a copy of every request received.
func (m *MockRecognizer) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}
