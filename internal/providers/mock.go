package providers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const MockModelName = "mock"

// MockModel is a scripted Model for tests.
type MockModel struct {
	// Raw is returned for every page unless RawFor is set.
	Raw string
	// RawFor picks the output per call, keyed by 1-indexed call number.
	RawFor func(call int) string
	// TokenCount is reported per successful call.
	TokenCount int
	// Latency delays each call.
	Latency time.Duration
	// FailFirst makes the first N calls fail with Err.
	FailFirst int
	// FailWhen fails a call when it returns non-nil. It receives the request
	// so tests can target a specific page image.
	FailWhen func(req GenerateRequest) error
	// Err is the error used by FailFirst; defaults to a transient 503.
	Err error

	calls atomic.Int64

	mu       sync.Mutex
	requests []GenerateRequest
}

// NewMockModel creates a mock that returns raw for every call.
func NewMockModel(raw string) *MockModel {
	return &MockModel{Raw: raw, TokenCount: 10}
}

// Name returns the mock identifier.
func (m *MockModel) Name() string {
	return MockModelName
}

// Calls returns how many times Generate ran.
func (m *MockModel) Calls() int {
	return int(m.calls.Load())
}

// Requests returns a copy of every request received.
func (m *MockModel) Requests() []GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GenerateRequest(nil), m.requests...)
}

// Generate returns the scripted output or failure.
func (m *MockModel) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	n := int(m.calls.Add(1))
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.FailWhen != nil {
		if err := m.FailWhen(req); err != nil {
			return nil, err
		}
	}
	if n <= m.FailFirst {
		if m.Err != nil {
			return nil, m.Err
		}
		return nil, &TransientError{StatusCode: 503, Message: "mock unavailable"}
	}

	raw := m.Raw
	if m.RawFor != nil {
		raw = m.RawFor(n)
	}
	return &GenerateResult{
		Raw:          raw,
		TokenCount:   m.TokenCount,
		FinishReason: "stop",
	}, nil
}

var _ Model = (*MockModel)(nil)
