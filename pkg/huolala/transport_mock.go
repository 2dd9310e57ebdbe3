package huolala

import (
	"context"
	"strings"
	"sync"
	"time"
)

// SentRequest is a request captured by MockTransport.
type SentRequest struct {
	URL  string
	Body []byte
}

// MockTransport is a Transport returning canned responses, for tests and dry runs.
type MockTransport struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	// Responses maps a URL prefix to a canned body. The longest matching prefix wins.
	Responses map[string][]byte

	OnSend func(ctx context.Context, url string, body []byte) ([]byte, error)

	mu       sync.Mutex
	requests []SentRequest
}

// NewMockTransport creates a new mock transport with default behavior.
func NewMockTransport() *MockTransport {
	return &MockTransport{Responses: make(map[string][]byte)}
}

// Send records the request and returns a canned response.
func (m *MockTransport) Send(ctx context.Context, url string, body []byte) ([]byte, error) {
	m.mu.Lock()
	m.requests = append(m.requests, SentRequest{URL: url, Body: append([]byte(nil), body...)})
	m.mu.Unlock()

	if m.SimulateLatency > 0 {
		select {
		case <-time.After(m.SimulateLatency):
		case <-ctx.Done():
			return nil, NewTransportError(StageSend, "TIMEOUT", "mock request cancelled").WithCause(ctx.Err())
		}
	}

	if m.SimulateErrors {
		return nil, NewTransportError(StageSend, "MOCK_ERROR", "simulated transport error")
	}

	if m.OnSend != nil {
		return m.OnSend(ctx, url, body)
	}

	var best string
	for prefix := range m.Responses {
		if strings.HasPrefix(url, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if resp, ok := m.Responses[best]; ok {
		return resp, nil
	}
	return []byte(`{"ret":0,"msg":"success","data":{}}`), nil
}

// Requests returns a copy of every captured request.
func (m *MockTransport) Requests() []SentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of captured requests whose URL contains substr.
func (m *MockTransport) RequestCount(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if strings.Contains(r.URL, substr) {
			n++
		}
	}
	return n
}

var _ Transport = (*MockTransport)(nil)
