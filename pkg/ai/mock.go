package ai

import (
	"context"
	"encoding/json"
	"sync"
)

// MockResponse is a canned reply for MockGenerator.
type MockResponse struct {
	Content json.RawMessage
	Err     error
}

// MockGenerator is a deterministic Generator for tests. Canned responses are
// served FIFO; once they run out Handler is consulted if set.
type MockGenerator struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     []Request

	Handler func(ctx context.Context, req Request) (json.RawMessage, error)
}

// NewMockGenerator creates a MockGenerator with the given canned responses.
func NewMockGenerator(responses ...MockResponse) *MockGenerator {
	return &MockGenerator{responses: responses}
}

func (m *MockGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	if len(m.responses) > 0 {
		next := m.responses[0]
		m.responses = m.responses[1:]
		m.mu.Unlock()
		if next.Err != nil {
			return Response{}, next.Err
		}
		return Response{Content: next.Content, Model: "mock"}, nil
	}
	handler := m.Handler
	m.mu.Unlock()

	if handler == nil {
		return Response{}, &UnavailableError{}
	}
	content, err := handler(ctx, req)
	if err != nil {
		return Response{}, err
	}
	return Response{Content: content, Model: "mock"}, nil
}

func (m *MockGenerator) Model() string {
	return "mock"
}

// AddResponse queues another canned response.
func (m *MockGenerator) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// CallCount returns the number of Generate calls made so far.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded requests.
func (m *MockGenerator) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}
