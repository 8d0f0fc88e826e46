package services

import (
	"context"
	"strconv"
	"sync"
)

// MockTransport records every send and replays scripted outcomes. Used by
// engine tests and as the default transport when no provider is configured.
type MockTransport struct {
	name string

	mu       sync.Mutex
	sent     []SendRequest
	outcomes []mockOutcome
	nextID   int
}

type mockOutcome struct {
	outcome SendOutcome
	err     error
}

func NewMockTransport(name string) *MockTransport {
	return &MockTransport{name: name}
}

func (m *MockTransport) Name() string { return m.name }

// Script enqueues the result for the next send; unscripted sends succeed
func (m *MockTransport) Script(outcome SendOutcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, mockOutcome{outcome: outcome, err: err})
}

func (m *MockTransport) Send(ctx context.Context, req SendRequest) (SendOutcome, error) {
	if err := ctx.Err(); err != nil {
		return SendOutcome{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, req)

	if len(m.outcomes) > 0 {
		next := m.outcomes[0]
		m.outcomes = m.outcomes[1:]
		return next.outcome, next.err
	}

	m.nextID++
	return SendOutcome{ExternalID: m.name + "-" + strconv.Itoa(m.nextID), CostAmount: 0.01}, nil
}

// SentRequests returns a copy of everything sent through this transport
func (m *MockTransport) SentRequests() []SendRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SendRequest, len(m.sent))
	copy(out, m.sent)
	return out
}

// Clear drops recorded sends and pending scripted outcomes
func (m *MockTransport) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.outcomes = nil
}
