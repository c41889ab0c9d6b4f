// Package notification delivers best-effort push messages for workflow events
// and keeps an in-memory log of what was sent.
package notification

import (
	"context"
	"errors"
	"sync"
)

// SendResult counts per-token outcomes of one Send call.
type SendResult struct {
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
}

// Gateway pushes one message to a set of device tokens. Implementations do not
// retry and do not dead-letter.
type Gateway interface {
	Send(ctx context.Context, tokens []string, title, body string, data map[string]string) (SendResult, error)
}

// NopGateway drops every message and reports all tokens as failed.
type NopGateway struct{}

func (NopGateway) Send(_ context.Context, tokens []string, _, _ string, _ map[string]string) (SendResult, error) {
	return SendResult{FailureCount: len(tokens)}, nil
}

// ---------------------------------------------------------------------------
// Mock Gateway (test double)
// ---------------------------------------------------------------------------

// SendCall records a single call to Send.
type SendCall struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
}

// MockGateway is a test double for Gateway.
type MockGateway struct {
	mu         sync.Mutex
	calls      []SendCall
	ShouldFail bool
	FailError  string
}

func (m *MockGateway) Send(_ context.Context, tokens []string, title, body string, data map[string]string) (SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SendCall{
		Tokens: append([]string(nil), tokens...),
		Title:  title,
		Body:   body,
		Data:   data,
	})
	if m.ShouldFail {
		return SendResult{FailureCount: len(tokens)}, errors.New(m.FailError)
	}
	return SendResult{SuccessCount: len(tokens)}, nil
}

// Calls returns a copy of recorded calls.
func (m *MockGateway) Calls() []SendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SendCall, len(m.calls))
	copy(out, m.calls)
	return out
}
