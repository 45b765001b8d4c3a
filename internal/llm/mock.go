package llm

import (
	"context"
	"sync"
)

// MockClient is a scriptable Client for tests and --mock-llm runs. Responses
// are served in order; when the script runs out the final entry repeats, and
// an empty script answers with "{}" so JSON consumers stay parseable.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	idx       int
	calls     []MockCall
	err       error
}

// MockCall records one invocation.
type MockCall struct {
	SystemPrompt string
	UserPrompt   string
}

// NewMockClient creates a mock serving the given responses in order.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// Fail makes every subsequent call return err.
func (m *MockClient) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem implements Client.
func (m *MockClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "{}", nil
	}
	resp := m.responses[m.idx]
	if m.idx < len(m.responses)-1 {
		m.idx++
	}
	return resp, nil
}

// Calls returns a copy of all recorded invocations.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}
