package llm

import (
	"context"
	"sync"
	"time"
)

// MockCoreLLM provides a configurable mock implementation of CoreLLM for
// testing middleware behavior, timing, and error handling.
type MockCoreLLM struct {
	mu sync.Mutex

	// Response configuration.
	Response      string
	TokensIn      int
	TokensOut     int
	Error         error
	Model         string
	ResponseDelay time.Duration

	// FailUntilAttempt makes the first N calls fail, then succeed.
	FailUntilAttempt int

	// Tracking.
	CallCount  int
	LastPrompt string
	LastOpts   map[string]any
}

// NewMockCoreLLM creates a mock with default successful behavior.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response:  "test response",
		TokensIn:  10,
		TokensOut: 20,
		Model:     "test-model",
	}
}

// DoRequest implements the CoreLLM interface with configurable behavior.
func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.CallCount++
	call := m.CallCount
	m.LastPrompt = prompt
	m.LastOpts = opts
	delay := m.ResponseDelay
	failUntil := m.FailUntilAttempt
	response, tokensIn, tokensOut := m.Response, m.TokensIn, m.TokensOut
	err := m.Error
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}

	if failUntil > 0 && call <= failUntil {
		if err == nil {
			err = NewProviderError("mock", ErrorTypeServerError, 500, "simulated failure", nil)
		}
		return "", 0, 0, err
	}

	if err != nil {
		return "", 0, 0, err
	}
	return response, tokensIn, tokensOut, nil
}

// GetModel returns the configured model name.
func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

// SetModel updates the model name.
func (m *MockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}

// GetCallCount returns the number of times DoRequest was called.
func (m *MockCoreLLM) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}
