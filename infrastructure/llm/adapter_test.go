package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/quorum/internal/domain"
)

// newTestAdapter registers a factory backed by the given mock and builds
// an adapter around it. Retries are disabled so call counts stay exact.
func newTestAdapter(t *testing.T, mock *MockCoreLLM, config AdapterConfig) *Adapter {
	t.Helper()

	providerType := "stub-" + t.Name()
	RegisterProviderFactory(providerType, func(cfg ClientConfig) (CoreLLM, error) {
		mock.SetModel(cfg.Model)
		return mock, nil
	})

	config.Type = providerType
	if config.ID == "" {
		config.ID = "stub"
	}
	if config.Model == "" {
		config.Model = "stub-model"
	}
	if config.APIKey == "" {
		config.APIKey = "test-key"
	}
	config.Enabled = true

	prices := NewPriceTable()
	prices.Set(config.ID, config.Model, ModelPrice{InputPerMillion: 1.0, OutputPerMillion: 2.0})

	adapter, err := NewAdapter(config, nil, prices)
	require.NoError(t, err, "adapter construction should succeed")
	return adapter
}

// TestAdapter_CallReturnsSuccessEnvelope tests that a successful backend
// call produces a fully populated success envelope.
func TestAdapter_CallReturnsSuccessEnvelope(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Response = "the answer"
	mock.TokensIn = 1_000_000
	mock.TokensOut = 500_000
	adapter := newTestAdapter(t, mock, AdapterConfig{})

	query := domain.NewQuery(1, "req-1", "what is the answer?", "")
	env := adapter.Call(context.Background(), query)

	assert.Equal(t, domain.StatusSuccess, env.Status, "status should be success")
	assert.Equal(t, "stub", env.Provider, "provider id should be set")
	assert.Equal(t, "stub-model", env.Model, "model should be set")
	assert.Equal(t, "the answer", env.Text, "text should carry the response")
	assert.Equal(t, 1_000_000, env.TokensIn, "input tokens should be reported")
	assert.Equal(t, 500_000, env.TokensOut, "output tokens should be reported")
	assert.InDelta(t, 2.0, env.CostUSD, 1e-9, "cost should follow the price table")
	assert.False(t, env.Cached, "fresh call should not be marked cached")
	assert.Equal(t, "what is the answer?", mock.LastPrompt, "raw query text should reach the backend")
}

// TestAdapter_MissingCredentialsFailsFast tests that an adapter without an
// API key produces a missing-credentials envelope without any call.
func TestAdapter_MissingCredentialsFailsFast(t *testing.T) {
	adapter, err := NewAdapter(AdapterConfig{
		ID:      "openai",
		Model:   "gpt-4.1-mini",
		Enabled: true,
	}, nil, nil)
	require.NoError(t, err, "keyless adapter should still construct")

	assert.True(t, adapter.Enabled(), "keyless adapter should stay enabled")
	assert.False(t, adapter.HasCredentials(), "adapter should report missing credentials")

	env := adapter.Call(context.Background(), domain.NewQuery(1, "req-1", "hello", ""))

	assert.Equal(t, domain.StatusError, env.Status, "status should be error")
	assert.Equal(t, domain.ErrorKindMissingCredentials, env.ErrorKind, "kind should be missing-credentials")
	assert.Zero(t, env.Latency, "no network call should have been made")
}

// TestAdapter_ClassifiesProviderFailures tests that backend failures map
// onto the error taxonomy.
func TestAdapter_ClassifiesProviderFailures(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = NewProviderError("stub", ErrorTypeAuthentication, 401, "invalid key", nil)
	adapter := newTestAdapter(t, mock, AdapterConfig{})

	env := adapter.Call(context.Background(), domain.NewQuery(1, "req-1", "hello", ""))

	assert.Equal(t, domain.StatusError, env.Status, "status should be error")
	assert.Equal(t, domain.ErrorKindProviderDeclined, env.ErrorKind, "auth failure should map to provider-declined")
	assert.NotEmpty(t, env.ErrorMessage, "error message should be carried")
	assert.Equal(t, 1, mock.GetCallCount(), "permanent failure should not be retried")
}

// TestAdapter_TimeoutProducesTimeoutEnvelope tests that a slow backend is
// cut off by the adapter timeout and reported as a timeout.
func TestAdapter_TimeoutProducesTimeoutEnvelope(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.ResponseDelay = 200 * time.Millisecond
	adapter := newTestAdapter(t, mock, AdapterConfig{Timeout: 20 * time.Millisecond})

	env := adapter.Call(context.Background(), domain.NewQuery(1, "req-1", "hello", ""))

	assert.Equal(t, domain.StatusTimeout, env.Status, "status should be timeout")
	assert.Equal(t, domain.ErrorKindTimeout, env.ErrorKind, "kind should be timeout")
}

// TestAdapter_CircuitOpenEnvelopeAfterRepeatedFailures tests that the
// breaker trips after consecutive failures and later calls short-circuit.
func TestAdapter_CircuitOpenEnvelopeAfterRepeatedFailures(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = NewProviderError("stub", ErrorTypeServerError, 503, "unavailable", nil)
	adapter := newTestAdapter(t, mock, AdapterConfig{
		BreakerMaxFailures: 2,
		BreakerCooldown:    time.Minute,
	})

	ctx := context.Background()
	query := domain.NewQuery(1, "req-1", "hello", "")

	env1 := adapter.Call(ctx, query)
	env2 := adapter.Call(ctx, query)
	assert.Equal(t, domain.ErrorKindTransport, env1.ErrorKind, "first failure should be transport")
	assert.Equal(t, domain.ErrorKindTransport, env2.ErrorKind, "second failure should be transport")
	assert.True(t, adapter.CircuitOpen(), "breaker should be open after max failures")

	env3 := adapter.Call(ctx, query)
	assert.Equal(t, domain.ErrorKindCircuitOpen, env3.ErrorKind, "third call should short-circuit")
	assert.Equal(t, 2, mock.GetCallCount(), "open circuit should not reach the backend")
}

// TestAdapter_DefaultBreakerTripsAfterFiveFailures tests the stock
// threshold: five consecutive failures open the circuit and the sixth
// call never reaches the backend.
func TestAdapter_DefaultBreakerTripsAfterFiveFailures(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = NewProviderError("stub", ErrorTypeServerError, 503, "unavailable", nil)
	adapter := newTestAdapter(t, mock, AdapterConfig{})

	ctx := context.Background()
	query := domain.NewQuery(1, "req-1", "hello", "")

	for i := 0; i < DefaultBreakerMaxFailures; i++ {
		env := adapter.Call(ctx, query)
		assert.Equal(t, domain.ErrorKindTransport, env.ErrorKind, "failure %d should be transport", i+1)
	}
	require.True(t, adapter.CircuitOpen(), "breaker should open at the default threshold")

	env := adapter.Call(ctx, query)
	assert.Equal(t, domain.ErrorKindCircuitOpen, env.ErrorKind, "the next call should short-circuit")
	assert.Equal(t, DefaultBreakerMaxFailures, mock.GetCallCount(),
		"the short-circuited call must not reach the backend")
}

// TestAdapter_DescribeReportsConfiguration tests the static descriptor.
func TestAdapter_DescribeReportsConfiguration(t *testing.T) {
	mock := NewMockCoreLLM()
	adapter := newTestAdapter(t, mock, AdapterConfig{
		DisplayName: "Stub Provider",
		Timeout:     5 * time.Second,
	})

	desc := adapter.Describe()

	assert.Equal(t, "stub", desc.ID, "id should match")
	assert.Equal(t, "Stub Provider", desc.DisplayName, "display name should match")
	assert.Equal(t, "stub-model", desc.Model, "model should match")
	assert.Equal(t, 5*time.Second, desc.Timeout, "timeout should match")
	assert.True(t, desc.Enabled, "adapter should be enabled")
	assert.True(t, desc.HasCredentials, "adapter should report credentials")
}
