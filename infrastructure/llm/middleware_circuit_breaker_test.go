package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCircuitBreakerMiddleware_AllowsRequestsWhenClosed tests that the
// circuit breaker passes requests through in the closed state.
func TestCircuitBreakerMiddleware_AllowsRequestsWhenClosed(t *testing.T) {
	mock := NewMockCoreLLM()
	middleware := CircuitBreakerMiddleware(3, 100*time.Millisecond)
	wrapped := middleware(mock)

	response, tokensIn, tokensOut, err := wrapped.DoRequest(context.Background(), "test prompt", nil)

	require.NoError(t, err, "request should succeed when circuit is closed")
	assert.Equal(t, "test response", response, "response should match")
	assert.Equal(t, 10, tokensIn, "input tokens should match")
	assert.Equal(t, 20, tokensOut, "output tokens should match")
	assert.Equal(t, 1, mock.GetCallCount(), "should call underlying implementation once")
}

// TestCircuitBreakerMiddleware_OpensAfterMaxFailures tests that the circuit
// opens after the configured number of consecutive failures.
func TestCircuitBreakerMiddleware_OpensAfterMaxFailures(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("service error")
	middleware := CircuitBreakerMiddleware(2, 100*time.Millisecond)
	wrapped := middleware(mock)

	ctx := context.Background()

	_, _, _, err1 := wrapped.DoRequest(ctx, "test 1", nil)
	_, _, _, err2 := wrapped.DoRequest(ctx, "test 2", nil)
	require.Error(t, err1, "first request should fail")
	require.Error(t, err2, "second request should fail")

	_, _, _, err3 := wrapped.DoRequest(ctx, "test 3", nil)
	require.Error(t, err3, "third request should fail")
	assert.ErrorIs(t, err3, ErrCircuitOpen, "should return circuit open error")
	assert.Equal(t, 2, mock.GetCallCount(), "should not call underlying implementation when circuit is open")
}

// TestCircuitBreakerMiddleware_RemainsOpenDuringCooldown tests that the
// circuit rejects requests for the whole cooldown period.
func TestCircuitBreakerMiddleware_RemainsOpenDuringCooldown(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("service error")
	middleware := CircuitBreakerMiddleware(1, 100*time.Millisecond)
	wrapped := middleware(mock)

	ctx := context.Background()

	_, _, _, err1 := wrapped.DoRequest(ctx, "test 1", nil)
	require.Error(t, err1, "first request should fail")

	_, _, _, err2 := wrapped.DoRequest(ctx, "test 2", nil)
	_, _, _, err3 := wrapped.DoRequest(ctx, "test 3", nil)

	assert.ErrorIs(t, err2, ErrCircuitOpen, "should fail with circuit open during cooldown")
	assert.ErrorIs(t, err3, ErrCircuitOpen, "should fail with circuit open during cooldown")
	assert.Equal(t, 1, mock.GetCallCount(), "should not call underlying implementation during cooldown")
}

// TestCircuitBreakerMiddleware_RecoversAfterCooldown tests that a
// successful probe after the cooldown closes the circuit again.
func TestCircuitBreakerMiddleware_RecoversAfterCooldown(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("service error")
	cooldown := 50 * time.Millisecond
	middleware := CircuitBreakerMiddleware(1, cooldown)
	wrapped := middleware(mock)

	ctx := context.Background()

	_, _, _, err1 := wrapped.DoRequest(ctx, "test 1", nil)
	require.Error(t, err1, "first request should fail")

	time.Sleep(cooldown + 10*time.Millisecond)

	mock.Error = nil
	response, _, _, err2 := wrapped.DoRequest(ctx, "test 2", nil)

	require.NoError(t, err2, "probe should succeed after cooldown")
	assert.Equal(t, "test response", response, "response should match")
	assert.Equal(t, 2, mock.GetCallCount(), "should call underlying implementation after cooldown")

	_, _, _, err3 := wrapped.DoRequest(ctx, "test 3", nil)
	require.NoError(t, err3, "subsequent request should succeed")
	assert.Equal(t, 3, mock.GetCallCount(), "should continue calling underlying implementation")
}

// TestCircuitBreakerMiddleware_ReopensOnFailureInHalfOpen tests that a
// failed probe re-opens the circuit immediately.
func TestCircuitBreakerMiddleware_ReopensOnFailureInHalfOpen(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("service error")
	cooldown := 50 * time.Millisecond
	middleware := CircuitBreakerMiddleware(1, cooldown)
	wrapped := middleware(mock)

	ctx := context.Background()

	_, _, _, err1 := wrapped.DoRequest(ctx, "test 1", nil)
	require.Error(t, err1, "first request should fail")

	time.Sleep(cooldown + 10*time.Millisecond)

	_, _, _, err2 := wrapped.DoRequest(ctx, "test 2", nil)
	require.Error(t, err2, "probe should fail in half-open state")
	assert.Equal(t, "service error", err2.Error(), "should return original error")

	_, _, _, err3 := wrapped.DoRequest(ctx, "test 3", nil)
	require.Error(t, err3, "subsequent request should fail")
	assert.ErrorIs(t, err3, ErrCircuitOpen, "should fail with circuit open error")
	assert.Equal(t, 2, mock.GetCallCount(), "should not call underlying implementation when circuit reopens")
}

// TestCircuitBreakerMiddleware_ResetsFailureCountOnSuccess tests that a
// success clears accumulated failures.
func TestCircuitBreakerMiddleware_ResetsFailureCountOnSuccess(t *testing.T) {
	mock := NewMockCoreLLM()
	middleware := CircuitBreakerMiddleware(3, 100*time.Millisecond)
	wrapped := middleware(mock)

	ctx := context.Background()

	mock.Error = errors.New("service error")
	wrapped.DoRequest(ctx, "test 1", nil)
	wrapped.DoRequest(ctx, "test 2", nil)

	mock.Error = nil
	_, _, _, err := wrapped.DoRequest(ctx, "test 3", nil)
	require.NoError(t, err, "third request should succeed")

	mock.Error = errors.New("service error")
	wrapped.DoRequest(ctx, "test 4", nil)
	wrapped.DoRequest(ctx, "test 5", nil)

	_, _, _, err6 := wrapped.DoRequest(ctx, "test 6", nil)
	require.Error(t, err6, "sixth request should fail")
	assert.Equal(t, "service error", err6.Error(), "should still call underlying on third failure after reset")

	_, _, _, err7 := wrapped.DoRequest(ctx, "test 7", nil)
	assert.ErrorIs(t, err7, ErrCircuitOpen, "should get circuit open error after max failures reached")
	assert.Equal(t, 6, mock.GetCallCount(), "should call underlying until circuit opens")
}

// TestCircuitBreakerMiddlewareWith_ExposesStateExternally tests that an
// externally owned breaker reflects the request outcomes.
func TestCircuitBreakerMiddlewareWith_ExposesStateExternally(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("service error")
	cb := NewCircuitBreaker(1, time.Minute)
	wrapped := CircuitBreakerMiddlewareWith(cb)(mock)

	assert.Equal(t, StateClosed, cb.State(), "initial state should be closed")
	assert.False(t, cb.IsOpen(), "breaker should not report open initially")

	_, _, _, err := wrapped.DoRequest(context.Background(), "test", nil)
	require.Error(t, err, "request should fail")

	assert.Equal(t, StateOpen, cb.State(), "state should be open after max failures")
	assert.True(t, cb.IsOpen(), "breaker should report open")
}

// TestCircuitBreaker_HalfOpenAdmitsSingleProbe tests that only one probe
// is admitted while the breaker is half-open.
func TestCircuitBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	cb.Allow()
	cb.Record(errors.New("failure"))
	require.Equal(t, StateOpen, cb.State(), "breaker should open")

	time.Sleep(15 * time.Millisecond)

	assert.True(t, cb.Allow(), "first caller after cooldown should be admitted as probe")
	assert.False(t, cb.Allow(), "second caller should be rejected while probe is in flight")

	cb.Record(nil)
	assert.Equal(t, StateClosed, cb.State(), "successful probe should close the circuit")
	assert.True(t, cb.Allow(), "closed circuit should admit requests")
}

// TestCircuitBreakerMiddleware_PassesThroughModelMethods tests that the
// middleware forwards GetModel and SetModel.
func TestCircuitBreakerMiddleware_PassesThroughModelMethods(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := CircuitBreakerMiddleware(3, 100*time.Millisecond)(mock)

	assert.Equal(t, "test-model", wrapped.GetModel(), "should pass through GetModel")

	wrapped.SetModel("new-model")
	assert.Equal(t, "new-model", mock.GetModel(), "should update underlying mock")
}
