package middleware

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/quorum/internal/domain"
)

func trackedEnvelope(tokensIn, tokensOut int, cost float64) domain.ResponseEnvelope {
	return domain.NewSuccessEnvelope("openai", "gpt-4.1-mini", "answer",
		100*time.Millisecond, tokensIn, tokensOut, cost)
}

// TestSpendTracker_AccumulatesUsage tests basic accounting.
func TestSpendTracker_AccumulatesUsage(t *testing.T) {
	st := NewSpendTracker(SpendLimits{})

	st.Track(trackedEnvelope(100, 50, 0.01))
	st.Track(trackedEnvelope(200, 100, 0.02))

	snap := st.Snapshot()
	assert.Equal(t, int64(450), snap.Tokens, "tokens should accumulate")
	assert.Equal(t, int64(2), snap.Calls, "calls should accumulate")
	assert.InDelta(t, 0.03, snap.CostUSD, 1e-9, "cost should accumulate")
}

// TestSpendTracker_IgnoresCachedEnvelopes tests that cache hits are free.
func TestSpendTracker_IgnoresCachedEnvelopes(t *testing.T) {
	st := NewSpendTracker(SpendLimits{})

	env := trackedEnvelope(100, 50, 0.01)
	env.Cached = true
	st.Track(env)

	snap := st.Snapshot()
	assert.Zero(t, snap.Tokens, "cached envelopes should not count tokens")
	assert.Zero(t, snap.Calls, "cached envelopes should not count calls")
}

// TestSpendTracker_EnforcesLimits tests each limit dimension.
func TestSpendTracker_EnforcesLimits(t *testing.T) {
	tests := []struct {
		name      string
		limits    SpendLimits
		envelope  domain.ResponseEnvelope
		dimension string
	}{
		{"tokens", SpendLimits{MaxTokens: 100}, trackedEnvelope(80, 30, 0), "tokens"},
		{"calls", SpendLimits{MaxCalls: 1}, trackedEnvelope(1, 1, 0), "calls"},
		{"cost", SpendLimits{MaxCostUSD: 0.01}, trackedEnvelope(1, 1, 0.02), "cost_usd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewSpendTracker(tt.limits)
			require.NoError(t, st.Check(), "fresh tracker should pass")

			st.Track(tt.envelope)

			err := st.Check()
			require.Error(t, err, "exceeded limit should fail the check")
			var spendErr *SpendExceededError
			require.ErrorAs(t, err, &spendErr, "error should be a SpendExceededError")
			assert.Equal(t, tt.dimension, spendErr.Dimension, "dimension should be named")
		})
	}
}

// TestSpendTracker_ZeroLimitsMeanUnlimited tests the unlimited default.
func TestSpendTracker_ZeroLimitsMeanUnlimited(t *testing.T) {
	st := NewSpendTracker(SpendLimits{})

	for i := 0; i < 1000; i++ {
		st.Track(trackedEnvelope(1000, 1000, 1.0))
	}

	assert.NoError(t, st.Check(), "zero limits should never trip")
}

// TestSpendTracker_ConcurrentTracking tests that parallel dispatches do
// not lose updates.
func TestSpendTracker_ConcurrentTracking(t *testing.T) {
	st := NewSpendTracker(SpendLimits{})

	const goroutines = 8
	const perGoroutine = 100
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				st.Track(trackedEnvelope(10, 5, 0.001))
			}
		}()
	}
	wg.Wait()

	snap := st.Snapshot()
	assert.Equal(t, int64(goroutines*perGoroutine), snap.Calls, "no call should be lost")
	assert.Equal(t, int64(goroutines*perGoroutine*15), snap.Tokens, "no tokens should be lost")
}
