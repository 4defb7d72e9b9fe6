package middleware

import (
	"fmt"
	"sync"

	"github.com/quorumlabs/quorum/internal/domain"
)

// SpendLimits bounds the resources one process may consume across all
// queries. Zero means unlimited for that dimension.
type SpendLimits struct {
	// MaxTokens limits the total tokens consumed, input plus output.
	MaxTokens int64

	// MaxCalls limits the total provider calls made.
	MaxCalls int64

	// MaxCostUSD limits the total estimated spend in dollars.
	MaxCostUSD float64
}

// SpendExceededError reports which limit was crossed and by how much.
type SpendExceededError struct {
	Dimension string
	Limit     float64
	Used      float64
}

func (e *SpendExceededError) Error() string {
	return fmt.Sprintf("spend limit exceeded: %s used %.2f of %.2f", e.Dimension, e.Used, e.Limit)
}

// SpendTracker accumulates token, call, and cost totals from finalized
// envelopes and enforces process-wide limits. The orchestrator consults
// Check before dispatching and feeds every fresh envelope to Track, so an
// exhausted budget stops new queries rather than in-flight ones.
type SpendTracker struct {
	mu     sync.Mutex
	limits SpendLimits
	tokens int64
	calls  int64
	cost   float64
}

// NewSpendTracker creates a tracker with the given limits.
func NewSpendTracker(limits SpendLimits) *SpendTracker {
	return &SpendTracker{limits: limits}
}

// Track accumulates the usage of one envelope. Cached envelopes cost
// nothing and are ignored.
func (st *SpendTracker) Track(env domain.ResponseEnvelope) {
	if env.Cached {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.calls++
	st.tokens += int64(env.TokensIn + env.TokensOut)
	st.cost += env.CostUSD
}

// Check reports whether any limit has been crossed.
func (st *SpendTracker) Check() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.limits.MaxTokens > 0 && st.tokens >= st.limits.MaxTokens {
		return &SpendExceededError{Dimension: "tokens", Limit: float64(st.limits.MaxTokens), Used: float64(st.tokens)}
	}
	if st.limits.MaxCalls > 0 && st.calls >= st.limits.MaxCalls {
		return &SpendExceededError{Dimension: "calls", Limit: float64(st.limits.MaxCalls), Used: float64(st.calls)}
	}
	if st.limits.MaxCostUSD > 0 && st.cost >= st.limits.MaxCostUSD {
		return &SpendExceededError{Dimension: "cost_usd", Limit: st.limits.MaxCostUSD, Used: st.cost}
	}
	return nil
}

// SpendSnapshot is a point-in-time view of accumulated usage.
type SpendSnapshot struct {
	Tokens  int64   `json:"tokens"`
	Calls   int64   `json:"calls"`
	CostUSD float64 `json:"cost_usd"`
}

// Snapshot returns the current totals.
func (st *SpendTracker) Snapshot() SpendSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return SpendSnapshot{Tokens: st.tokens, Calls: st.calls, CostUSD: st.cost}
}
