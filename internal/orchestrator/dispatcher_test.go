package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/quorum/infrastructure/cache"
	"github.com/quorumlabs/quorum/internal/domain"
	"github.com/quorumlabs/quorum/internal/ports"
)

// stubAdapter is a call-count spy implementing ports.ProviderAdapter.
type stubAdapter struct {
	id       string
	delay    time.Duration
	envelope domain.ResponseEnvelope
	calls    atomic.Int32
}

func (s *stubAdapter) ID() string    { return s.id }
func (s *stubAdapter) Enabled() bool { return true }

func (s *stubAdapter) Call(ctx context.Context, _ domain.Query) domain.ResponseEnvelope {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return domain.NewErrorEnvelope(s.id, s.envelope.Model,
				domain.ErrorKindTimeout, "deadline exceeded", s.delay)
		}
	}
	return s.envelope
}

// stubResolver resolves from a fixed adapter list in registration order.
type stubResolver struct {
	adapters []*stubAdapter
}

func (r *stubResolver) Resolve(ids []string) ([]ports.ProviderAdapter, []string) {
	byID := make(map[string]*stubAdapter, len(r.adapters))
	for _, a := range r.adapters {
		byID[a.id] = a
	}

	if len(ids) == 0 {
		usable := make([]ports.ProviderAdapter, 0, len(r.adapters))
		for _, a := range r.adapters {
			usable = append(usable, a)
		}
		return usable, nil
	}

	var usable []ports.ProviderAdapter
	var unknown []string
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			usable = append(usable, a)
		} else {
			unknown = append(unknown, id)
		}
	}
	return usable, unknown
}

func (r *stubResolver) Status() map[string]domain.ProviderStatus {
	status := make(map[string]domain.ProviderStatus, len(r.adapters))
	for _, a := range r.adapters {
		status[a.id] = domain.ProviderStatus{Enabled: true, HasCredentials: true}
	}
	return status
}

func successAdapter(id, text string, latency time.Duration) *stubAdapter {
	return &stubAdapter{
		id:       id,
		envelope: domain.NewSuccessEnvelope(id, "test-model", text, latency, 10, 20, 0.001),
	}
}

func failingAdapter(id string, kind domain.ErrorKind) *stubAdapter {
	return &stubAdapter{
		id:       id,
		envelope: domain.NewErrorEnvelope(id, "test-model", kind, "simulated failure", time.Millisecond),
	}
}

func testQuery(text string) domain.Query {
	return domain.NewQuery(1, "req-test", text, "")
}

// TestDispatcher_FanOutCollectsAllProviders tests that every dispatched
// provider appears exactly once in the result map.
func TestDispatcher_FanOutCollectsAllProviders(t *testing.T) {
	resolver := &stubResolver{adapters: []*stubAdapter{
		successAdapter("alpha", "answer a", 10*time.Millisecond),
		successAdapter("beta", "answer b", 10*time.Millisecond),
		failingAdapter("gamma", domain.ErrorKindTransport),
	}}
	d := NewDispatcher(resolver, cache.NewMemoryCache(time.Minute), nil, nil)

	result := d.Run(context.Background(), testQuery("explain dispatch"), nil, time.Second)

	require.Len(t, result.Responses, 3, "every provider should produce an envelope")
	assert.True(t, result.Responses["alpha"].IsSuccess(), "alpha should succeed")
	assert.True(t, result.Responses["beta"].IsSuccess(), "beta should succeed")
	assert.Equal(t, domain.ErrorKindTransport, result.Responses["gamma"].ErrorKind,
		"gamma's failure should be captured, not propagated")
	assert.Empty(t, result.UnknownIDs, "no ids should be unknown")
}

// TestDispatcher_WarmCacheSkipsNetworkCalls tests that a second identical
// dispatch is served entirely from cache.
func TestDispatcher_WarmCacheSkipsNetworkCalls(t *testing.T) {
	alpha := successAdapter("alpha", "answer a", 0)
	beta := successAdapter("beta", "answer b", 0)
	resolver := &stubResolver{adapters: []*stubAdapter{alpha, beta}}
	d := NewDispatcher(resolver, cache.NewMemoryCache(time.Minute), nil, nil)

	query := testQuery("explain caching")

	first := d.Run(context.Background(), query, nil, time.Second)
	require.Len(t, first.Responses, 2, "first dispatch should call both providers")
	assert.False(t, first.Responses["alpha"].Cached, "first result should be fresh")

	second := d.Run(context.Background(), query, nil, time.Second)

	require.Len(t, second.Responses, 2, "second dispatch should cover both providers")
	for id, env := range second.Responses {
		assert.True(t, env.Cached, "%s should be served from cache", id)
		assert.Zero(t, env.Latency, "%s cache hit should report zero latency", id)
		assert.True(t, env.IsSuccess(), "%s cached envelope should be the success", id)
	}
	assert.Equal(t, int32(1), alpha.calls.Load(), "alpha should not be called again")
	assert.Equal(t, int32(1), beta.calls.Load(), "beta should not be called again")
}

// TestDispatcher_FailuresAreNotCached tests that only successes warm the
// cache.
func TestDispatcher_FailuresAreNotCached(t *testing.T) {
	gamma := failingAdapter("gamma", domain.ErrorKindTransport)
	resolver := &stubResolver{adapters: []*stubAdapter{gamma}}
	d := NewDispatcher(resolver, cache.NewMemoryCache(time.Minute), nil, nil)

	query := testQuery("explain failure caching")

	d.Run(context.Background(), query, nil, time.Second)
	d.Run(context.Background(), query, nil, time.Second)

	assert.Equal(t, int32(2), gamma.calls.Load(), "failed results should be recomputed, not cached")
}

// TestDispatcher_DeadlineMarksPendingAsTimeout tests that providers still
// pending at the global deadline are recorded as timeouts and their late
// results are never merged.
func TestDispatcher_DeadlineMarksPendingAsTimeout(t *testing.T) {
	fast := successAdapter("fast", "quick answer", 5*time.Millisecond)
	slow := successAdapter("slow", "late answer", 500*time.Millisecond)
	slow.delay = 500 * time.Millisecond
	resolver := &stubResolver{adapters: []*stubAdapter{fast, slow}}
	d := NewDispatcher(resolver, cache.NewMemoryCache(time.Minute), nil, nil)

	result := d.Run(context.Background(), testQuery("explain deadlines"), nil, 50*time.Millisecond)

	require.Len(t, result.Responses, 2, "both providers should be accounted for")
	assert.True(t, result.Responses["fast"].IsSuccess(), "fast provider should succeed")
	assert.Equal(t, domain.StatusTimeout, result.Responses["slow"].Status,
		"pending provider should be marked timeout at the deadline")

	// The late result must not replace the timeout-recorded envelope.
	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, domain.StatusTimeout, result.Responses["slow"].Status,
		"late arrival must not overwrite the timeout envelope")
}

// TestDispatcher_UnknownIDsAreReportedNotFatal tests that a request
// naming valid and unknown ids completes for the valid ones.
func TestDispatcher_UnknownIDsAreReportedNotFatal(t *testing.T) {
	resolver := &stubResolver{adapters: []*stubAdapter{
		successAdapter("alpha", "a", 0),
		successAdapter("beta", "b", 0),
		successAdapter("gamma", "c", 0),
	}}
	d := NewDispatcher(resolver, cache.NewMemoryCache(time.Minute), nil, nil)

	result := d.Run(context.Background(), testQuery("explain registries"),
		[]string{"alpha", "beta", "gamma", "nonexistent"}, time.Second)

	require.Len(t, result.Responses, 3, "the three valid providers should complete")
	assert.Equal(t, []string{"nonexistent"}, result.UnknownIDs,
		"the unknown id should appear only in the side channel")
}

// TestDispatcher_MixedOutcomeScenario tests the canonical mixed dispatch:
// one success, one timeout, one credential failure.
func TestDispatcher_MixedOutcomeScenario(t *testing.T) {
	succeeding := successAdapter("alpha", "the answer", 200*time.Millisecond)
	succeeding.delay = 200 * time.Millisecond
	timingOut := successAdapter("beta", "never seen", time.Second)
	timingOut.delay = time.Second
	declined := failingAdapter("gamma", domain.ErrorKindMissingCredentials)

	resolver := &stubResolver{adapters: []*stubAdapter{succeeding, timingOut, declined}}
	d := NewDispatcher(resolver, cache.NewMemoryCache(time.Minute), nil, nil)

	result := d.Run(context.Background(), testQuery("explain mixed outcomes"), nil, 500*time.Millisecond)

	require.Len(t, result.Responses, 3, "every provider should be accounted for")
	assert.True(t, result.Responses["alpha"].IsSuccess(), "alpha should succeed within the deadline")
	assert.Equal(t, domain.StatusTimeout, result.Responses["beta"].Status, "beta should time out")
	assert.Equal(t, domain.ErrorKindMissingCredentials, result.Responses["gamma"].ErrorKind,
		"gamma should report missing credentials")
}

// TestDispatcher_ConcurrentMissesEachCompute tests the documented
// at-least-once behavior: concurrent identical dispatches before the
// first completes each call the provider.
func TestDispatcher_ConcurrentMissesEachCompute(t *testing.T) {
	alpha := successAdapter("alpha", "answer", 50*time.Millisecond)
	alpha.delay = 50 * time.Millisecond
	resolver := &stubResolver{adapters: []*stubAdapter{alpha}}
	d := NewDispatcher(resolver, cache.NewMemoryCache(time.Minute), nil, nil)

	query := testQuery("explain single flight")

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := d.Run(context.Background(), query, nil, time.Second)
			assert.True(t, result.Responses["alpha"].IsSuccess(), "each dispatch should succeed")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), alpha.calls.Load(),
		"concurrent misses for one key should each compute")
}
