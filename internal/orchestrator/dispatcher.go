package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/quorumlabs/quorum/internal/domain"
	"github.com/quorumlabs/quorum/internal/ports"
)

// DispatchResult is the outcome of one fan-out: the envelope for every
// dispatched provider plus the requested ids that matched no usable
// adapter.
type DispatchResult struct {
	// Responses maps provider id to its envelope. Every dispatched
	// provider appears exactly once, whatever its outcome.
	Responses map[string]domain.ResponseEnvelope

	// UnknownIDs lists requested ids with no configured, enabled adapter.
	UnknownIDs []string
}

// Dispatcher fans one query out to the selected providers under a single
// global deadline, consulting the cache before any network call.
type Dispatcher struct {
	resolver ports.ProviderResolver
	cache    ports.ResponseCache
	metrics  ports.MetricsCollector
	logger   *slog.Logger
}

// NewDispatcher wires a dispatcher to its resolver and cache. The metrics
// collector may be nil.
func NewDispatcher(resolver ports.ProviderResolver, cache ports.ResponseCache, metrics ports.MetricsCollector, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		resolver: resolver,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
	}
}

type providerResult struct {
	id       string
	envelope domain.ResponseEnvelope
}

// Run dispatches the query to the requested providers and returns once
// every call has settled or the deadline has elapsed, whichever comes
// first. Providers still pending at the deadline are recorded as timeouts
// and their late results are discarded, never merged. An all-failed map is
// a normal result shape at this layer.
func (d *Dispatcher) Run(ctx context.Context, query domain.Query, providerIDs []string, deadline time.Duration) DispatchResult {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	usable, unknown := d.resolver.Resolve(providerIDs)
	for _, id := range unknown {
		d.logger.Warn("unknown provider requested",
			"request_id", query.RequestID, "provider", id)
	}

	result := DispatchResult{
		Responses:  make(map[string]domain.ResponseEnvelope, len(usable)),
		UnknownIDs: unknown,
	}

	keys := make(map[string]string, len(usable))
	var toCall []ports.ProviderAdapter
	for _, adapter := range usable {
		id := adapter.ID()
		keys[id] = domain.CacheKey(id, query.UserScope, query.Normalized)

		if env, found := d.probeCache(ctx, keys[id]); found {
			env.Cached = true
			env.Latency = 0
			result.Responses[id] = env
			d.recordCacheEvent(id, "hit")
			continue
		}
		d.recordCacheEvent(id, "miss")
		toCall = append(toCall, adapter)
	}

	if len(toCall) == 0 {
		return result
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// Buffered to the call count so a late completion never blocks its
	// goroutine after the collector has moved on.
	results := make(chan providerResult, len(toCall))
	for _, adapter := range toCall {
		go func(a ports.ProviderAdapter) {
			results <- providerResult{id: a.ID(), envelope: a.Call(dispatchCtx, query)}
		}(adapter)
	}

	pending := make(map[string]bool, len(toCall))
	for _, adapter := range toCall {
		pending[adapter.ID()] = true
	}

	for len(pending) > 0 {
		select {
		case r := <-results:
			if !pending[r.id] {
				continue
			}
			delete(pending, r.id)
			result.Responses[r.id] = r.envelope

			if r.envelope.IsSuccess() {
				// Cache writes use the parent context: a result that
				// landed just before the deadline is still worth keeping.
				if err := d.cache.Put(ctx, keys[r.id], r.envelope); err != nil {
					d.logger.Warn("cache write failed",
						"request_id", query.RequestID, "provider", r.id, "error", err)
				}
			}

		case <-dispatchCtx.Done():
			for id := range pending {
				result.Responses[id] = domain.NewErrorEnvelope(id, "",
					domain.ErrorKindTimeout, "global dispatch deadline elapsed", deadline)
			}
			return result
		}
	}

	return result
}

// probeCache treats cache failures as misses so a degraded cache backend
// slows requests down instead of failing them.
func (d *Dispatcher) probeCache(ctx context.Context, key string) (domain.ResponseEnvelope, bool) {
	env, found, err := d.cache.Get(ctx, key)
	if err != nil {
		d.logger.Warn("cache read failed", "error", err)
		return domain.ResponseEnvelope{}, false
	}
	return env, found
}

func (d *Dispatcher) recordCacheEvent(provider, event string) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordCounter("orchestrator_cache_events_total", 1,
		map[string]string{"provider": provider, "event": event})
}
