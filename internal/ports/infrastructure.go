// Package ports defines the interfaces between the orchestrator core and
// its infrastructure: LLM clients, provider adapters, the response cache,
// the persistence sink, and metrics. Implementations live under
// infrastructure/; the orchestrator depends only on these contracts.
package ports

import (
	"context"
	"time"

	"github.com/quorumlabs/quorum/internal/domain"
)

// LLMClient defines the interface for interacting with Large Language
// Model providers. Implementations handle provider-specific details like
// authentication, request formatting, and response parsing.
type LLMClient interface {
	// Complete sends a completion request and returns the generated text.
	// The options map allows provider-specific settings without changing
	// the interface ("temperature", "max_tokens", "model", ...).
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// CompleteWithUsage behaves like Complete but also reports prompt and
	// completion token counts for cost accounting.
	CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (response string, tokensIn, tokensOut int, err error)

	// EstimateTokens calculates the approximate token count for a text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier used by this client.
	GetModel() string
}

// ProviderAdapter is the capability interface one configured backend
// exposes to the dispatcher. Adapters never return errors: every outcome,
// including missing credentials and open circuits, is captured as a status
// on the envelope.
type ProviderAdapter interface {
	// ID returns the stable short name of the provider.
	ID() string

	// Enabled reports whether the provider may be dispatched to.
	Enabled() bool

	// Call sends the query's raw text to the backend and returns the
	// normalized envelope. The call is bounded by the adapter's own
	// timeout and by ctx, whichever is tighter.
	Call(ctx context.Context, query domain.Query) domain.ResponseEnvelope
}

// ProviderResolver maps requested provider ids to usable adapters.
// Unknown or disabled ids are reported separately, never as a failure.
type ProviderResolver interface {
	// Resolve returns the usable adapters for the requested ids along
	// with the ids that did not match any configured, enabled adapter.
	Resolve(ids []string) (usable []ProviderAdapter, unknown []string)

	// Status reports the live state of every configured provider for the
	// external dashboard collaborator.
	Status() map[string]domain.ProviderStatus
}

// ResponseCache stores successful response envelopes keyed by
// domain.CacheKey. Implementations must be safe
// for concurrent use; writes are last-write-wins and reads observe either
// the old or the new value, never a partial one. The cache never stores
// in-flight state, so concurrent misses for one key each compute.
type ResponseCache interface {
	// Get returns the cached envelope for key, or found=false when absent
	// or expired.
	Get(ctx context.Context, key string) (env domain.ResponseEnvelope, found bool, err error)

	// Put stores a successful envelope under key. Storing a non-success
	// envelope is an error. Put is idempotent.
	Put(ctx context.Context, key string, env domain.ResponseEnvelope) error

	// Invalidate removes key from the cache. Removing an absent key is
	// not an error.
	Invalidate(ctx context.Context, key string) error
}

// Sink persists the finalized snapshot of one query: the query record,
// every response envelope, and the judge decision. The orchestrator calls
// Record exactly once per finalized query; implementations must make the
// snapshot visible atomically, never partially.
type Sink interface {
	Record(ctx context.Context, rec domain.QueryRecord) error
}

// ErrorLogger is an optional sink capability: implementations also record
// individual provider failures for later inspection. The orchestrator uses
// it when the configured Sink provides it.
type ErrorLogger interface {
	LogError(ctx context.Context, requestID, provider string, kind domain.ErrorKind, message string) error
}

// MetricsCollector defines the interface for collecting operational
// metrics. Implementations integrate with observability platforms such as
// Prometheus.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
