package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/quorumlabs/quorum/internal/domain"
	"github.com/quorumlabs/quorum/internal/ports"
)

// Resilience defaults applied when AdapterConfig leaves them zero.
const (
	DefaultAdapterTimeout     = 30 * time.Second
	DefaultMaxRetries         = 2
	DefaultRetryBaseDelay     = 200 * time.Millisecond
	DefaultRetryMaxDelay      = 2 * time.Second
	DefaultBreakerMaxFailures = 5
	DefaultBreakerCooldown    = 30 * time.Second
	DefaultRequestsPerSecond  = 5.0
	DefaultRequestBurst       = 10
)

// AdapterConfig describes one backend the orchestrator can dispatch to.
type AdapterConfig struct {
	// ID is the stable short name used in requests, cache keys, and
	// persistence ("openai", "anthropic", ...).
	ID string

	// DisplayName is the human-readable provider name for status surfaces.
	DisplayName string

	// Type selects the registered provider factory. Defaults to ID.
	Type string

	// Model overrides the provider's default model when non-empty.
	Model string

	// APIKey authenticates requests. An empty key keeps the adapter
	// dispatchable; every call then fails fast with a missing-credentials
	// envelope.
	APIKey string

	// BaseURL overrides the provider's default endpoint when non-empty.
	BaseURL string

	// Enabled gates whether the resolver hands this adapter to the
	// dispatcher at all.
	Enabled bool

	// Timeout bounds one logical call including all retries.
	Timeout time.Duration

	// MaxRetries counts additional attempts after the first failure. Zero
	// disables retries; negative selects the default.
	MaxRetries int

	// RetryBaseDelay and RetryMaxDelay bound the backoff between attempts.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// BreakerMaxFailures and BreakerCooldown configure the circuit breaker.
	BreakerMaxFailures int
	BreakerCooldown    time.Duration

	// RequestsPerSecond and Burst configure the token bucket rate limiter.
	RequestsPerSecond float64
	Burst             int

	// Temperature and MaxTokens are forwarded on every request when set.
	Temperature *float64
	MaxTokens   int

	// SystemPrompt is prepended to every request when non-empty.
	SystemPrompt string
}

func (c *AdapterConfig) applyDefaults() {
	if c.Type == "" {
		c.Type = c.ID
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultAdapterTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.BreakerMaxFailures <= 0 {
		c.BreakerMaxFailures = DefaultBreakerMaxFailures
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = DefaultBreakerCooldown
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = DefaultRequestBurst
	}
}

// Adapter binds one backend's client, resilience chain, and pricing into
// the ports.ProviderAdapter contract. Call never returns an error; every
// outcome becomes a classified envelope.
type Adapter struct {
	id          string
	displayName string
	model       string
	timeout     time.Duration
	enabled     bool
	hasKey      bool

	client  ports.LLMClient
	breaker *CircuitBreaker
	prices  *PriceTable
	opts    map[string]any
}

var _ ports.ProviderAdapter = (*Adapter)(nil)

// NewAdapter builds an adapter from config. The middleware chain is, from
// the outside in: tracing, metrics, circuit breaker, timeout, retry, rate
// limiter. The breaker sits outside the timeout so one logical call counts
// as one breaker outcome regardless of how many retry attempts it took,
// and metrics sit outside the breaker so rejected calls are still counted.
func NewAdapter(config AdapterConfig, collector ports.MetricsCollector, prices *PriceTable) (*Adapter, error) {
	if config.ID == "" {
		return nil, fmt.Errorf("adapter id is required")
	}
	config.applyDefaults()

	if prices == nil {
		prices = NewPriceTable()
	}

	a := &Adapter{
		id:          config.ID,
		displayName: config.DisplayName,
		model:       config.Model,
		timeout:     config.Timeout,
		enabled:     config.Enabled,
		hasKey:      config.APIKey != "",
		breaker:     NewCircuitBreaker(config.BreakerMaxFailures, config.BreakerCooldown),
		prices:      prices,
		opts:        buildRequestOpts(config),
	}

	if !a.hasKey {
		return a, nil
	}

	client, err := NewClient(config.Type, ClientConfig{
		APIKey:  config.APIKey,
		Model:   config.Model,
		BaseURL: config.BaseURL,
		Middleware: []Middleware{
			TracingMiddleware(config.ID),
			MetricsMiddleware(config.ID, collector),
			CircuitBreakerMiddlewareWith(a.breaker),
			TimeoutMiddleware(config.Timeout),
			RetryMiddleware(config.MaxRetries, config.RetryBaseDelay, config.RetryMaxDelay),
			RateLimitMiddleware(rate.Limit(config.RequestsPerSecond), config.Burst),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build %s adapter: %w", config.ID, err)
	}

	a.client = client
	a.model = client.GetModel()
	return a, nil
}

func buildRequestOpts(config AdapterConfig) map[string]any {
	opts := make(map[string]any)
	if config.Temperature != nil {
		opts["temperature"] = *config.Temperature
	}
	if config.MaxTokens > 0 {
		opts["max_tokens"] = config.MaxTokens
	}
	if config.SystemPrompt != "" {
		opts["system"] = config.SystemPrompt
	}
	return opts
}

// ID returns the stable short name of the provider.
func (a *Adapter) ID() string { return a.id }

// Enabled reports whether the provider may be dispatched to.
func (a *Adapter) Enabled() bool { return a.enabled }

// HasCredentials reports whether an API key was configured.
func (a *Adapter) HasCredentials() bool { return a.hasKey }

// CircuitOpen reports whether the adapter's breaker is currently rejecting
// requests.
func (a *Adapter) CircuitOpen() bool { return a.breaker.IsOpen() }

// Describe returns the static descriptor for status surfaces.
func (a *Adapter) Describe() domain.ProviderDescriptor {
	return domain.ProviderDescriptor{
		ID:             a.id,
		DisplayName:    a.displayName,
		Model:          a.model,
		Timeout:        a.timeout,
		Enabled:        a.enabled,
		HasCredentials: a.hasKey,
	}
}

// Call sends the query text to the backend and returns the normalized
// envelope. Missing credentials fail fast without any network attempt.
func (a *Adapter) Call(ctx context.Context, query domain.Query) domain.ResponseEnvelope {
	if !a.hasKey {
		return domain.NewErrorEnvelope(a.id, a.model,
			domain.ErrorKindMissingCredentials, "no API key configured", 0)
	}

	start := time.Now()
	text, tokensIn, tokensOut, err := a.client.CompleteWithUsage(ctx, query.Text, a.opts)
	latency := time.Since(start)

	if err != nil {
		return domain.NewErrorEnvelope(a.id, a.model, ClassifyKind(err), err.Error(), latency)
	}

	cost := a.prices.Cost(a.id, a.model, tokensIn, tokensOut)
	return domain.NewSuccessEnvelope(a.id, a.model, text, latency, tokensIn, tokensOut, cost)
}

// Validate sends a minimal probe request to confirm the adapter's
// credentials and connectivity. Intended for startup checks and the status
// command, not the dispatch path.
func (a *Adapter) Validate(ctx context.Context) error {
	if !a.hasKey {
		return fmt.Errorf("provider %s: %w", a.id, ErrEmptyAPIKey)
	}

	probe := map[string]any{"max_tokens": 1}
	for k, v := range a.opts {
		if k != "max_tokens" {
			probe[k] = v
		}
	}
	if _, err := a.client.Complete(ctx, "ping", probe); err != nil {
		return fmt.Errorf("provider %s validation failed: %w", a.id, err)
	}
	return nil
}
