// Package llm provides the provider-facing half of the orchestrator: a
// minimal CoreLLM interface implemented by each backend SDK, a middleware
// chain layering retry, timeout, circuit breaking, rate limiting, metrics,
// and tracing on top of it, and the Adapter/Registry pair that turns raw
// provider calls into normalized response envelopes.
//
// Basic usage:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4.1",
//	})
//	response, err := client.Complete(ctx, "Hello!", nil)
//
// The orchestrator itself never uses a bare client; it goes through an
// Adapter, which owns the backend's credentials, budget, and breaker.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/quorumlabs/quorum/internal/ports"
)

// CoreLLM is the minimal surface a provider implementation must offer.
// Middleware wraps any conforming implementation, so cross-cutting concerns
// never leak into provider request shaping.
type CoreLLM interface {
	// DoRequest sends a prompt to the backend and returns the response
	// text plus input/output token counts. The opts map carries
	// provider-specific parameters such as temperature or max_tokens.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel switches the model for subsequent requests.
	SetModel(model string)
}

// TokenEstimator approximates token counts when the backend does not
// report exact usage. Estimates feed cost accounting, so they should err
// on the conservative side.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// Middleware wraps a CoreLLM to add cross-cutting behavior. Middleware in
// ClientConfig.Middleware is applied so the first entry is outermost.
type Middleware func(CoreLLM) CoreLLM

// ClientConfig holds everything needed to build a client for one backend.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model selects the model for requests.
	Model string

	// BaseURL overrides the provider's default endpoint when non-empty.
	BaseURL string

	// Timeout bounds individual requests. Zero means no client-side
	// timeout; the adapter's timeout middleware still applies.
	Timeout time.Duration

	// TokenEstimator overrides the default character-based estimator.
	TokenEstimator TokenEstimator

	// Middleware is applied in order, first entry outermost.
	Middleware []Middleware
}

// Client wraps a middleware-composed CoreLLM behind ports.LLMClient.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient assembles a provider client with its middleware chain.
func NewClient(providerType string, config ClientConfig) (ports.LLMClient, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", providerType, err)
	}

	// Reverse application keeps the first configured middleware outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	estimator := config.TokenEstimator
	if estimator == nil {
		estimator = &SimpleTokenEstimator{}
	}

	return &Client{core: core, estimator: estimator}, nil
}

// Complete sends a prompt and returns only the response text.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage sends a prompt and reports token usage alongside the
// response, for cost accounting.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// EstimateTokens approximates the token count of text before a request is
// made.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel returns the model configured on the underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// SimpleTokenEstimator assumes roughly four characters per token, a
// workable approximation for English text.
type SimpleTokenEstimator struct{}

// EstimateTokens returns the character-based token approximation.
func (e *SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ProviderFactory builds a CoreLLM from configuration. Factories register
// themselves in init so provider selection is a map lookup, not runtime
// type inspection.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory registers a provider implementation under a type
// name. Custom backends can hook in without modifying this package.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}
