package llm

import "sync"

// BaseProvider carries the thread-safe model field shared by every
// provider implementation.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the configured model. Safe for concurrent use.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel updates the configured model. Safe for concurrent use.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// RequestOptions is the standardized parameter set shared across providers.
type RequestOptions struct {
	// MaxTokens caps the generated completion length.
	MaxTokens int
	// Model overrides the provider's configured model for one request.
	Model string
	// Temperature controls sampling randomness; nil uses the provider
	// default.
	Temperature *float64
	// TopP enables nucleus sampling; nil uses the provider default.
	TopP *float64
	// System carries the system prompt, where the provider supports one.
	System string
	// Extra holds provider-specific options outside the standard set.
	Extra map[string]any
}

// ParseRequestOptions extracts standardized request parameters from an
// options map, falling back to defaults for missing or invalid entries.
// Unrecognized keys are collected into Extra.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens: ExtractOptionalInt(opts, "max_tokens", DefaultMaxTokens, IsPositiveInt),
		Model:     ExtractOptionalString(opts, "model", defaultModel, IsNonEmptyString),
		System:    ExtractOptionalString(opts, "system", "", nil),
		Extra:     make(map[string]any),
	}

	if temp := ExtractOptionalFloat64(opts, "temperature", -1, IsValidTemperature); temp != -1 {
		options.Temperature = &temp
	}
	if topP := ExtractOptionalFloat64(opts, "top_p", -1, IsValidTopP); topP != -1 {
		options.TopP = &topP
	}

	for k, v := range opts {
		switch k {
		case "max_tokens", "model", "system", "temperature", "top_p":
			// Already handled above.
		default:
			options.Extra[k] = v
		}
	}

	return options
}

// TokenCounter estimates token counts when the backend omits exact usage.
type TokenCounter struct {
	// CharactersPerToken is the average character count per token.
	CharactersPerToken float64
}

// NewTokenCounter returns a counter tuned for English text.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{CharactersPerToken: 4.0}
}

// EstimateTokens approximates the token count of text.
func (tc *TokenCounter) EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(float64(len(text)) / tc.CharactersPerToken)
}

// GetTokenCount prefers the backend-reported count and falls back to
// estimation when it is absent.
func (tc *TokenCounter) GetTokenCount(actualCount int, text string) int {
	if actualCount > 0 {
		return actualCount
	}
	return tc.EstimateTokens(text)
}
