package llm

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ModelPrice holds per-million-token rates in US dollars for one model.
type ModelPrice struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// PriceTable maps provider and model names to token rates and converts
// usage counts into dollar cost. Unknown models cost zero so billing data
// gaps never fail a request.
type PriceTable struct {
	mu     sync.RWMutex
	prices map[string]map[string]ModelPrice
}

// NewPriceTable creates an empty price table.
func NewPriceTable() *PriceTable {
	return &PriceTable{prices: make(map[string]map[string]ModelPrice)}
}

// DefaultPriceTable returns a table seeded with published list prices for
// the bundled providers' default models.
func DefaultPriceTable() *PriceTable {
	pt := NewPriceTable()
	pt.Set("openai", OpenAIDefaultModel, ModelPrice{InputPerMillion: 0.40, OutputPerMillion: 1.60})
	pt.Set("anthropic", AnthropicDefaultModel, ModelPrice{InputPerMillion: 3.00, OutputPerMillion: 15.00})
	pt.Set("google", GoogleDefaultModel, ModelPrice{InputPerMillion: 0.10, OutputPerMillion: 0.40})
	return pt
}

// LoadPriceTable reads a YAML price file shaped as
// provider -> model -> {input_per_million, output_per_million}.
func LoadPriceTable(path string) (*PriceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read price table: %w", err)
	}

	var raw map[string]map[string]ModelPrice
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse price table: %w", err)
	}

	pt := NewPriceTable()
	for provider, models := range raw {
		for model, price := range models {
			if price.InputPerMillion < 0 || price.OutputPerMillion < 0 {
				return nil, fmt.Errorf("negative rate for %s/%s", provider, model)
			}
			pt.Set(provider, model, price)
		}
	}
	return pt, nil
}

// Set registers or replaces the rate for a provider model pair.
func (pt *PriceTable) Set(provider, model string, price ModelPrice) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	models, ok := pt.prices[provider]
	if !ok {
		models = make(map[string]ModelPrice)
		pt.prices[provider] = models
	}
	models[model] = price
}

// Cost converts token usage into dollars. Models without a registered
// rate cost zero.
func (pt *PriceTable) Cost(provider, model string, tokensIn, tokensOut int) float64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	price, ok := pt.prices[provider][model]
	if !ok {
		return 0
	}
	return float64(tokensIn)/1e6*price.InputPerMillion +
		float64(tokensOut)/1e6*price.OutputPerMillion
}
