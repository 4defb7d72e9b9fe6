package llm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quorumlabs/quorum/internal/domain"
	"github.com/quorumlabs/quorum/internal/ports"
)

// defaultProvider pairs a provider id with the environment variable that
// carries its API key and its default model.
type defaultProvider struct {
	id          string
	displayName string
	envVar      string
	model       string
}

// defaultProviders lists the backends configured out of the box. A
// provider whose environment variable is unset is still registered; its
// calls fail fast with missing-credentials envelopes so the caller can see
// exactly which backend is unconfigured.
var defaultProviders = []defaultProvider{
	{id: "openai", displayName: "OpenAI", envVar: "OPENAI_API_KEY", model: OpenAIDefaultModel},
	{id: "anthropic", displayName: "Anthropic", envVar: "ANTHROPIC_API_KEY", model: AnthropicDefaultModel},
	{id: "google", displayName: "Google Gemini", envVar: "GOOGLE_API_KEY", model: GoogleDefaultModel},
}

// Registry owns the configured adapters and resolves requested provider
// ids for the dispatcher. It is immutable after construction, so reads
// need no locking.
type Registry struct {
	adapters map[string]*Adapter
	order    []string
}

var _ ports.ProviderResolver = (*Registry)(nil)

// NewRegistry builds a registry from adapter configurations. Duplicate ids
// are rejected; registration order is preserved for deterministic default
// dispatch.
func NewRegistry(configs []AdapterConfig, collector ports.MetricsCollector, prices *PriceTable) (*Registry, error) {
	r := &Registry{adapters: make(map[string]*Adapter, len(configs))}

	for _, config := range configs {
		if _, exists := r.adapters[config.ID]; exists {
			return nil, fmt.Errorf("duplicate provider id: %s", config.ID)
		}
		adapter, err := NewAdapter(config, collector, prices)
		if err != nil {
			return nil, err
		}
		r.adapters[config.ID] = adapter
		r.order = append(r.order, config.ID)
	}

	return r, nil
}

// NewRegistryFromEnv builds a registry for the bundled providers, reading
// API keys from the conventional environment variables. A nil price table
// selects the built-in defaults.
func NewRegistryFromEnv(collector ports.MetricsCollector, prices *PriceTable) (*Registry, error) {
	if prices == nil {
		prices = DefaultPriceTable()
	}
	configs := make([]AdapterConfig, 0, len(defaultProviders))
	for _, p := range defaultProviders {
		configs = append(configs, AdapterConfig{
			ID:          p.id,
			DisplayName: p.displayName,
			Model:       p.model,
			APIKey:      os.Getenv(p.envVar),
			Enabled:     true,
		})
	}
	return NewRegistry(configs, collector, prices)
}

// Resolve returns the usable adapters for the requested ids along with the
// ids that matched no configured, enabled adapter. An empty request means
// every enabled adapter, in registration order. Adapters without
// credentials resolve normally; their calls produce missing-credentials
// envelopes rather than silently shrinking the dispatch set.
func (r *Registry) Resolve(ids []string) ([]ports.ProviderAdapter, []string) {
	if len(ids) == 0 {
		ids = r.order
	}

	var usable []ports.ProviderAdapter
	var unknown []string
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		adapter, ok := r.adapters[id]
		if !ok || !adapter.Enabled() {
			unknown = append(unknown, id)
			continue
		}
		usable = append(usable, adapter)
	}

	return usable, unknown
}

// Status reports the live state of every configured provider.
func (r *Registry) Status() map[string]domain.ProviderStatus {
	status := make(map[string]domain.ProviderStatus, len(r.adapters))
	for id, adapter := range r.adapters {
		status[id] = domain.ProviderStatus{
			Enabled:        adapter.Enabled(),
			HasCredentials: adapter.HasCredentials(),
			CircuitOpen:    adapter.CircuitOpen(),
		}
	}
	return status
}

// Describe returns descriptors for every configured provider, sorted by
// id for stable output.
func (r *Registry) Describe() []domain.ProviderDescriptor {
	descriptors := make([]domain.ProviderDescriptor, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		descriptors = append(descriptors, adapter.Describe())
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].ID < descriptors[j].ID
	})
	return descriptors
}

// ValidateProviders probes every enabled adapter that has credentials and
// returns the failures keyed by provider id. Probes run concurrently; an
// empty map means every reachable provider validated.
func (r *Registry) ValidateProviders(ctx context.Context) map[string]error {
	var mu sync.Mutex
	failures := make(map[string]error)

	var g errgroup.Group
	for _, id := range r.order {
		adapter := r.adapters[id]
		if !adapter.Enabled() || !adapter.HasCredentials() {
			continue
		}
		g.Go(func() error {
			if err := adapter.Validate(ctx); err != nil {
				mu.Lock()
				failures[id] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return failures
}
