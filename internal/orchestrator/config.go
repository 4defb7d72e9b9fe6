// Package orchestrator contains the query pipeline: gatekeeper pre-filter,
// concurrent dispatcher, deterministic judge, and the Orchestrator that
// ties them to the cache, registry, and persistence sink.
package orchestrator

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultDeadline bounds one whole dispatch when the caller does not
// supply a deadline.
const DefaultDeadline = 10 * time.Second

// Config is the top-level orchestrator configuration, loaded once at
// process start.
type Config struct {
	// DeadlineSeconds is the global dispatch deadline applied when a
	// caller does not pass one.
	DeadlineSeconds int `yaml:"deadline_seconds" validate:"omitempty,min=1,max=600"`

	// Cache selects and tunes the response cache backend.
	Cache CacheConfig `yaml:"cache"`

	// DatabasePath locates the SQLite persistence sink.
	DatabasePath string `yaml:"database_path" validate:"required"`

	// PriceTablePath optionally overrides the built-in model price table.
	PriceTablePath string `yaml:"price_table_path"`

	// Gatekeeper tunes the pre-filter.
	Gatekeeper GatekeeperConfig `yaml:"gatekeeper"`

	// Judge tunes the scoring weights.
	Judge JudgeConfig `yaml:"judge"`

	// Spend bounds process-wide resource consumption. Zeroes mean
	// unlimited.
	Spend SpendConfig `yaml:"spend"`

	// Providers lists the configured backends.
	Providers []ProviderConfig `yaml:"providers" validate:"required,min=1,dive"`
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend" validate:"omitempty,oneof=memory redis"`
	// TTLSeconds is the entry lifetime.
	TTLSeconds int `yaml:"ttl_seconds" validate:"omitempty,min=1,max=86400"`
	// Redis configures the redis backend; ignored for memory.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig locates a Redis server for the shared cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0,max=15"`
}

// GatekeeperConfig tunes the pre-filter. Pattern matching runs on the
// normalized query text.
type GatekeeperConfig struct {
	// MinLength is the minimum normalized text length accepted.
	MinLength int `yaml:"min_length" validate:"omitempty,min=1,max=1000"`
	// RejectPatterns reject a query when any matches as a substring.
	RejectPatterns []string `yaml:"reject_patterns"`
	// PassPatterns, when non-empty, require at least one substring match.
	PassPatterns []string `yaml:"pass_patterns"`
}

// JudgeConfig holds the criterion weights for the combined score. Weights
// are normalized at use, so only their ratio matters.
type JudgeConfig struct {
	AccuracyWeight     float64 `yaml:"accuracy_weight" validate:"min=0"`
	CoherenceWeight    float64 `yaml:"coherence_weight" validate:"min=0"`
	CompletenessWeight float64 `yaml:"completeness_weight" validate:"min=0"`
}

// SpendConfig bounds process-wide resource consumption.
type SpendConfig struct {
	MaxTokens  int64   `yaml:"max_tokens" validate:"min=0"`
	MaxCalls   int64   `yaml:"max_calls" validate:"min=0"`
	MaxCostUSD float64 `yaml:"max_cost_usd" validate:"min=0"`
}

// ProviderConfig describes one backend in the configuration file.
// Credentials are always read from the environment, never from the file.
type ProviderConfig struct {
	// ID is the stable short name callers use to select the provider.
	ID string `yaml:"id" validate:"required,min=1,max=64"`
	// DisplayName is the human-readable name for status surfaces.
	DisplayName string `yaml:"display_name"`
	// Type selects the client implementation; defaults to ID.
	Type string `yaml:"type"`
	// Model overrides the provider's default model.
	Model string `yaml:"model"`
	// APIKeyEnv names the environment variable carrying the API key.
	APIKeyEnv string `yaml:"api_key_env" validate:"required"`
	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	// Enabled gates dispatch to this provider.
	Enabled bool `yaml:"enabled"`
	// TimeoutSeconds bounds one logical call including retries. Must not
	// exceed the global deadline.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"omitempty,min=1,max=600"`
	// MaxRetries counts additional attempts after the first failure.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`
	// RequestsPerSecond and Burst tune the outbound rate limit.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"min=0"`
	Burst             int     `yaml:"burst" validate:"min=0"`
	// Temperature and MaxTokens are forwarded on every request when set.
	Temperature *float64 `yaml:"temperature" validate:"omitempty,min=0,max=2"`
	MaxTokens   int      `yaml:"max_tokens" validate:"min=0"`
	// SystemPrompt is prepended to every request when non-empty.
	SystemPrompt string `yaml:"system_prompt"`
}

// DefaultConfig returns a working configuration for the bundled providers
// with a local database and in-memory cache.
func DefaultConfig() Config {
	return Config{
		DeadlineSeconds: int(DefaultDeadline / time.Second),
		Cache:           CacheConfig{Backend: "memory", TTLSeconds: 900},
		DatabasePath:    "quorum.db",
		Gatekeeper:      DefaultGatekeeperConfig(),
		Judge:           DefaultJudgeConfig(),
		Providers: []ProviderConfig{
			{ID: "openai", DisplayName: "OpenAI", APIKeyEnv: "OPENAI_API_KEY", Enabled: true},
			{ID: "anthropic", DisplayName: "Anthropic", APIKeyEnv: "ANTHROPIC_API_KEY", Enabled: true},
			{ID: "google", DisplayName: "Google Gemini", APIKeyEnv: "GOOGLE_API_KEY", Enabled: true},
		},
	}
}

// DefaultJudgeConfig returns equal criterion weights.
func DefaultJudgeConfig() JudgeConfig {
	return JudgeConfig{AccuracyWeight: 1, CoherenceWeight: 1, CompletenessWeight: 1}
}

// LoadConfig reads and validates a YAML configuration file. Values not
// present in the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks structural constraints and the cross-field invariant
// that no provider timeout exceeds the global deadline.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	deadline := c.Deadline()
	for _, p := range c.Providers {
		if t := time.Duration(p.TimeoutSeconds) * time.Second; t > deadline {
			return fmt.Errorf("provider %s timeout %s exceeds global deadline %s", p.ID, t, deadline)
		}
	}
	return nil
}

// Deadline returns the configured global dispatch deadline.
func (c Config) Deadline() time.Duration {
	if c.DeadlineSeconds <= 0 {
		return DefaultDeadline
	}
	return time.Duration(c.DeadlineSeconds) * time.Second
}

// CacheTTL returns the configured cache entry lifetime.
func (c Config) CacheTTL() time.Duration {
	if c.Cache.TTLSeconds <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}
