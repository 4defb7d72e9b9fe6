package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quorumlabs/quorum/infrastructure/cache"
	"github.com/quorumlabs/quorum/infrastructure/llm"
	"github.com/quorumlabs/quorum/infrastructure/middleware"
	"github.com/quorumlabs/quorum/infrastructure/storage"
	"github.com/quorumlabs/quorum/internal/orchestrator"
	"github.com/quorumlabs/quorum/internal/ports"
)

// app holds the wired pipeline for one CLI invocation.
type app struct {
	config       orchestrator.Config
	registry     *llm.Registry
	sink         *storage.SQLiteSink
	orchestrator *orchestrator.Orchestrator
	spend        *middleware.SpendTracker
	cache        ports.ResponseCache
	closers      []func() error
}

// loadConfig reads the config file when one was given, otherwise the
// defaults.
func loadConfig(path string) (orchestrator.Config, error) {
	if path == "" {
		return orchestrator.DefaultConfig(), nil
	}
	return orchestrator.LoadConfig(path)
}

// buildApp wires the full pipeline from configuration: registry, cache,
// sink, and orchestrator. Callers must invoke close when done.
func buildApp(ctx context.Context, config orchestrator.Config, logger *slog.Logger) (*app, error) {
	prices := llm.DefaultPriceTable()
	if config.PriceTablePath != "" {
		loaded, err := llm.LoadPriceTable(config.PriceTablePath)
		if err != nil {
			return nil, fmt.Errorf("loading price table: %w", err)
		}
		prices = loaded
	}

	collector := middleware.NewPrometheusMetrics(prometheus.DefaultRegisterer)

	registry, err := llm.NewRegistry(adapterConfigs(config), collector, prices)
	if err != nil {
		return nil, fmt.Errorf("building provider registry: %w", err)
	}

	a := &app{config: config, registry: registry}

	responseCache, err := buildCache(ctx, config)
	if err != nil {
		return nil, err
	}
	a.cache = responseCache
	if closer, ok := responseCache.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}

	sink, err := storage.NewSQLiteSink(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.sink = sink
	a.closers = append(a.closers, sink.Close)

	a.spend = middleware.NewSpendTracker(middleware.SpendLimits{
		MaxTokens:  config.Spend.MaxTokens,
		MaxCalls:   config.Spend.MaxCalls,
		MaxCostUSD: config.Spend.MaxCostUSD,
	})

	dispatcher := orchestrator.NewDispatcher(registry, responseCache, collector, logger)
	a.orchestrator = orchestrator.NewOrchestrator(
		orchestrator.NewGatekeeper(config.Gatekeeper),
		dispatcher,
		orchestrator.NewJudge(config.Judge),
		sink,
		a.spend,
		collector,
		logger,
		config.Deadline(),
	)

	return a, nil
}

func (a *app) close() {
	for _, closer := range a.closers {
		_ = closer()
	}
}

func buildCache(ctx context.Context, config orchestrator.Config) (ports.ResponseCache, error) {
	switch config.Cache.Backend {
	case "", "memory":
		return cache.NewMemoryCache(config.CacheTTL()), nil
	case "redis":
		c, err := cache.NewRedisCache(ctx, config.Cache.Redis.Addr,
			config.Cache.Redis.Password, config.Cache.Redis.DB, config.CacheTTL())
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", config.Cache.Backend)
	}
}

// adapterConfigs maps the file-level provider configuration onto adapter
// configurations, resolving API keys from the environment.
func adapterConfigs(config orchestrator.Config) []llm.AdapterConfig {
	out := make([]llm.AdapterConfig, 0, len(config.Providers))
	for _, p := range config.Providers {
		out = append(out, llm.AdapterConfig{
			ID:                p.ID,
			DisplayName:       p.DisplayName,
			Type:              p.Type,
			Model:             p.Model,
			APIKey:            os.Getenv(p.APIKeyEnv),
			BaseURL:           p.BaseURL,
			Enabled:           p.Enabled,
			Timeout:           time.Duration(p.TimeoutSeconds) * time.Second,
			MaxRetries:        p.MaxRetries,
			RequestsPerSecond: p.RequestsPerSecond,
			Burst:             p.Burst,
			Temperature:       p.Temperature,
			MaxTokens:         p.MaxTokens,
			SystemPrompt:      p.SystemPrompt,
		})
	}
	return out
}
