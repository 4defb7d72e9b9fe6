// Package middleware provides cross-cutting infrastructure shared by the
// orchestrator: the Prometheus metrics collector and the per-process spend
// tracker.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quorumlabs/quorum/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It covers the LLM request metrics emitted by the adapter
// middleware and the orchestrator-level pipeline metrics.
type PrometheusMetrics struct {
	llmRequests     *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	llmTokens       *prometheus.CounterVec
	queriesTotal    *prometheus.CounterVec
	cacheEvents     *prometheus.CounterVec
	pipelineLatency *prometheus.HistogramVec
	systemGauges    *prometheus.GaugeVec
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the orchestrator's metrics with the given
// registerer. Passing a fresh registry keeps tests independent; production
// callers pass prometheus.DefaultRegisterer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total LLM requests by provider, model, and outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_latency_seconds",
				Help:    "LLM request latency by provider, model, and outcome.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Tokens consumed by provider, model, and direction.",
			},
			[]string{"provider", "model", "token_type"},
		),
		queriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_queries_total",
				Help: "Queries processed by terminal outcome.",
			},
			[]string{"outcome"},
		),
		cacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_cache_events_total",
				Help: "Cache probe outcomes by provider.",
			},
			[]string{"provider", "event"},
		),
		pipelineLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_stage_duration_seconds",
				Help:    "Latency of orchestrator pipeline stages.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orchestrator_system_state",
				Help: "Current orchestrator state values.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency records a pipeline stage duration.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, _ map[string]string) {
	pm.pipelineLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter increments the counter matching the metric name. Unknown
// names route to the query outcome counter so no emission is lost.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "llm_requests_total":
		pm.llmRequests.WithLabelValues(labels["provider"], labels["model"], labels["status"]).Add(value)
	case "llm_tokens_total":
		pm.llmTokens.WithLabelValues(labels["provider"], labels["model"], labels["token_type"]).Add(value)
	case "orchestrator_cache_events_total":
		pm.cacheEvents.WithLabelValues(labels["provider"], labels["event"]).Add(value)
	default:
		outcome := labels["outcome"]
		if outcome == "" {
			outcome = metric
		}
		pm.queriesTotal.WithLabelValues(outcome).Add(value)
	}
}

// RecordGauge sets a system state gauge.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram records a value in the histogram matching the metric
// name.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "llm_latency_seconds":
		pm.llmLatency.WithLabelValues(labels["provider"], labels["model"], labels["status"]).Observe(value)
	default:
		pm.pipelineLatency.WithLabelValues(metric).Observe(value)
	}
}
