package llm

import (
	"context"
	"errors"
	"time"

	"github.com/quorumlabs/quorum/internal/ports"
)

// metricsLLM records request latency, outcome, and token counts for one
// provider. The provider label is supplied at construction rather than
// inferred from the model name, so custom model overrides stay attributed
// correctly.
type metricsLLM struct {
	next      CoreLLM
	provider  string
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that collects per-request metrics
// labeled with the given provider identifier.
func MetricsMiddleware(provider string, collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{
			next:      next,
			provider:  provider,
			collector: collector,
		}
	}
}

// DoRequest executes the request while recording latency, status, and
// token usage.
func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"provider": m.provider,
		"model":    m.next.GetModel(),
		"status":   "success",
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrCircuitOpen):
			labels["status"] = "circuit_open"
		case errors.Is(err, context.DeadlineExceeded):
			labels["status"] = "timeout"
		default:
			labels["status"] = "error"
		}
	}

	if m.collector != nil {
		m.collector.RecordHistogram("llm_latency_seconds", time.Since(start).Seconds(), labels)
		m.collector.RecordCounter("llm_requests_total", 1, labels)

		if err == nil {
			labels["token_type"] = "input"
			m.collector.RecordCounter("llm_tokens_total", float64(tokensIn), labels)

			labels["token_type"] = "output"
			m.collector.RecordCounter("llm_tokens_total", float64(tokensOut), labels)
		}
	}

	return response, tokensIn, tokensOut, err
}

// GetModel returns the model name from the wrapped implementation.
func (m *metricsLLM) GetModel() string { return m.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }
