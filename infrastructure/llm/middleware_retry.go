package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// retryLLM retries transient failures with exponential backoff. Permanent
// failures (authentication, validation, content policy) surface
// immediately so a declined request is never re-sent.
type retryLLM struct {
	next       CoreLLM
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware creates middleware that retries transient failures with
// exponential backoff and jitter. maxRetries counts additional attempts
// beyond the first; the total delay is bounded by the context deadline, so
// retries cannot outlive the adapter's timeout budget.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{
			next:       next,
			maxRetries: maxRetries,
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

// DoRequest executes the request, retrying only when the failure is
// classified retryable and the context is still alive.
func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		response, tokensIn, tokensOut, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return response, tokensIn, tokensOut, nil
		}

		lastErr = err

		if !isRetryable(err) || ctx.Err() != nil || attempt == r.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		case <-time.After(r.backoff(attempt)):
		}
	}

	return "", 0, 0, lastErr
}

// isRetryable reports whether a failure is worth another attempt.
// Circuit-open and unclassified errors are not retried; classified errors
// follow their ProviderError retryability.
func isRetryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	return false
}

func (r *retryLLM) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	// #nosec G115 - attempt is bounded between 0 and 30
	delay := time.Duration(float64(r.baseDelay) * float64(int64(1)<<uint(attempt)))

	// ±25% jitter spreads retries from concurrent callers.
	// #nosec G404 - jitter does not need a cryptographic source
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - delay/4

	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	return delay
}

// GetModel returns the model name from the wrapped implementation.
func (r *retryLLM) GetModel() string { return r.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (r *retryLLM) SetModel(m string) { r.next.SetModel(m) }
