package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen indicates that the circuit breaker rejected a request
// without contacting the downstream service.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the current state of a circuit breaker.
type CircuitBreakerState int

// Circuit breaker states.
const (
	// StateClosed allows all requests to pass through normally.
	StateClosed CircuitBreakerState = iota

	// StateOpen rejects all requests immediately until the cooldown expires.
	StateOpen

	// StateHalfOpen allows a probe request to test service recovery.
	StateHalfOpen
)

// String returns a label suitable for logs and metrics.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker tracks consecutive failures per downstream service and
// opens after maxFailures of them, rejecting further requests until a
// cooldown passes. One probe is then admitted; its outcome decides whether
// the circuit closes again or re-opens.
//
// The request itself runs outside the breaker's lock, so concurrent
// callers are not serialized behind a slow provider.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitBreakerState
	failureCount     int
	maxFailures      int
	cooldownDuration time.Duration
	lastFailure      time.Time
	probing          bool

	now func() time.Time
}

// NewCircuitBreaker creates a circuit breaker that opens after maxFailures
// consecutive errors and stays open for cooldownDuration before probing.
func NewCircuitBreaker(maxFailures int, cooldownDuration time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		maxFailures:      maxFailures,
		cooldownDuration: cooldownDuration,
		now:              time.Now,
	}
}

// Allow reports whether a request may proceed. When the cooldown has
// elapsed it admits a single probe and moves the circuit to half-open;
// concurrent callers keep getting rejected until the probe resolves.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) < cb.cooldownDuration {
			return false
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
	return false
}

// Record updates circuit state with the outcome of an admitted request.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false

	if err != nil {
		cb.failureCount++
		cb.lastFailure = cb.now()
		if cb.state == StateHalfOpen || cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}
		return
	}

	cb.failureCount = 0
	cb.state = StateClosed
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// IsOpen reports whether the circuit is currently rejecting requests.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

// circuitBreakedLLM rejects requests fast while its breaker is open so a
// failing provider cannot consume the shared request deadline.
type circuitBreakedLLM struct {
	next CoreLLM
	cb   *CircuitBreaker
}

// CircuitBreakerMiddleware creates middleware around a fresh breaker.
// The circuit opens after maxFailures consecutive errors and stays open
// for the cooldown duration before attempting recovery.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return CircuitBreakerMiddlewareWith(NewCircuitBreaker(maxFailures, cooldown))
}

// CircuitBreakerMiddlewareWith creates middleware around an externally
// owned breaker, letting callers observe its state independently of the
// request path.
func CircuitBreakerMiddlewareWith(cb *CircuitBreaker) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &circuitBreakedLLM{next: next, cb: cb}
	}
}

// DoRequest executes the request through the circuit breaker. If the
// circuit is open this returns ErrCircuitOpen immediately without calling
// the downstream service.
func (c *circuitBreakedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if !c.cb.Allow() {
		return "", 0, 0, ErrCircuitOpen
	}

	response, tokensIn, tokensOut, err := c.next.DoRequest(ctx, prompt, opts)
	c.cb.Record(err)

	return response, tokensIn, tokensOut, err
}

// GetModel returns the model name from the wrapped implementation.
func (c *circuitBreakedLLM) GetModel() string { return c.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (c *circuitBreakedLLM) SetModel(m string) { c.next.SetModel(m) }
