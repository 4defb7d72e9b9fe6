package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/quorumlabs/quorum/internal/domain"
)

// Common errors returned by the client and providers.
var (
	// ErrEmptyAPIKey indicates a required API key was not provided.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrEmptyResponse indicates the backend returned an empty body.
	ErrEmptyResponse = errors.New("empty response from API")
	// ErrNoResponseChoice indicates a response with no usable choices.
	ErrNoResponseChoice = errors.New("no response choices returned")
)

// ErrorType categorizes a provider failure for retry and reporting
// decisions.
type ErrorType int

const (
	// ErrorTypeUnknown is an undetermined failure.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeAuthentication is an invalid or rejected credential.
	ErrorTypeAuthentication
	// ErrorTypeRateLimit is a provider-side rate limit.
	ErrorTypeRateLimit
	// ErrorTypeBadRequest is a malformed request or invalid parameter.
	ErrorTypeBadRequest
	// ErrorTypeNotFound is a missing resource, typically a bad model name.
	ErrorTypeNotFound
	// ErrorTypeServerError is a backend-side failure.
	ErrorTypeServerError
	// ErrorTypeContentPolicy is a content-policy block.
	ErrorTypeContentPolicy
	// ErrorTypeNetwork is a client-side transport problem.
	ErrorTypeNetwork
	// ErrorTypeTimeout is an elapsed deadline.
	ErrorTypeTimeout
)

// ProviderError normalizes backend-specific failures into one shape with a
// classification the retry middleware and the adapter can act on.
type ProviderError struct {
	// Type classifies the failure.
	Type ErrorType
	// Provider names the backend that produced the failure.
	Provider string
	// StatusCode is the HTTP status, when applicable.
	StatusCode int
	// Message is the provider's failure detail.
	Message string
	// WrappedError preserves the original error for errors.Is/As.
	WrappedError error
}

// Error satisfies the error interface.
func (e *ProviderError) Error() string {
	base := fmt.Sprintf("%s error", e.Provider)
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if ts := e.typeString(); ts != "" {
		base += fmt.Sprintf(" [%s]", ts)
	}
	if e.Message != "" {
		base += ": " + e.Message
	}
	if e.WrappedError != nil {
		base += fmt.Sprintf(": %v", e.WrappedError)
	}
	return base
}

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (e *ProviderError) Unwrap() error { return e.WrappedError }

// IsRetryable reports whether the failure is transient. Authentication and
// validation failures are permanent and must never be retried.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// Kind maps the classification onto the orchestrator's error taxonomy.
func (e *ProviderError) Kind() domain.ErrorKind {
	switch e.Type {
	case ErrorTypeAuthentication, ErrorTypeBadRequest, ErrorTypeNotFound, ErrorTypeContentPolicy:
		return domain.ErrorKindProviderDeclined
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNetwork:
		return domain.ErrorKindTransport
	case ErrorTypeTimeout:
		return domain.ErrorKindTimeout
	default:
		return domain.ErrorKindUnknown
	}
}

func (e *ProviderError) typeString() string {
	switch e.Type {
	case ErrorTypeAuthentication:
		return "authentication"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeServerError:
		return "server_error"
	case ErrorTypeContentPolicy:
		return "content_policy"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return ""
	}
}

// NewProviderError builds a classified ProviderError.
func NewProviderError(provider string, errType ErrorType, statusCode int, message string, wrapped error) *ProviderError {
	return &ProviderError{
		Type:         errType,
		Provider:     provider,
		StatusCode:   statusCode,
		Message:      message,
		WrappedError: wrapped,
	}
}

// ErrorClassifier turns raw provider errors into ProviderError instances
// using HTTP status codes and context state.
type ErrorClassifier struct {
	// Provider names the backend this classifier serves.
	Provider string
}

// ClassifyHTTPError classifies a failure by HTTP status code.
func (ec *ErrorClassifier) ClassifyHTTPError(statusCode int, message string, err error) *ProviderError {
	var errType ErrorType
	var userMessage string

	switch statusCode {
	case 401, 403:
		errType = ErrorTypeAuthentication
		userMessage = fmt.Sprintf("%s authentication failed", ec.Provider)
	case 429:
		errType = ErrorTypeRateLimit
		userMessage = fmt.Sprintf("%s rate limit exceeded", ec.Provider)
	case 400:
		errType = ErrorTypeBadRequest
		userMessage = message
	case 404:
		errType = ErrorTypeNotFound
		userMessage = message
	case 500, 502, 503, 504:
		errType = ErrorTypeServerError
		userMessage = message
	default:
		switch {
		case statusCode >= 400 && statusCode < 500:
			errType = ErrorTypeBadRequest
		case statusCode >= 500:
			errType = ErrorTypeServerError
		default:
			errType = ErrorTypeUnknown
		}
		userMessage = message
	}

	return NewProviderError(ec.Provider, errType, statusCode, userMessage, err)
}

// ClassifyContextError classifies deadline and cancellation failures.
func (ec *ErrorClassifier) ClassifyContextError(err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ec.Provider, ErrorTypeNetwork, 0, "request canceled", err)
	default:
		return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "", err)
	}
}

// ClassifyKind maps any error onto the orchestrator's error taxonomy.
// ProviderError classifications are honored; bare context errors map to
// timeout; the circuit breaker sentinel maps to circuit-open.
func ClassifyKind(err error) domain.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrCircuitOpen) {
		return domain.ErrorKindCircuitOpen
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorKindTimeout
	}
	return domain.ErrorKindUnknown
}
