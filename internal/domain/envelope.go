package domain

import "time"

// Status classifies the terminal outcome of one provider call.
type Status string

const (
	// StatusSuccess marks an envelope carrying a usable response.
	StatusSuccess Status = "success"
	// StatusTimeout marks a call abandoned at the dispatcher's deadline.
	StatusTimeout Status = "timeout"
	// StatusError marks any other failure, classified by ErrorKind.
	StatusError Status = "error"
)

// ErrorKind refines StatusError and StatusTimeout into the orchestrator's
// error taxonomy. Kinds are stable strings so the reporting layer can
// aggregate on them.
type ErrorKind string

const (
	// ErrorKindMissingCredentials means no API key was configured for the
	// provider; the adapter failed fast without a network attempt.
	ErrorKindMissingCredentials ErrorKind = "missing-credentials"
	// ErrorKindTimeout means the call exceeded its deadline.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindTransport means a transient transport or server failure
	// (network error, 5xx, rate limit). These are retried by the adapter.
	ErrorKindTransport ErrorKind = "transport-error"
	// ErrorKindProviderDeclined means the backend rejected the request
	// permanently (auth or validation failure). Never retried.
	ErrorKindProviderDeclined ErrorKind = "provider-declined"
	// ErrorKindCircuitOpen means the adapter's circuit breaker
	// short-circuited the call without network I/O.
	ErrorKindCircuitOpen ErrorKind = "circuit-open"
	// ErrorKindUnknown covers failures that resist classification.
	ErrorKindUnknown ErrorKind = "unknown"
)

// MaxStoredResponseLen caps the response text persisted by the sink.
// Envelopes in memory keep the full text; only storage truncates.
const MaxStoredResponseLen = 5000

// ResponseEnvelope is the normalized record of one provider call for one
// query. It is created once per (query, provider) pair per dispatch and is
// immutable after creation; the dispatcher owns it until it is handed to
// the judge and the persistence sink.
type ResponseEnvelope struct {
	// Provider is the stable short id of the backend that produced this.
	Provider string `json:"provider"`

	// Model is the concrete model the adapter called.
	Model string `json:"model,omitempty"`

	// Status is the terminal outcome of the call.
	Status Status `json:"status"`

	// Text is the response body. Present only when Status is success.
	Text string `json:"text,omitempty"`

	// Latency is the wall time of the call. Zero for cache hits.
	Latency time.Duration `json:"latency"`

	// TokensIn and TokensOut count prompt and completion tokens,
	// estimated when the backend does not report exact usage.
	TokensIn  int `json:"tokens_in"`
	TokensOut int `json:"tokens_out"`

	// CostUSD estimates the monetary cost of the call from the static
	// price table. Zero when the provider or model is not priced.
	CostUSD float64 `json:"cost_usd"`

	// Cached reports whether this envelope was served from the cache
	// without a network call.
	Cached bool `json:"cached"`

	// ErrorKind classifies the failure when Status is not success.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// ErrorMessage carries the failure detail when Status is not success.
	ErrorMessage string `json:"error_message,omitempty"`
}

// IsSuccess reports whether the envelope carries a usable response.
func (e ResponseEnvelope) IsSuccess() bool { return e.Status == StatusSuccess }

// NewSuccessEnvelope builds a success envelope for one provider call.
func NewSuccessEnvelope(provider, model, text string, latency time.Duration, tokensIn, tokensOut int, costUSD float64) ResponseEnvelope {
	return ResponseEnvelope{
		Provider:  provider,
		Model:     model,
		Status:    StatusSuccess,
		Text:      text,
		Latency:   latency,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		CostUSD:   costUSD,
	}
}

// NewErrorEnvelope builds a failure envelope with the given classification.
// A kind of ErrorKindTimeout yields StatusTimeout; every other kind yields
// StatusError.
func NewErrorEnvelope(provider, model string, kind ErrorKind, message string, latency time.Duration) ResponseEnvelope {
	status := StatusError
	if kind == ErrorKindTimeout {
		status = StatusTimeout
	}
	return ResponseEnvelope{
		Provider:     provider,
		Model:        model,
		Status:       status,
		Latency:      latency,
		ErrorKind:    kind,
		ErrorMessage: truncate(message, 500),
	}
}

// TruncatedText returns the response text capped at MaxStoredResponseLen
// for persistence.
func (e ResponseEnvelope) TruncatedText() string {
	return truncate(e.Text, MaxStoredResponseLen)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Cut on a rune boundary so truncation never produces invalid UTF-8.
	cut := max
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}
