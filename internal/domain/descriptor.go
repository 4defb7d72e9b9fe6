package domain

import "time"

// ProviderDescriptor is the static configuration surface of one provider,
// loaded at process start and mutated only by configuration reload.
type ProviderDescriptor struct {
	// ID is the stable short name callers use to select the provider.
	ID string `json:"id"`
	// DisplayName is the human-readable provider name for dashboards.
	DisplayName string `json:"display_name"`
	// Model is the default model the adapter calls.
	Model string `json:"model"`
	// Timeout is the adapter's per-call budget, which must not exceed the
	// dispatcher's global deadline.
	Timeout time.Duration `json:"timeout"`
	// Enabled reports whether the provider may be dispatched to at all.
	Enabled bool `json:"enabled"`
	// HasCredentials reports whether an API key was configured.
	HasCredentials bool `json:"has_credentials"`
}

// ProviderStatus is the live view of one provider exposed to the external
// dashboard collaborator.
type ProviderStatus struct {
	Enabled        bool `json:"enabled"`
	HasCredentials bool `json:"has_credentials"`
	CircuitOpen    bool `json:"circuit_open"`
}
