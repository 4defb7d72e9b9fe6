package llm

import (
	"fmt"
	"net/url"
	"time"
)

// Validation bounds for common request parameters, shared across providers.
const (
	// MinTemperature and MaxTemperature bound the sampling temperature.
	// The upper bound is 2.0 to accommodate Gemini and newer OpenAI models.
	MinTemperature = 0.0
	MaxTemperature = 2.0
	// MinTopP and MaxTopP bound nucleus sampling.
	MinTopP = 0.0
	MaxTopP = 1.0
	// DefaultMaxTokens is the completion cap applied when callers do not
	// set one.
	DefaultMaxTokens = 1024
	// MinTimeout and MaxTimeout bound a request timeout.
	MinTimeout = 1 * time.Second
	MaxTimeout = 10 * time.Minute
)

// IsValidTemperature reports whether val lies in [0.0, 2.0].
func IsValidTemperature(val float64) bool {
	return val >= MinTemperature && val <= MaxTemperature
}

// IsValidTopP reports whether val lies in [0.0, 1.0].
func IsValidTopP(val float64) bool {
	return val >= MinTopP && val <= MaxTopP
}

// IsPositiveInt reports whether val is positive.
func IsPositiveInt(val int) bool { return val > 0 }

// IsNonEmptyString reports whether val is non-empty.
func IsNonEmptyString(val string) bool { return val != "" }

// ExtractOptionalInt reads an int from an options map, returning defaultVal
// when the key is absent, mistyped, or fails validation.
func ExtractOptionalInt(opts map[string]any, key string, defaultVal int, validator func(int) bool) int {
	if opts == nil {
		return defaultVal
	}
	val, ok := opts[key]
	if !ok {
		return defaultVal
	}
	intVal, ok := val.(int)
	if !ok {
		return defaultVal
	}
	if validator != nil && !validator(intVal) {
		return defaultVal
	}
	return intVal
}

// ExtractOptionalString reads a string from an options map, returning
// defaultVal when the key is absent, mistyped, or fails validation.
func ExtractOptionalString(opts map[string]any, key string, defaultVal string, validator func(string) bool) string {
	if opts == nil {
		return defaultVal
	}
	val, ok := opts[key]
	if !ok {
		return defaultVal
	}
	strVal, ok := val.(string)
	if !ok {
		return defaultVal
	}
	if validator != nil && !validator(strVal) {
		return defaultVal
	}
	return strVal
}

// ExtractOptionalFloat64 reads a float64 from an options map, returning
// defaultVal when the key is absent, mistyped, or fails validation.
// Integer values are accepted and converted.
func ExtractOptionalFloat64(opts map[string]any, key string, defaultVal float64, validator func(float64) bool) float64 {
	if opts == nil {
		return defaultVal
	}
	val, ok := opts[key]
	if !ok {
		return defaultVal
	}

	var floatVal float64
	switch v := val.(type) {
	case float64:
		floatVal = v
	case float32:
		floatVal = float64(v)
	case int:
		floatVal = float64(v)
	default:
		return defaultVal
	}

	if validator != nil && !validator(floatVal) {
		return defaultVal
	}
	return floatVal
}

// ValidateBaseURL normalizes a base URL override and rejects schemes other
// than http and https.
func ValidateBaseURL(baseURL string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	return parsed.String(), nil
}

// ValidateTimeout clamps a timeout into the supported range.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout < MinTimeout {
		return MinTimeout
	}
	if timeout > MaxTimeout {
		return MaxTimeout
	}
	return timeout
}

// ClampFloat64 restricts val to [min, max].
func ClampFloat64(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// ClampInt restricts val to [min, max].
func ClampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
