package orchestrator

import (
	"fmt"
	"strings"

	"github.com/quorumlabs/quorum/internal/domain"
)

// DefaultMinQueryLength is the minimum normalized text length accepted
// when no threshold is configured.
const DefaultMinQueryLength = 8

// DefaultGatekeeperConfig returns the stock pattern lists: casual or
// off-topic phrasings are rejected, and a query must carry at least one
// analytical marker to pass.
func DefaultGatekeeperConfig() GatekeeperConfig {
	return GatekeeperConfig{
		MinLength: DefaultMinQueryLength,
		RejectPatterns: []string{
			"pizza", "weather", "jokes", "dress", "favorite",
			"recipe", "outfit", "football", "music", "restaurant",
		},
		PassPatterns: []string{
			"analyze", "compare", "research", "model", "vs",
			"explain", "how", "why", "architecture", "algorithm",
		},
	}
}

// Decision is the gatekeeper's verdict on one query.
type Decision struct {
	// Accepted reports whether the query may proceed to dispatch.
	Accepted bool
	// Reason explains a rejection. Empty when accepted.
	Reason string
}

// Gatekeeper rejects queries that fail minimal acceptability checks
// before any provider is called. It is pure: the same configuration and
// text always produce the same decision, and it never touches the
// network.
type Gatekeeper struct {
	minLength      int
	rejectPatterns []string
	passPatterns   []string
}

// NewGatekeeper builds a gatekeeper from configuration. Patterns are
// normalized once here so matching at request time is a plain substring
// scan.
func NewGatekeeper(config GatekeeperConfig) *Gatekeeper {
	minLength := config.MinLength
	if minLength <= 0 {
		minLength = DefaultMinQueryLength
	}
	return &Gatekeeper{
		minLength:      minLength,
		rejectPatterns: normalizePatterns(config.RejectPatterns),
		passPatterns:   normalizePatterns(config.PassPatterns),
	}
}

func normalizePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if n := domain.NormalizeText(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Accept evaluates one query text. Malformed or low-information input is
// rejected with a reason, never an error.
func (g *Gatekeeper) Accept(text string) Decision {
	normalized := domain.NormalizeText(text)

	if normalized == "" {
		return Decision{Reason: "query is empty"}
	}
	if len(normalized) < g.minLength {
		return Decision{Reason: fmt.Sprintf("query is below the minimum length of %d characters", g.minLength)}
	}

	for _, p := range g.rejectPatterns {
		if strings.Contains(normalized, p) {
			return Decision{Reason: fmt.Sprintf("query matches disallowed pattern %q", p)}
		}
	}

	if len(g.passPatterns) > 0 {
		for _, p := range g.passPatterns {
			if strings.Contains(normalized, p) {
				return Decision{Accepted: true}
			}
		}
		return Decision{Reason: "query does not look like a research question"}
	}

	return Decision{Accepted: true}
}
