package domain

import "time"

// NoWinnerRationale is the rationale recorded when no provider produced a
// successful response. The all-failed case is a normal output shape, not an
// error.
const NoWinnerRationale = "no successful responses"

// CriteriaScores holds the three judging criteria, each bounded to [0, 1].
type CriteriaScores struct {
	// Accuracy measures agreement with the rest of the response set.
	Accuracy float64 `json:"accuracy"`
	// Coherence measures structural quality of the response text.
	Coherence float64 `json:"coherence"`
	// Completeness measures whether the response is substantial enough.
	Completeness float64 `json:"completeness"`
}

// ScoredResponse is one eligible envelope's judging result.
type ScoredResponse struct {
	// Provider is the backend that produced the response.
	Provider string `json:"provider"`
	// Criteria holds the per-criterion scores.
	Criteria CriteriaScores `json:"criteria"`
	// Combined is the weighted sum of the criteria.
	Combined float64 `json:"combined"`
	// Latency is copied from the envelope for tie-breaking and reporting.
	Latency time.Duration `json:"latency"`
}

// JudgeDecision is the judge's verdict for one query. It is created once,
// after every dispatch result has settled, and never mutated. The external
// reporting layer references it by query identifier.
type JudgeDecision struct {
	// Winner is the winning provider id, or empty when no envelope was
	// eligible to win.
	Winner string `json:"winner,omitempty"`

	// Scores lists every eligible response's judging result, ordered by
	// rank (winner first).
	Scores []ScoredResponse `json:"scores,omitempty"`

	// Combined is the winner's combined score. Zero when there is no
	// winner.
	Combined float64 `json:"combined"`

	// Rationale is a free-text explanation of the verdict.
	Rationale string `json:"rationale"`

	// TieBreak reports whether the winner was selected by the tie-break
	// chain rather than a strictly higher combined score.
	TieBreak bool `json:"tie_break"`

	// Consensus is the fraction of dispatched providers that succeeded.
	Consensus float64 `json:"consensus"`

	// CommonThemes lists the most frequent topics shared across the
	// successful responses, for the synthesis surface.
	CommonThemes []string `json:"common_themes,omitempty"`

	// DecidedAt records when the verdict was produced.
	DecidedAt time.Time `json:"decided_at"`
}

// HasWinner reports whether the decision selected a winning provider.
func (d JudgeDecision) HasWinner() bool { return d.Winner != "" }
