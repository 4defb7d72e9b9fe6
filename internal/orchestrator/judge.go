package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/quorumlabs/quorum/internal/domain"
)

// maxCommonThemes caps the synthesized theme list.
const maxCommonThemes = 5

// completenessSaturationWords is the word count at which the completeness
// criterion reaches its maximum.
const completenessSaturationWords = 100

// stopwords are excluded from theme extraction.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "this": true, "to": true, "was": true, "were": true,
	"which": true, "will": true, "with": true, "you": true, "your": true,
	"can": true, "not": true, "they": true, "their": true, "there": true,
}

// Judge scores the successful envelopes of one dispatch and picks a
// winner deterministically: identical inputs always produce identical
// scores, the same winner, and the same themes. Scoring is heuristic and
// entirely local; the judge never calls a provider.
type Judge struct {
	accuracyWeight     float64
	coherenceWeight    float64
	completenessWeight float64
}

// NewJudge builds a judge from criterion weights. Non-positive weight
// sets fall back to equal weights.
func NewJudge(config JudgeConfig) *Judge {
	total := config.AccuracyWeight + config.CoherenceWeight + config.CompletenessWeight
	if total <= 0 {
		config = DefaultJudgeConfig()
		total = config.AccuracyWeight + config.CoherenceWeight + config.CompletenessWeight
	}
	return &Judge{
		accuracyWeight:     config.AccuracyWeight / total,
		coherenceWeight:    config.CoherenceWeight / total,
		completenessWeight: config.CompletenessWeight / total,
	}
}

// Decide scores every successful envelope and returns the verdict. Only
// successful envelopes are eligible to win; with zero eligible envelopes
// the decision carries no winner and the no-successful-responses
// rationale, which is a normal output shape rather than an error.
func (j *Judge) Decide(query domain.Query, responses map[string]domain.ResponseEnvelope) domain.JudgeDecision {
	eligible := eligibleEnvelopes(responses)

	decision := domain.JudgeDecision{
		DecidedAt: time.Now().UTC(),
	}
	if len(responses) > 0 {
		decision.Consensus = float64(len(eligible)) / float64(len(responses))
	}

	if len(eligible) == 0 {
		decision.Rationale = domain.NoWinnerRationale
		return decision
	}

	scored := make([]domain.ScoredResponse, 0, len(eligible))
	for _, env := range eligible {
		criteria := j.score(env, eligible)
		scored = append(scored, domain.ScoredResponse{
			Provider: env.Provider,
			Criteria: criteria,
			Combined: j.combine(criteria),
			Latency:  env.Latency,
		})
	}

	// Rank by combined score, then the fixed tie-break chain: accuracy,
	// then latency, then provider id. The chain is total, so the order
	// is fully deterministic.
	sort.Slice(scored, func(a, b int) bool {
		if scored[a].Combined != scored[b].Combined {
			return scored[a].Combined > scored[b].Combined
		}
		if scored[a].Criteria.Accuracy != scored[b].Criteria.Accuracy {
			return scored[a].Criteria.Accuracy > scored[b].Criteria.Accuracy
		}
		if scored[a].Latency != scored[b].Latency {
			return scored[a].Latency < scored[b].Latency
		}
		return scored[a].Provider < scored[b].Provider
	})

	winner := scored[0]
	decision.Winner = winner.Provider
	decision.Scores = scored
	decision.Combined = winner.Combined
	decision.TieBreak = len(scored) > 1 && scored[1].Combined == winner.Combined
	decision.CommonThemes = commonThemes(eligible)

	if decision.TieBreak {
		decision.Rationale = fmt.Sprintf(
			"%s selected by tie-break among %d responses with combined score %.3f",
			winner.Provider, len(scored), winner.Combined)
	} else {
		decision.Rationale = fmt.Sprintf(
			"%s scored highest (%.3f) among %d successful responses",
			winner.Provider, winner.Combined, len(scored))
	}

	return decision
}

// eligibleEnvelopes returns the successful envelopes sorted by provider
// id so every downstream step iterates in a stable order.
func eligibleEnvelopes(responses map[string]domain.ResponseEnvelope) []domain.ResponseEnvelope {
	eligible := make([]domain.ResponseEnvelope, 0, len(responses))
	for _, env := range responses {
		if env.IsSuccess() {
			eligible = append(eligible, env)
		}
	}
	sort.Slice(eligible, func(a, b int) bool {
		return eligible[a].Provider < eligible[b].Provider
	})
	return eligible
}

func (j *Judge) score(env domain.ResponseEnvelope, eligible []domain.ResponseEnvelope) domain.CriteriaScores {
	return domain.CriteriaScores{
		Accuracy:     accuracyScore(env, eligible),
		Coherence:    coherenceScore(env.Text),
		Completeness: completenessScore(env.Text),
	}
}

func (j *Judge) combine(c domain.CriteriaScores) float64 {
	return j.accuracyWeight*c.Accuracy +
		j.coherenceWeight*c.Coherence +
		j.completenessWeight*c.Completeness
}

// accuracyScore measures agreement with the rest of the response set as
// the mean normalized Levenshtein similarity against every other eligible
// response. A lone response scores full marks; there is nothing to
// disagree with.
func accuracyScore(env domain.ResponseEnvelope, eligible []domain.ResponseEnvelope) float64 {
	if len(eligible) < 2 {
		return 1.0
	}

	own := domain.NormalizeText(env.Text)
	var sum float64
	var count int
	for _, other := range eligible {
		if other.Provider == env.Provider {
			continue
		}
		sum += textSimilarity(own, domain.NormalizeText(other.Text))
		count++
	}
	if count == 0 {
		return 1.0
	}
	return sum / float64(count)
}

// textSimilarity is 1 minus the normalized Levenshtein distance.
func textSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(distance)/float64(longest)
}

// coherenceScore is the unique-word ratio of the response: heavily
// repetitive text scores low, varied text scores high.
func coherenceScore(text string) float64 {
	words := strings.Fields(domain.NormalizeText(text))
	if len(words) == 0 {
		return 0
	}
	unique := make(map[string]bool, len(words))
	for _, w := range words {
		unique[w] = true
	}
	return float64(len(unique)) / float64(len(words))
}

// completenessScore grows linearly with word count and saturates at the
// configured word budget, so substantial answers score high without
// rewarding unbounded length.
func completenessScore(text string) float64 {
	words := len(strings.Fields(text))
	if words >= completenessSaturationWords {
		return 1.0
	}
	return float64(words) / float64(completenessSaturationWords)
}

// commonThemes extracts the most frequent non-stopword terms shared
// across the successful responses. Frequency ties are broken lexically so
// the list is deterministic.
func commonThemes(eligible []domain.ResponseEnvelope) []string {
	frequency := make(map[string]int)
	for _, env := range eligible {
		for _, word := range strings.Fields(domain.NormalizeText(env.Text)) {
			word = strings.Trim(word, ".,;:!?\"'()[]")
			if len(word) < 4 || stopwords[word] {
				continue
			}
			frequency[word]++
		}
	}
	if len(frequency) == 0 {
		return nil
	}

	words := make([]string, 0, len(frequency))
	for w := range frequency {
		words = append(words, w)
	}
	sort.Slice(words, func(a, b int) bool {
		if frequency[words[a]] != frequency[words[b]] {
			return frequency[words[a]] > frequency[words[b]]
		}
		return words[a] < words[b]
	})

	if len(words) > maxCommonThemes {
		words = words[:maxCommonThemes]
	}
	return words
}
