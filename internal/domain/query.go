// Package domain defines the core data contract for the query orchestrator:
// queries, provider response envelopes, judge decisions, and the cache key
// derivation shared by every layer. Types in this package are plain values
// with no I/O so they can flow between the dispatcher, judge, cache, and
// persistence sink without coupling those layers to each other.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// foldCaser is a package-level Unicode case folder.
// Folding is used for hashing and gatekeeping only; the raw query text is
// always preserved for the actual provider calls.
var foldCaser = cases.Fold()

// Query is a single user query submitted to the orchestrator.
// A Query is immutable once gatekeeping has run; the Accepted and
// RejectReason fields are set exactly once and never mutated afterward.
type Query struct {
	// ID is a monotonically increasing identifier assigned per process.
	ID uint64 `json:"id"`

	// RequestID is a UUID correlating this query across logs, metrics,
	// and the persistence sink.
	RequestID string `json:"request_id"`

	// Text is the raw query text exactly as submitted.
	Text string `json:"text"`

	// Normalized is the trimmed, case-folded form of Text.
	// It exists only for cache key derivation and gatekeeper matching.
	Normalized string `json:"normalized"`

	// UserScope is the optional owning-user scope. It participates in
	// cache key derivation so tenants never observe each other's entries.
	UserScope string `json:"user_scope,omitempty"`

	// CreatedAt records when the query was submitted.
	CreatedAt time.Time `json:"created_at"`

	// Accepted reports the gatekeeper's verdict.
	Accepted bool `json:"accepted"`

	// RejectReason holds the gatekeeper's reason when Accepted is false.
	RejectReason string `json:"reject_reason,omitempty"`
}

// NewQuery builds a Query with its normalized form precomputed.
// The query starts accepted; the gatekeeper downgrades it if needed.
func NewQuery(id uint64, requestID, text, userScope string) Query {
	return Query{
		ID:         id,
		RequestID:  requestID,
		Text:       text,
		Normalized: NormalizeText(text),
		UserScope:  userScope,
		CreatedAt:  time.Now().UTC(),
		Accepted:   true,
	}
}

// NormalizeText returns the canonical form of query text used for hashing
// and pattern matching: surrounding whitespace removed and Unicode case
// folded. The result is never sent to a provider.
func NormalizeText(text string) string {
	return foldCaser.String(strings.TrimSpace(text))
}

// QueryHash returns the sha256 hex digest of the normalized text, used in
// logs and reports to reference a query without reproducing it.
func (q Query) QueryHash() string {
	sum := sha256.Sum256([]byte(q.Normalized))
	return hex.EncodeToString(sum[:])
}

// cacheKeySeparator joins the cache key parts. A non-printable separator
// keeps crafted inputs from colliding across field boundaries.
const cacheKeySeparator = "\x1f"

// CacheKey derives the deterministic cache key for one (provider, scope,
// query) combination. The user scope always participates in the hash: the
// empty scope is a distinct namespace, and keys that differ only in scope
// never collide. Deployments with per-tenant isolation requirements must
// pass the tenant scope through on every call.
func CacheKey(providerID, userScope, normalizedText string) string {
	h := sha256.New()
	h.Write([]byte(providerID))
	h.Write([]byte(cacheKeySeparator))
	h.Write([]byte(userScope))
	h.Write([]byte(cacheKeySeparator))
	h.Write([]byte(normalizedText))
	return hex.EncodeToString(h.Sum(nil))
}

// QueryRecord is the complete, consistent snapshot handed to the
// persistence sink exactly once per finalized query.
type QueryRecord struct {
	Query     Query                       `json:"query"`
	Responses map[string]ResponseEnvelope `json:"responses"`
	Decision  JudgeDecision               `json:"decision"`
}
