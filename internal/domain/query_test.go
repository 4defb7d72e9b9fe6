package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeText_TrimsAndFolds(t *testing.T) {
	assert.Equal(t, "compare transformer architectures",
		NormalizeText("  Compare Transformer Architectures  "))
	assert.Equal(t, "", NormalizeText("   \t\n"))
}

func TestNewQuery_PreservesRawText(t *testing.T) {
	q := NewQuery(1, "req-1", "  What IS attention?  ", "tenant-a")

	assert.Equal(t, "  What IS attention?  ", q.Text, "raw text must be preserved for provider calls")
	assert.Equal(t, "what is attention?", q.Normalized)
	assert.True(t, q.Accepted, "queries start accepted until gatekeeping")
	assert.False(t, q.CreatedAt.IsZero())
}

// Cache keys that differ only in user scope must never collide; this is the
// per-tenant isolation invariant.
func TestCacheKey_ScopeIsolation(t *testing.T) {
	a := CacheKey("openai", "tenant-a", "what is attention?")
	b := CacheKey("openai", "tenant-b", "what is attention?")
	empty := CacheKey("openai", "", "what is attention?")

	require.NotEqual(t, a, b)
	require.NotEqual(t, a, empty)
	require.NotEqual(t, b, empty)
}

func TestCacheKey_Deterministic(t *testing.T) {
	k1 := CacheKey("anthropic", "scope", "query")
	k2 := CacheKey("anthropic", "scope", "query")
	assert.Equal(t, k1, k2)
}

func TestCacheKey_DistinctPerProvider(t *testing.T) {
	assert.NotEqual(t,
		CacheKey("openai", "s", "q"),
		CacheKey("google", "s", "q"))
}

// A separator in the hashed fields must not let crafted inputs collide
// across field boundaries.
func TestCacheKey_NoFieldBleed(t *testing.T) {
	assert.NotEqual(t,
		CacheKey("open", "aiq", "x"),
		CacheKey("openai", "q", "x"))
}
