package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPriceTable_CostComputesPerMillionRates tests the cost arithmetic.
func TestPriceTable_CostComputesPerMillionRates(t *testing.T) {
	pt := NewPriceTable()
	pt.Set("openai", "gpt-4.1-mini", ModelPrice{InputPerMillion: 0.40, OutputPerMillion: 1.60})

	cost := pt.Cost("openai", "gpt-4.1-mini", 500_000, 250_000)

	assert.InDelta(t, 0.60, cost, 1e-9, "cost should combine input and output rates")
}

// TestPriceTable_UnknownModelCostsZero tests that missing rates never
// produce a spurious cost.
func TestPriceTable_UnknownModelCostsZero(t *testing.T) {
	pt := DefaultPriceTable()

	assert.Zero(t, pt.Cost("openai", "some-future-model", 1000, 1000),
		"unknown model should cost zero")
	assert.Zero(t, pt.Cost("unknown-provider", "any", 1000, 1000),
		"unknown provider should cost zero")
}

// TestLoadPriceTable_ParsesYAML tests loading rates from a YAML file.
func TestLoadPriceTable_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.yaml")
	content := []byte(`
openai:
  gpt-4.1-mini:
    input_per_million: 0.40
    output_per_million: 1.60
anthropic:
  claude-3-5-sonnet-20241022:
    input_per_million: 3.00
    output_per_million: 15.00
`)
	require.NoError(t, os.WriteFile(path, content, 0o600), "fixture write should succeed")

	pt, err := LoadPriceTable(path)

	require.NoError(t, err, "well-formed price file should load")
	assert.InDelta(t, 1.60, pt.Cost("openai", "gpt-4.1-mini", 0, 1_000_000), 1e-9,
		"loaded output rate should apply")
	assert.InDelta(t, 3.00, pt.Cost("anthropic", "claude-3-5-sonnet-20241022", 1_000_000, 0), 1e-9,
		"loaded input rate should apply")
}

// TestLoadPriceTable_RejectsNegativeRates tests validation of rates.
func TestLoadPriceTable_RejectsNegativeRates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.yaml")
	content := []byte(`
openai:
  gpt-4.1-mini:
    input_per_million: -1.0
    output_per_million: 1.60
`)
	require.NoError(t, os.WriteFile(path, content, 0o600), "fixture write should succeed")

	_, err := LoadPriceTable(path)

	require.Error(t, err, "negative rates should be rejected")
	assert.Contains(t, err.Error(), "negative rate", "error should name the problem")
}

// TestLoadPriceTable_MissingFile tests the error path for absent files.
func TestLoadPriceTable_MissingFile(t *testing.T) {
	_, err := LoadPriceTable(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err, "missing file should fail")
}
