package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	require.Equal(t, 10, cfg.Extraction.BatchSize)
	require.Equal(t, 3, cfg.Verification.MaxQueryAttempts)
	require.True(t, cfg.Verification.HumanReviewForCritical)
	require.Equal(t, 0.3, cfg.Dedup.SemanticThreshold)
	require.Equal(t, 0.2, cfg.Classify.EchoAlpha)
	require.Equal(t, 0.7, cfg.Classify.ProximityDecay)
	require.Equal(t, 7, cfg.Orchestrator.MaxRefinements)
	require.Equal(t, 0.7, cfg.Orchestrator.Coverage.SourceDiversity)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sleuth.yaml")
	body := `
llm:
  model: gemini-2.5-pro
  rpm: 10
extraction:
  batch_size: 4
orchestrator:
  max_refinements: 3
crawler:
  rate_per_second:
    reddit: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	require.Equal(t, 10, cfg.LLM.RPM)
	require.Equal(t, 4, cfg.Extraction.BatchSize)
	require.Equal(t, 3, cfg.Orchestrator.MaxRefinements)
	require.Equal(t, 0.5, cfg.Crawler.RatePerSecond["reddit"])

	// Untouched sections keep their defaults.
	require.Equal(t, 5, cfg.Verification.BatchSize)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Extraction.BatchSize)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvGeminiAPIKey, "key-123")
	t.Setenv("SLEUTH_LLM_RPM", "5")
	t.Setenv("SLEUTH_EXTRACTION_BATCH_SIZE", "2")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "key-123", cfg.GeminiAPIKey)
	require.Equal(t, 5, cfg.LLM.RPM)
	require.Equal(t, 2, cfg.Extraction.BatchSize)
}

func TestValidateCredentialGate(t *testing.T) {
	t.Setenv(EnvGeminiAPIKey, "")

	cfg := Default()
	cfg.GeminiAPIKey = ""
	require.Error(t, cfg.Validate(), "missing key without mock mode must refuse to start")

	cfg.LLM.Mock = true
	require.NoError(t, cfg.Validate())

	cfg.LLM.Mock = false
	cfg.GeminiAPIKey = "present"
	require.NoError(t, cfg.Validate())
}

func TestValidateBounds(t *testing.T) {
	cfg := Default()
	cfg.LLM.Mock = true

	cfg.Extraction.BatchSize = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.LLM.Mock = true
	cfg.Classify.ProximityDecay = 1.0
	require.Error(t, cfg.Validate())
}

func TestSearchMocked(t *testing.T) {
	cfg := Default()
	cfg.SearchAPIKey = ""
	require.True(t, cfg.SearchMocked())

	cfg.SearchAPIKey = "k"
	require.False(t, cfg.SearchMocked())

	cfg.Verification.MockSearch = true
	require.True(t, cfg.SearchMocked())
}
