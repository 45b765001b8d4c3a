// Package config loads and validates runtime configuration. Options come
// from a YAML file with environment-variable overrides; credentials come
// from the environment only and are never written to disk.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variable names for credentials.
const (
	EnvGeminiAPIKey = "SLEUTH_GEMINI_API_KEY"
	EnvSearchAPIKey = "SLEUTH_SEARCH_API_KEY"
	EnvNewsAPIKey   = "SLEUTH_NEWS_API_KEY"
)

// LLMConfig configures the completion backend and its limiter caps.
type LLMConfig struct {
	Model          string `yaml:"model"`
	RPM            int    `yaml:"rpm"`
	TPM            int    `yaml:"tpm"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Mock           bool   `yaml:"mock"` // run without a vendor backend
}

// ExtractionConfig configures the extraction pipeline.
type ExtractionConfig struct {
	BatchSize     int `yaml:"batch_size"`
	MinInputChars int `yaml:"min_input_chars"`
	ChunkChars    int `yaml:"chunk_chars"`
}

// VerificationConfig configures the verification engine.
type VerificationConfig struct {
	BatchSize              int  `yaml:"batch_size"`
	MaxQueryAttempts       int  `yaml:"max_query_attempts"`
	HumanReviewForCritical bool `yaml:"human_review_for_critical"`
	MockSearch             bool `yaml:"mock_search"` // run without a search backend
}

// DedupConfig configures fact consolidation.
type DedupConfig struct {
	SemanticThreshold float64 `yaml:"semantic_threshold"`
}

// ClassifyConfig holds the tunable constants of the credibility formula.
type ClassifyConfig struct {
	EchoAlpha      float64 `yaml:"echo_alpha"`
	ProximityDecay float64 `yaml:"proximity_decay"`
}

// CoverageTargets are the four orthogonal coverage dimensions the
// orchestrator gates refinement on.
type CoverageTargets struct {
	SourceDiversity float64 `yaml:"source_diversity"`
	Geographic      float64 `yaml:"geographic"`
	Temporal        float64 `yaml:"temporal"`
	Topic           float64 `yaml:"topic"`
}

// OrchestratorConfig bounds the refinement loop.
type OrchestratorConfig struct {
	MaxRefinements              int             `yaml:"max_refinements"`
	DiminishingReturnsThreshold float64         `yaml:"diminishing_returns_threshold"`
	Coverage                    CoverageTargets `yaml:"coverage"`
}

// CrawlerConfig configures the crawler cohort.
type CrawlerConfig struct {
	DefaultRatePerSecond float64            `yaml:"default_rate_per_second"`
	RatePerSecond        map[string]float64 `yaml:"rate_per_second"` // per-source override
	Feeds                []string           `yaml:"feeds"`
	Subreddits           []string           `yaml:"subreddits"`
	NewsAPIQuotaPerHour  int                `yaml:"news_api_quota_per_hour"`
	MinDocumentChars     int                `yaml:"min_document_chars"`
	UserAgents           []string           `yaml:"user_agents"`
}

// LoggingConfig mirrors the logging package's file-based config section.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
	Level      string          `yaml:"level" json:"level"`
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
}

// Config is the root configuration.
type Config struct {
	Workspace    string             `yaml:"workspace"`
	SnapshotDir  string             `yaml:"snapshot_dir"`
	LLM          LLMConfig          `yaml:"llm"`
	Extraction   ExtractionConfig   `yaml:"extraction"`
	Verification VerificationConfig `yaml:"verification"`
	Dedup        DedupConfig        `yaml:"dedup"`
	Classify     ClassifyConfig     `yaml:"classify"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Crawler      CrawlerConfig      `yaml:"crawler"`
	Logging      LoggingConfig      `yaml:"logging"`

	// Credentials, populated from the environment only.
	GeminiAPIKey string `yaml:"-"`
	SearchAPIKey string `yaml:"-"`
	NewsAPIKey   string `yaml:"-"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Workspace: ".",
		LLM: LLMConfig{
			Model:          "gemini-2.5-flash",
			RPM:            60,
			TPM:            100_000,
			TimeoutSeconds: 60,
		},
		Extraction: ExtractionConfig{
			BatchSize:     10,
			MinInputChars: 500,
			ChunkChars:    12_000,
		},
		Verification: VerificationConfig{
			BatchSize:              5,
			MaxQueryAttempts:       3,
			HumanReviewForCritical: true,
		},
		Dedup:    DedupConfig{SemanticThreshold: 0.3},
		Classify: ClassifyConfig{EchoAlpha: 0.2, ProximityDecay: 0.7},
		Orchestrator: OrchestratorConfig{
			MaxRefinements:              7,
			DiminishingReturnsThreshold: 0.2,
			Coverage: CoverageTargets{
				SourceDiversity: 0.7,
				Geographic:      0.6,
				Temporal:        0.5,
				Topic:           0.6,
			},
		},
		Crawler: CrawlerConfig{
			DefaultRatePerSecond: 1.0,
			NewsAPIQuotaPerHour:  4, // free tier
			MinDocumentChars:     500,
			UserAgents: []string{
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
			},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML config file over the defaults, then applies environment
// overrides and credentials. A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv pulls credentials and numeric overrides from the environment.
func (c *Config) applyEnv() {
	c.GeminiAPIKey = os.Getenv(EnvGeminiAPIKey)
	c.SearchAPIKey = os.Getenv(EnvSearchAPIKey)
	c.NewsAPIKey = os.Getenv(EnvNewsAPIKey)

	if v := os.Getenv("SLEUTH_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v, ok := envInt("SLEUTH_LLM_RPM"); ok {
		c.LLM.RPM = v
	}
	if v, ok := envInt("SLEUTH_LLM_TPM"); ok {
		c.LLM.TPM = v
	}
	if v, ok := envInt("SLEUTH_EXTRACTION_BATCH_SIZE"); ok {
		c.Extraction.BatchSize = v
	}
	if v, ok := envInt("SLEUTH_VERIFICATION_BATCH_SIZE"); ok {
		c.Verification.BatchSize = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate refuses to start when a required credential is missing and the
// corresponding mock-mode flag is off.
func (c *Config) Validate() error {
	if !c.LLM.Mock && c.GeminiAPIKey == "" {
		return fmt.Errorf("%s not set and llm.mock disabled", EnvGeminiAPIKey)
	}
	if c.Extraction.BatchSize <= 0 {
		return fmt.Errorf("extraction.batch_size must be positive")
	}
	if c.Verification.BatchSize <= 0 {
		return fmt.Errorf("verification.batch_size must be positive")
	}
	if c.Verification.MaxQueryAttempts <= 0 {
		return fmt.Errorf("verification.max_query_attempts must be positive")
	}
	if c.Orchestrator.MaxRefinements <= 0 {
		return fmt.Errorf("orchestrator.max_refinements must be positive")
	}
	if c.Classify.ProximityDecay <= 0 || c.Classify.ProximityDecay >= 1 {
		return fmt.Errorf("classify.proximity_decay must be in (0,1)")
	}
	return nil
}

// SearchMocked reports whether verification search runs without a backend.
// Missing credentials degrade to mock mode only when explicitly enabled;
// Validate has already enforced the explicit case.
func (c *Config) SearchMocked() bool {
	return c.Verification.MockSearch || c.SearchAPIKey == ""
}
