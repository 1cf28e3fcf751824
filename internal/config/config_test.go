package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "document", cfg.Store.Backend)
	assert.True(t, cfg.Store.Watch)
	assert.Equal(t, 0.75, cfg.Checker.MinConfidence)
	assert.Equal(t, 0.95, cfg.Checker.BlockThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Checker.CacheTTL)
	assert.Equal(t, 128, cfg.Checker.CacheMaxEntries)
	assert.Equal(t, 0.70, cfg.Learner.MergeThreshold)
	assert.Equal(t, 0.4, cfg.Learner.SimilarityWeights.Tokens)
	assert.Equal(t, 0.30, cfg.Confidence.Floor)
	assert.Equal(t, 0.99, cfg.Confidence.Ceiling)
	assert.Len(t, cfg.Confidence.Steps, 7)
	assert.True(t, cfg.Optimizer.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Optimizer.Interval)
	assert.Equal(t, 720*time.Hour, cfg.Optimizer.InactivePeriod)
	assert.Contains(t, cfg.Tracker.FailureMarkers, "not found")
	assert.Equal(t, 10, cfg.History.Window)
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: sqlite
  path: /tmp/toolguard/patterns.db
  watch: false
checker:
  min_confidence: 0.8
  cache_ttl: 90s
learner:
  merge_threshold: 0.65
optimizer:
  interval: 12h
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/toolguard/patterns.db", cfg.Store.Path)
	assert.False(t, cfg.Store.Watch)
	assert.Equal(t, 0.8, cfg.Checker.MinConfidence)
	assert.Equal(t, 90*time.Second, cfg.Checker.CacheTTL)
	assert.Equal(t, 0.65, cfg.Learner.MergeThreshold)
	assert.Equal(t, 12*time.Hour, cfg.Optimizer.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 0.95, cfg.Checker.BlockThreshold)
	assert.Equal(t, 10, cfg.History.Window)
}

func TestLoadNestedWeightsAndSteps(t *testing.T) {
	path := writeConfig(t, `
learner:
  similarity_weights:
    tokens: 0.5
    parameter: 0.3
    root_cause: 0.1
    steps: 0.1
confidence:
  steps:
    - {observations: 1, base: 0.40}
    - {observations: 10, base: 0.80}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Learner.SimilarityWeights.Tokens)
	assert.Equal(t, 0.1, cfg.Learner.SimilarityWeights.Steps)
	require.Len(t, cfg.Confidence.Steps, 2)
	assert.Equal(t, ConfidenceStep{Observations: 10, Base: 0.80}, cfg.Confidence.Steps[1])
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
checker:
  min_confidence: 0.8
`)
	t.Setenv("TOOLGUARD_CHECKER_MIN_CONFIDENCE", "0.9")
	t.Setenv("TOOLGUARD_STORE_BACKEND", "sqlite")
	t.Setenv("TOOLGUARD_STORE_PATH", "/tmp/env/patterns.db")
	t.Setenv("TOOLGUARD_SERVER_PORT", "9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.Checker.MinConfidence)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/env/patterns.db", cfg.Store.Path)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "store: [not: a: mapping")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	big := make([]byte, maxConfigFileSize+1)
	require.NoError(t, os.WriteFile(path, big, 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "too large")
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }},
		{"min confidence above one", func(c *Config) { c.Checker.MinConfidence = 1.5 }},
		{"negative block threshold", func(c *Config) { c.Checker.BlockThreshold = -0.1 }},
		{"zero cache ttl", func(c *Config) { c.Checker.CacheTTL = 0 }},
		{"similarity weights off sum", func(c *Config) { c.Learner.SimilarityWeights.Tokens = 0.5 }},
		{"negative similarity weight", func(c *Config) {
			c.Learner.SimilarityWeights.Tokens = -0.1
			c.Learner.SimilarityWeights.Parameter = 0.8
		}},
		{"floor above ceiling", func(c *Config) { c.Confidence.Floor = 0.999 }},
		{"blend weights off sum", func(c *Config) { c.Confidence.SuccessWeight = 0.5 }},
		{"step table not starting at one", func(c *Config) {
			c.Confidence.Steps = []ConfidenceStep{{Observations: 2, Base: 0.5}}
		}},
		{"step observations not increasing", func(c *Config) {
			c.Confidence.Steps = []ConfidenceStep{
				{Observations: 1, Base: 0.5},
				{Observations: 1, Base: 0.6},
			}
		}},
		{"step bases not increasing", func(c *Config) {
			c.Confidence.Steps = []ConfidenceStep{
				{Observations: 1, Base: 0.5},
				{Observations: 5, Base: 0.5},
			}
		}},
		{"zero optimizer interval", func(c *Config) { c.Optimizer.Interval = 0 }},
		{"decay rate above one", func(c *Config) { c.Optimizer.DecayRate = 1.5 }},
		{"zero history window", func(c *Config) { c.History.Window = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvKeyToPath(t *testing.T) {
	assert.Equal(t, "checker.min_confidence", envKeyToPath("TOOLGUARD_CHECKER_MIN_CONFIDENCE"))
	assert.Equal(t, "store.path", envKeyToPath("TOOLGUARD_STORE_PATH"))
	assert.Equal(t, "optimizer.prune_min_confidence", envKeyToPath("TOOLGUARD_OPTIMIZER_PRUNE_MIN_CONFIDENCE"))
	assert.Equal(t, "history.window", envKeyToPath("TOOLGUARD_HISTORY_WINDOW"))
}
