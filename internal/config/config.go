// Package config provides configuration loading for toolguard.
//
// Configuration is loaded from a YAML file, overlaid with TOOLGUARD_*
// environment variables, defaulted, and validated. Every tunable threshold
// of the learning pipeline lives here and flows into components through
// their constructors.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Config holds the complete toolguard configuration.
type Config struct {
	Store      StoreConfig      `koanf:"store"`
	Checker    CheckerConfig    `koanf:"checker"`
	Learner    LearnerConfig    `koanf:"learner"`
	Confidence ConfidenceConfig `koanf:"confidence"`
	Optimizer  OptimizerConfig  `koanf:"optimizer"`
	Tracker    TrackerConfig    `koanf:"tracker"`
	History    HistoryConfig    `koanf:"history"`
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// StoreConfig selects and locates the pattern storage backend.
type StoreConfig struct {
	// Backend is "document" or "sqlite".
	Backend string `koanf:"backend"`

	// Path is the document file or sqlite database path.
	Path string `koanf:"path"`

	// Watch reloads the document when another process rewrites it. Only
	// meaningful for the document backend.
	Watch bool `koanf:"watch"`
}

// CheckerConfig tunes the pre-call checker.
type CheckerConfig struct {
	MinConfidence   float64       `koanf:"min_confidence"`
	BlockThreshold  float64       `koanf:"block_threshold"`
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	CacheMaxEntries int           `koanf:"cache_max_entries"`
}

// LearnerConfig tunes pattern merging.
type LearnerConfig struct {
	MergeThreshold    float64           `koanf:"merge_threshold"`
	SimilarityWeights SimilarityWeights `koanf:"similarity_weights"`
}

// SimilarityWeights weights the similarity components. They must sum to 1.
type SimilarityWeights struct {
	Tokens    float64 `koanf:"tokens"`
	Parameter float64 `koanf:"parameter"`
	RootCause float64 `koanf:"root_cause"`
	Steps     float64 `koanf:"steps"`
}

// ConfidenceConfig parameterizes confidence computation.
type ConfidenceConfig struct {
	Floor             float64          `koanf:"floor"`
	Ceiling           float64          `koanf:"ceiling"`
	ObservationWeight float64          `koanf:"observation_weight"`
	SuccessWeight     float64          `koanf:"success_weight"`
	Steps             []ConfidenceStep `koanf:"steps"`
}

// ConfidenceStep maps an observation threshold to a base confidence.
type ConfidenceStep struct {
	Observations int     `koanf:"observations"`
	Base         float64 `koanf:"base"`
}

// OptimizerConfig tunes scheduled maintenance.
type OptimizerConfig struct {
	Enabled            bool          `koanf:"enabled"`
	Interval           time.Duration `koanf:"interval"`
	DecayRate          float64       `koanf:"decay_rate"`
	InactivePeriod     time.Duration `koanf:"inactive_period"`
	MaxAge             time.Duration `koanf:"max_age"`
	PruneMinConfidence float64       `koanf:"prune_min_confidence"`
}

// TrackerConfig tunes outcome analysis.
type TrackerConfig struct {
	// FailureMarkers are substrings marking a tool result as failed.
	FailureMarkers []string `koanf:"failure_markers"`
}

// HistoryConfig bounds the call history window.
type HistoryConfig struct {
	Window int `koanf:"window"`
}

// ServerConfig holds the read API server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimit is requests per second per client.
	RateLimit float64 `koanf:"rate_limit"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`
}

// DefaultConfig returns the fully-defaulted configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Store.Watch = true
	cfg.Optimizer.Enabled = true
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills every unset field with its default. Boolean defaults
// that are true (store.watch, optimizer.enabled) are handled by the loader,
// which can tell an absent key from an explicit false.
func applyDefaults(cfg *Config) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "document"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath()
	}

	if cfg.Checker.MinConfidence == 0 {
		cfg.Checker.MinConfidence = 0.75
	}
	if cfg.Checker.BlockThreshold == 0 {
		cfg.Checker.BlockThreshold = 0.95
	}
	if cfg.Checker.CacheTTL == 0 {
		cfg.Checker.CacheTTL = 5 * time.Minute
	}
	if cfg.Checker.CacheMaxEntries == 0 {
		cfg.Checker.CacheMaxEntries = 128
	}

	if cfg.Learner.MergeThreshold == 0 {
		cfg.Learner.MergeThreshold = 0.70
	}
	if cfg.Learner.SimilarityWeights == (SimilarityWeights{}) {
		cfg.Learner.SimilarityWeights = SimilarityWeights{
			Tokens:    0.4,
			Parameter: 0.3,
			RootCause: 0.2,
			Steps:     0.1,
		}
	}

	if cfg.Confidence.Floor == 0 {
		cfg.Confidence.Floor = 0.30
	}
	if cfg.Confidence.Ceiling == 0 {
		cfg.Confidence.Ceiling = 0.99
	}
	if cfg.Confidence.ObservationWeight == 0 {
		cfg.Confidence.ObservationWeight = 0.7
	}
	if cfg.Confidence.SuccessWeight == 0 {
		cfg.Confidence.SuccessWeight = 0.3
	}
	if len(cfg.Confidence.Steps) == 0 {
		cfg.Confidence.Steps = []ConfidenceStep{
			{Observations: 1, Base: 0.50},
			{Observations: 3, Base: 0.60},
			{Observations: 5, Base: 0.70},
			{Observations: 10, Base: 0.75},
			{Observations: 20, Base: 0.85},
			{Observations: 45, Base: 0.92},
			{Observations: 100, Base: 0.95},
		}
	}

	if cfg.Optimizer.Interval == 0 {
		cfg.Optimizer.Interval = 24 * time.Hour
	}
	if cfg.Optimizer.DecayRate == 0 {
		cfg.Optimizer.DecayRate = 0.05
	}
	if cfg.Optimizer.InactivePeriod == 0 {
		cfg.Optimizer.InactivePeriod = 720 * time.Hour
	}
	if cfg.Optimizer.MaxAge == 0 {
		cfg.Optimizer.MaxAge = 2160 * time.Hour
	}
	if cfg.Optimizer.PruneMinConfidence == 0 {
		cfg.Optimizer.PruneMinConfidence = 0.70
	}

	if len(cfg.Tracker.FailureMarkers) == 0 {
		cfg.Tracker.FailureMarkers = []string{
			"error", "failed", "failure", "exception",
			"traceback", "denied", "not found", "unable to",
		}
	}

	if cfg.History.Window == 0 {
		cfg.History.Window = 10
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 20
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// defaultStorePath places the pattern document under the user's local data
// directory, falling back to the working directory when home is unknown.
func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "toolguard-patterns.json"
	}
	return filepath.Join(home, ".local", "share", "toolguard", "patterns.json")
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Store.Backend != "document" && c.Store.Backend != "sqlite" {
		return fmt.Errorf("invalid store backend %q (must be document or sqlite)", c.Store.Backend)
	}
	if c.Store.Path == "" {
		return errors.New("store path required")
	}

	if err := validateUnit("checker.min_confidence", c.Checker.MinConfidence); err != nil {
		return err
	}
	if err := validateUnit("checker.block_threshold", c.Checker.BlockThreshold); err != nil {
		return err
	}
	if c.Checker.CacheTTL <= 0 {
		return errors.New("checker cache TTL must be positive")
	}
	if c.Checker.CacheMaxEntries <= 0 {
		return errors.New("checker cache size must be positive")
	}

	if err := validateUnit("learner.merge_threshold", c.Learner.MergeThreshold); err != nil {
		return err
	}
	w := c.Learner.SimilarityWeights
	if err := validateWeights("learner.similarity_weights",
		w.Tokens, w.Parameter, w.RootCause, w.Steps); err != nil {
		return err
	}

	if c.Confidence.Floor >= c.Confidence.Ceiling {
		return fmt.Errorf("confidence floor %.2f must be below ceiling %.2f",
			c.Confidence.Floor, c.Confidence.Ceiling)
	}
	if err := validateWeights("confidence blend weights",
		c.Confidence.ObservationWeight, c.Confidence.SuccessWeight); err != nil {
		return err
	}
	if err := validateSteps(c.Confidence.Steps); err != nil {
		return err
	}

	if c.Optimizer.Interval <= 0 {
		return errors.New("optimizer interval must be positive")
	}
	if c.Optimizer.DecayRate <= 0 || c.Optimizer.DecayRate > 1 {
		return fmt.Errorf("optimizer decay rate %.3f out of range (0, 1]", c.Optimizer.DecayRate)
	}
	if c.Optimizer.InactivePeriod <= 0 || c.Optimizer.MaxAge <= 0 {
		return errors.New("optimizer periods must be positive")
	}
	if err := validateUnit("optimizer.prune_min_confidence", c.Optimizer.PruneMinConfidence); err != nil {
		return err
	}

	if c.History.Window <= 0 {
		return errors.New("history window must be positive")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.RateLimit <= 0 {
		return errors.New("rate limit must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}

	return nil
}

func validateUnit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s %.3f out of range [0, 1]", name, v)
	}
	return nil
}

// validateWeights requires non-negative weights summing to 1 within a small
// tolerance.
func validateWeights(name string, weights ...float64) error {
	var sum float64
	for _, w := range weights {
		if w < 0 {
			return fmt.Errorf("%s: negative weight %.3f", name, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("%s must sum to 1, got %.6f", name, sum)
	}
	return nil
}

// validateSteps requires a table starting at observation 1 and strictly
// increasing in both columns.
func validateSteps(steps []ConfidenceStep) error {
	if len(steps) == 0 {
		return errors.New("confidence step table cannot be empty")
	}
	if steps[0].Observations != 1 {
		return fmt.Errorf("confidence step table must start at observation 1, got %d", steps[0].Observations)
	}
	for i, step := range steps {
		if step.Base <= 0 || step.Base > 1 {
			return fmt.Errorf("confidence step base %.3f out of range (0, 1]", step.Base)
		}
		if i == 0 {
			continue
		}
		if step.Observations <= steps[i-1].Observations {
			return fmt.Errorf("confidence step observations must increase, got %d after %d",
				step.Observations, steps[i-1].Observations)
		}
		if step.Base <= steps[i-1].Base {
			return fmt.Errorf("confidence step bases must increase, got %.3f after %.3f",
				step.Base, steps[i-1].Base)
		}
	}
	return nil
}
