package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "TOOLGUARD_"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load loads configuration from a YAML file, then overlays TOOLGUARD_*
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (TOOLGUARD_CHECKER_MIN_CONFIDENCE, ...)
//  2. YAML config file (~/.config/toolguard/config.yaml by default)
//  3. Defaults
//
// A missing config file is not an error; the defaults apply. Environment
// variables map section-first: TOOLGUARD_CHECKER_MIN_CONFIDENCE becomes
// checker.min_confidence, TOOLGUARD_STORE_PATH becomes store.path.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "toolguard", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and size-check through the descriptor to avoid a
		// check-then-read race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyToPath), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Booleans defaulting to true need key presence, not the zero value.
	if !k.Exists("store.watch") {
		cfg.Store.Watch = true
	}
	if !k.Exists("optimizer.enabled") {
		cfg.Optimizer.Enabled = true
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKeyToPath maps TOOLGUARD_SECTION_FIELD_NAME to section.field_name.
// Only the first underscore after the prefix separates the section, so
// compound field names keep their underscores.
func envKeyToPath(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}
