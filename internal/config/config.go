// Package config loads, defaults and validates the apitree YAML configuration.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/apitree/internal/foundation/errors"
	"git.home.luguber.info/inful/apitree/internal/naming"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "apitree.yaml"

// ScannerKind selects the unit source.
type ScannerKind string

const (
	// ScannerPython walks source roots and parses Python files.
	ScannerPython ScannerKind = "python"
	// ScannerUnits treats every root as a pre-scanned units file.
	ScannerUnits ScannerKind = "units"
)

// Config is the complete apitree configuration.
type Config struct {
	Sources    SourcesConfig `yaml:"sources"`
	Ignore     IgnoreConfig  `yaml:"ignore"`
	Naming     naming.Policy `yaml:"naming"`
	Render     RenderConfig  `yaml:"render"`
	SourceLink string        `yaml:"source_link,omitempty"`
	// SourceLinkRev is substituted for {rev} when a root is not a git checkout.
	SourceLinkRev string        `yaml:"source_link_rev,omitempty"`
	Output        OutputConfig  `yaml:"output"`
	History       HistoryConfig `yaml:"history"`
	Watch         WatchConfig   `yaml:"watch"`
}

// SourcesConfig lists the source roots and how they are scanned.
type SourcesConfig struct {
	Roots          []string    `yaml:"roots"`
	Scanner        ScannerKind `yaml:"scanner,omitempty"`
	MaxFileSize    int64       `yaml:"max_file_size,omitempty"`
	IncludePrivate bool        `yaml:"include_private,omitempty"`
}

// IgnoreConfig holds exclusion patterns.
type IgnoreConfig struct {
	Patterns []string `yaml:"patterns,omitempty"`
	// File is looked up at every source root; "-" disables it.
	File string `yaml:"file,omitempty"`
}

// RenderConfig selects the template set and page options.
type RenderConfig struct {
	Template    string `yaml:"template,omitempty"`
	Title       string `yaml:"title,omitempty"`
	TOCDepth    int    `yaml:"toc_depth,omitempty"`
	Workers     int    `yaml:"workers,omitempty"`
	FailOnError bool   `yaml:"fail_on_error,omitempty"`
	VerifyLinks *bool  `yaml:"verify_links,omitempty"`
}

// OutputConfig describes where pages go.
type OutputConfig struct {
	Directory string `yaml:"directory,omitempty"`
	// Prune removes pages listed in the previous manifest that the current build no longer produces.
	Prune bool `yaml:"prune,omitempty"`
}

// HistoryConfig controls the SQLite build history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// WatchConfig tunes `apitree watch`.
type WatchConfig struct {
	Debounce string `yaml:"debounce,omitempty"`
	// Interval schedules a periodic full rebuild; empty disables it.
	Interval string `yaml:"interval,omitempty"`
}

// ShouldVerifyLinks reports whether the verify_links stage runs (default true).
func (r RenderConfig) ShouldVerifyLinks() bool {
	return r.VerifyLinks == nil || *r.VerifyLinks
}

// DebounceDuration returns the parsed debounce window.
func (w WatchConfig) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(w.Debounce)
	if err != nil {
		return defaultDebounce
	}
	return d
}

// IntervalDuration returns the periodic rebuild interval, zero when disabled.
func (w WatchConfig) IntervalDuration() time.Duration {
	if w.Interval == "" {
		return 0
	}
	d, err := time.ParseDuration(w.Interval)
	if err != nil {
		return 0
	}
	return d
}

// Load reads, expands, defaults and validates the configuration at path.
// .env and .env.local next to the working directory are loaded first and
// never override variables that are already set.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	// #nosec G304 -- path is the user's configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", path).
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			Fatal().
			WithContext("path", path).
			Build()
	}
	return Parse(data)
}

// Parse decodes configuration bytes with ${VAR} expansion, then applies
// defaults and validation.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").
			Fatal().
			Build()
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a defaulted configuration for the given roots.
func Default(roots ...string) *Config {
	cfg := &Config{Sources: SourcesConfig{Roots: roots}}
	ApplyDefaults(cfg)
	return cfg
}
