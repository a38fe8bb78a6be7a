// Package config provides configuration types, defaults and validation for
// rankreg.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/rankreg/internal/federation"
	"github.com/zjrosen/rankreg/internal/log"
	"github.com/zjrosen/rankreg/internal/tracing"
)

// Config holds all configuration options for rankreg.
type Config struct {
	Cache   federation.CacheConfig `mapstructure:"cache"`
	Filter  FilterConfig           `mapstructure:"filter"`
	Lookup  LookupConfig           `mapstructure:"lookup"`
	Sources []SourceConfig         `mapstructure:"sources"`
	Log     LogConfig              `mapstructure:"log"`
	Tracing tracing.Config         `mapstructure:"tracing"`
	Metrics MetricsConfig          `mapstructure:"metrics"`
	Flags   map[string]bool        `mapstructure:"flags"`
}

// FilterConfig controls how filters reach sources.
type FilterConfig struct {
	// PreferNative evaluates filters inside each source's set instead of as
	// a guarded post-filter.
	// Default: true
	PreferNative bool `mapstructure:"prefer_native"`

	// CacheTTL is how long an unused compiled filter stays cached.
	// Default: 10m
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// LookupConfig controls imports handed out by lookups.
type LookupConfig struct {
	// StickyTTL bounds how long a sticky import keeps its pinned instance.
	// Zero pins until the import is released. Only used with the
	// sticky-lookup flag.
	StickyTTL time.Duration `mapstructure:"sticky_ttl"`
}

// SourceConfig defines one descriptor directory in the federation.
// Sources are merged in declaration order; earlier sources win rank ties.
type SourceConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	Dir  string `mapstructure:"dir" yaml:"dir"`
	// MaxRank caps the rank of every handle imported from this source.
	// Nil means uncapped.
	MaxRank *int `mapstructure:"max_rank" yaml:"max_rank,omitempty"`
	// Writable marks the source that chain exports land in. At most one.
	Writable bool `mapstructure:"writable" yaml:"writable,omitempty"`
}

// LogConfig controls the category logger.
type LogConfig struct {
	// Path is the log file. Empty logs to stderr.
	Path string `mapstructure:"path"`
	// Level is "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `mapstructure:"level"`
}

// MetricsConfig controls the prometheus collectors.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	// Listen is the address /metrics is served on by long running commands.
	// Empty disables the endpoint.
	Listen string `mapstructure:"listen"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	tc := tracing.DefaultConfig()
	tc.FilePath = DefaultTracesFilePath()
	return Config{
		Cache: federation.DefaultCacheConfig(),
		Filter: FilterConfig{
			PreferNative: true,
			CacheTTL:     10 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracing: tc,
		Metrics: MetricsConfig{
			Namespace: "rankreg",
		},
	}
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/rankreg/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "rankreg", "traces", "traces.jsonl")
}

// Validate checks the whole configuration.
func Validate(cfg Config) error {
	return errors.Join(
		ValidateCache(cfg.Cache),
		ValidateFilter(cfg.Filter),
		ValidateLookup(cfg.Lookup),
		ValidateSources(cfg.Sources),
		ValidateLog(cfg.Log),
		ValidateTracing(cfg.Tracing),
	)
}

// ValidateCache checks cache configuration for errors.
func ValidateCache(cache federation.CacheConfig) error {
	if cache.Generations < 1 {
		return fmt.Errorf("cache.generations must be at least 1, got %d", cache.Generations)
	}
	if cache.FlushInterval < 0 {
		return fmt.Errorf("cache.flush_interval must not be negative, got %s", cache.FlushInterval)
	}
	return nil
}

// ValidateFilter checks filter configuration for errors.
func ValidateFilter(f FilterConfig) error {
	if f.CacheTTL < 0 {
		return fmt.Errorf("filter.cache_ttl must not be negative, got %s", f.CacheTTL)
	}
	return nil
}

// ValidateLookup checks lookup configuration for errors.
func ValidateLookup(l LookupConfig) error {
	if l.StickyTTL < 0 {
		return fmt.Errorf("lookup.sticky_ttl must not be negative, got %s", l.StickyTTL)
	}
	return nil
}

// ValidateSources checks source definitions for errors.
// Returns nil if sources are valid or empty.
func ValidateSources(sources []SourceConfig) error {
	names := make(map[string]int, len(sources))
	writable := -1
	for i, s := range sources {
		if s.Name == "" {
			return fmt.Errorf("source %d: name is required", i)
		}
		if s.Dir == "" {
			return fmt.Errorf("source %d (%s): dir is required", i, s.Name)
		}
		if prev, dup := names[s.Name]; dup {
			return fmt.Errorf("source %d: name %q already used by source %d", i, s.Name, prev)
		}
		names[s.Name] = i
		if s.Writable {
			if writable >= 0 {
				return fmt.Errorf("source %d (%s): only one writable source allowed, source %d is already writable", i, s.Name, writable)
			}
			writable = i
		}
	}
	return nil
}

// ValidateLog checks logging configuration for errors.
func ValidateLog(l LogConfig) error {
	if l.Level == "" {
		return nil
	}
	if _, err := log.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tc tracing.Config) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}

	if tc.Exporter != "" {
		switch tc.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tc.Exporter)
		}
	}

	if tc.Enabled {
		if tc.Exporter == "file" && tc.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tc.Exporter == "otlp" && tc.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// Ceilings returns the rank ceiling per source index.
func (c Config) Ceilings() map[int]int {
	out := make(map[int]int)
	for i, s := range c.Sources {
		if s.MaxRank != nil {
			out[i] = *s.MaxRank
		}
	}
	return out
}

// WritableSource returns the index of the writable source, or -1.
func (c Config) WritableSource() int {
	for i, s := range c.Sources {
		if s.Writable {
			return i
		}
	}
	return -1
}

// DefaultConfigTemplate returns the commented YAML written on first run.
func DefaultConfigTemplate() string {
	return `# rankreg configuration

# Descriptor directories merged into one ranked view, in priority order.
# Earlier sources win when ranks tie.
sources: []
#  - name: local
#    dir: ./services
#    writable: true      # chain exports land here (at most one source)
#  - name: shared
#    dir: /etc/rankreg/services
#    max_rank: 100       # cap ranks imported from this source

cache:
  flush_interval: 30s    # generation tick; 0 disables the ticker
  generations: 3         # idle flushes an entry survives (>= 1)

filter:
  prefer_native: true    # evaluate filters inside each source
  cache_ttl: 10m         # lifetime of an unused compiled filter

lookup:
  sticky_ttl: 0s         # pinned instance lifetime with sticky-lookup; 0 = until released

log:
  # path: ~/.config/rankreg/rankreg.log   # default: stderr
  level: info            # debug, info, warn, error

metrics:
  enabled: false
  namespace: rankreg
  # listen: 127.0.0.1:9464   # serve /metrics while watching

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/rankreg/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)

# Feature flags
# flags:
#   sticky-lookup: true
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
