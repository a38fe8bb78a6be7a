package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/rankreg/internal/federation"
	"github.com/zjrosen/rankreg/internal/tracing"
)

func intPtr(n int) *int { return &n }

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, Validate(cfg))
	require.Equal(t, 3, cfg.Cache.Generations)
	require.Equal(t, 30*time.Second, cfg.Cache.FlushInterval)
	require.True(t, cfg.Filter.PreferNative)
}

func TestValidateCache(t *testing.T) {
	require.NoError(t, ValidateCache(federation.CacheConfig{Generations: 1}))

	err := ValidateCache(federation.CacheConfig{Generations: 0})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cache.generations")

	err = ValidateCache(federation.CacheConfig{Generations: 1, FlushInterval: -time.Second})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cache.flush_interval")
}

func TestValidateFilter(t *testing.T) {
	require.NoError(t, ValidateFilter(FilterConfig{}))
	require.Error(t, ValidateFilter(FilterConfig{CacheTTL: -1}))
}

func TestValidateLookup(t *testing.T) {
	require.NoError(t, ValidateLookup(LookupConfig{StickyTTL: time.Minute}))

	err := ValidateLookup(LookupConfig{StickyTTL: -time.Second})
	require.Error(t, err)
	require.Contains(t, err.Error(), "lookup.sticky_ttl")
}

func TestValidateSources_Empty(t *testing.T) {
	require.NoError(t, ValidateSources(nil), "empty sources should be valid")
}

func TestValidateSources(t *testing.T) {
	tests := []struct {
		name    string
		sources []SourceConfig
		wantErr string
	}{
		{
			name:    "valid",
			sources: []SourceConfig{{Name: "a", Dir: "/a", Writable: true}, {Name: "b", Dir: "/b", MaxRank: intPtr(5)}},
		},
		{
			name:    "missing name",
			sources: []SourceConfig{{Dir: "/a"}},
			wantErr: "source 0: name is required",
		},
		{
			name:    "missing dir",
			sources: []SourceConfig{{Name: "a"}},
			wantErr: "dir is required",
		},
		{
			name:    "duplicate name",
			sources: []SourceConfig{{Name: "a", Dir: "/a"}, {Name: "a", Dir: "/b"}},
			wantErr: "already used by source 0",
		},
		{
			name:    "two writable",
			sources: []SourceConfig{{Name: "a", Dir: "/a", Writable: true}, {Name: "b", Dir: "/b", Writable: true}},
			wantErr: "only one writable source",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSources(tt.sources)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateLog(t *testing.T) {
	require.NoError(t, ValidateLog(LogConfig{}))
	require.NoError(t, ValidateLog(LogConfig{Level: "debug"}))
	require.Error(t, ValidateLog(LogConfig{Level: "loud"}))
}

func TestValidateTracing(t *testing.T) {
	tests := []struct {
		name    string
		cfg     tracing.Config
		wantErr string
	}{
		{"defaults", tracing.DefaultConfig(), ""},
		{"sample rate too high", tracing.Config{SampleRate: 1.5}, "sample_rate"},
		{"sample rate negative", tracing.Config{SampleRate: -0.1}, "sample_rate"},
		{"bad exporter", tracing.Config{Exporter: "jaeger"}, "tracing.exporter"},
		{"file without path", tracing.Config{Enabled: true, Exporter: "file"}, "file_path is required"},
		{"otlp without endpoint", tracing.Config{Enabled: true, Exporter: "otlp"}, "otlp_endpoint is required"},
		{"disabled file without path", tracing.Config{Exporter: "file"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTracing(tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Cache.Generations = 0
	cfg.Log.Level = "loud"

	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cache.generations")
	require.Contains(t, err.Error(), "log.level")
}

func TestConfig_CeilingsAndWritable(t *testing.T) {
	cfg := Config{Sources: []SourceConfig{
		{Name: "a", Dir: "/a"},
		{Name: "b", Dir: "/b", MaxRank: intPtr(0), Writable: true},
	}}
	require.Equal(t, map[int]int{1: 0}, cfg.Ceilings())
	require.Equal(t, 1, cfg.WritableSource())
	require.Equal(t, -1, Config{}.WritableSource())
}

func TestDefaultConfigTemplate_UnmarshalsToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	require.Equal(t, 30*time.Second, cfg.Cache.FlushInterval)
	require.Equal(t, 3, cfg.Cache.Generations)
	require.True(t, cfg.Filter.PreferNative)
	require.Equal(t, 10*time.Minute, cfg.Filter.CacheTTL)
	require.Equal(t, "info", cfg.Log.Level)
	require.Zero(t, cfg.Lookup.StickyTTL)
	require.Empty(t, cfg.Metrics.Listen)
	require.Empty(t, cfg.Sources)
}

func TestViperUnmarshal_Sources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - name: local
    dir: ./services
    writable: true
  - name: shared
    dir: /etc/rankreg
    max_rank: 100
flags:
  sticky-lookup: true
`), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	require.Len(t, cfg.Sources, 2)
	require.Nil(t, cfg.Sources[0].MaxRank)
	require.NotNil(t, cfg.Sources[1].MaxRank)
	require.Equal(t, 100, *cfg.Sources[1].MaxRank)
	require.Equal(t, 0, cfg.WritableSource())
	require.True(t, cfg.Flags["sticky-lookup"])
}
