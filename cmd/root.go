package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/rankreg/internal/config"
	"github.com/zjrosen/rankreg/internal/log"
)

const defaultConfigPath = ".rankreg/config.yaml"

var (
	version    = "dev"
	cfgFile    string
	debugFlag  bool
	cfg        config.Config
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "rankreg",
	Short: "A ranked registry of service descriptors",
	Long: `rankreg merges directories of YAML service descriptors into one ranked view.

Each configured source is a directory of descriptor files. Services are ordered
by their ranking, highest first; ties are broken by source order and then by
the order the services were discovered. Filters select services by attribute:

  rankreg list 'region = eu and version matches ">=1.4"'
  rankreg resolve 'tags ~ primary'
  rankreg watch 'name in (db, cache)'`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCleanup != nil {
			logCleanup()
			logCleanup = nil
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .rankreg/config.yaml, then ~/.config/rankreg/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"log at debug level")
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("cache.flush_interval", defaults.Cache.FlushInterval)
	viper.SetDefault("cache.generations", defaults.Cache.Generations)
	viper.SetDefault("filter.prefer_native", defaults.Filter.PreferNative)
	viper.SetDefault("filter.cache_ttl", defaults.Filter.CacheTTL)
	viper.SetDefault("lookup.sticky_ttl", defaults.Lookup.StickyTTL)
	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("metrics.namespace", defaults.Metrics.Namespace)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .rankreg/config.yaml (current directory)
		// 2. ~/.config/rankreg/config.yaml (user config)
		if _, err := os.Stat(defaultConfigPath); err == nil {
			viper.SetConfigFile(defaultConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "rankreg"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .rankreg/config.yaml
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if writeErr := config.WriteDefaultConfig(defaultConfigPath); writeErr == nil {
				viper.SetConfigFile(defaultConfigPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	cfg = config.Config{}
	_ = viper.Unmarshal(&cfg)
}

// initLogging installs the logger described by the log section. --debug
// lowers the level to debug.
func initLogging(_ *cobra.Command, _ []string) error {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log configuration: %w", err)
	}
	if debugFlag {
		level = log.LevelDebug
	}

	if cfg.Log.Path == "" {
		log.InitWriter(os.Stderr, level)
		return nil
	}
	cleanup, err := log.Init(cfg.Log.Path)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	log.SetMinLevel(level)
	logCleanup = cleanup
	return nil
}

// configPath returns the file config changes are saved to.
func configPath() string {
	if p := viper.ConfigFileUsed(); p != "" {
		return p
	}
	return defaultConfigPath
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
