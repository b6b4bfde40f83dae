package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/pkgdb/internal/config"
	"github.com/zjrosen/pkgdb/internal/log"
	"github.com/zjrosen/pkgdb/internal/presentation"
)

var (
	version   = "dev"
	cfgFile   string
	cfg       config.Config
	debugFlag bool
	textFlag  bool

	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "pkgdb",
	Short: "A local catalog of versioned packages and their dependencies",
	Long: `pkgdb keeps a persisted dependency graph of packages pulled from
configured feeds. Packages missing from the catalog are resolved through the
feeds on demand, together with their dependencies.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
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
		"config file (default: ~/.config/pkgdb/config.yaml)")
	rootCmd.PersistentFlags().StringP("cache", "p", "",
		"path to the package database file")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write debug logs (also enabled by PKGDB_DEBUG)")
	rootCmd.PersistentFlags().BoolVar(&textFlag, "text", false,
		"print human-readable text instead of JSON")

	_ = viper.BindPFlag("cache_path", rootCmd.PersistentFlags().Lookup("cache"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("cache_path", defaults.CachePath)
	viper.SetDefault("auto_save", defaults.AutoSave)
	viper.SetDefault("compress", defaults.Compress)
	viper.SetDefault("feed_timeout", defaults.FeedTimeout)
	viper.SetDefault("max_parallel_feeds", defaults.MaxParallelFeeds)
	viper.SetDefault("negative_ttl", defaults.NegativeTTL)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .pkgdb/config.yaml (current directory)
		// 2. ~/.config/pkgdb/config.yaml (user config)
		if _, err := os.Stat(".pkgdb/config.yaml"); err == nil {
			viper.SetConfigFile(".pkgdb/config.yaml")
		} else {
			viper.AddConfigPath(config.DefaultConfigDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create the default user config
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && config.DefaultConfigDir() != "" {
			defaultPath := filepath.Join(config.DefaultConfigDir(), "config.yaml")
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// setup starts logging and validates the configuration before any command.
func setup(cmd *cobra.Command, _ []string) error {
	if os.Getenv("PKGDB_DEBUG") != "" || debugFlag {
		logPath := os.Getenv("PKGDB_LOG")
		if logPath == "" {
			logPath = "debug.log"
		}
		cleanup, err := log.Init(logPath)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		logCleanup = cleanup
		log.Info(log.CatConfig, "pkgdb starting", "command", cmd.Name(), "config", viper.ConfigFileUsed())
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// configPath is where feed edits are written back.
func configPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return filepath.Join(config.DefaultConfigDir(), "config.yaml")
}

func formatter(cmd *cobra.Command) *presentation.Formatter {
	if textFlag {
		return presentation.NewTextFormatter(cmd.OutOrStdout(), termenv.EnvColorProfile() != termenv.Ascii)
	}
	return presentation.NewFormatter(cmd.OutOrStdout())
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
