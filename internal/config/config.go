// Package config provides configuration types and defaults for pkgdb.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"github.com/zjrosen/pkgdb/internal/log"
	"github.com/zjrosen/pkgdb/internal/packagedb"
	"github.com/zjrosen/pkgdb/internal/tracing"
)

// FeedConfig names one local catalog feed.
type FeedConfig struct {
	Name string `mapstructure:"name" yaml:"name"` // "type:name", e.g. "npm:mirror"
	Path string `mapstructure:"path" yaml:"path"` // SQLite catalog file
}

// Config holds all configuration options for pkgdb.
type Config struct {
	// CachePath is the absolute path of the persisted package database.
	CachePath string `mapstructure:"cache_path"`

	// AutoSave writes the database after every successful change.
	AutoSave bool `mapstructure:"auto_save"`

	// Compress stores the database zstd-compressed.
	Compress bool `mapstructure:"compress"`

	// FeedTimeout bounds each individual feed query.
	FeedTimeout time.Duration `mapstructure:"feed_timeout"`

	// MaxParallelFeeds caps concurrent feed queries for one package.
	// Zero or less means no limit.
	MaxParallelFeeds int `mapstructure:"max_parallel_feeds"`

	// NegativeTTL is how long not-found and failed results are retained.
	// Zero keeps them until explicitly forgotten.
	NegativeTTL time.Duration `mapstructure:"negative_ttl"`

	// Feeds are consulted in this order when their answers are folded.
	Feeds []FeedConfig `mapstructure:"feeds"`

	Tracing tracing.Config `mapstructure:"tracing"`
}

// DefaultConfigDir returns ~/.config/pkgdb, or "" when there is no home
// directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "pkgdb")
}

// DefaultCachePath returns the default database location inside the
// config directory.
func DefaultCachePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "packages.db")
}

// DefaultTracesFilePath returns the default trace file for the "file"
// exporter.
func DefaultTracesFilePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// Defaults returns the configuration used when no file overrides it.
func Defaults() Config {
	tr := tracing.DefaultConfig()
	tr.FilePath = DefaultTracesFilePath()
	return Config{
		CachePath:        DefaultCachePath(),
		AutoSave:         true,
		Compress:         true,
		FeedTimeout:      30 * time.Second,
		MaxParallelFeeds: 8,
		NegativeTTL:      0,
		Tracing:          tr,
	}
}

// ValidateFeeds checks that every feed has a well-formed unique name and a
// path.
func ValidateFeeds(feeds []FeedConfig) error {
	var err error
	seen := make(map[string]bool, len(feeds))
	for i, f := range feeds {
		if _, perr := packagedb.ParseFeedName(f.Name); perr != nil {
			err = multierr.Append(err, fmt.Errorf("feeds[%d]: %w", i, perr))
		}
		if seen[f.Name] {
			err = multierr.Append(err, fmt.Errorf("feeds[%d]: duplicate feed %q", i, f.Name))
		}
		seen[f.Name] = true
		if f.Path == "" {
			err = multierr.Append(err, fmt.Errorf("feeds[%d]: path is required", i))
		}
	}
	return err
}

// ValidateTracing checks tracing configuration for errors.
func ValidateTracing(tr tracing.Config) error {
	if tr.SampleRate < 0.0 || tr.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tr.SampleRate)
	}

	switch tr.Exporter {
	case "", "none", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tr.Exporter)
	}

	if tr.Enabled {
		if tr.Exporter == "file" && tr.FilePath == "" {
			return errors.New("tracing.file_path is required when exporter is \"file\"")
		}
		if tr.Exporter == "otlp" && tr.OTLPEndpoint == "" {
			return errors.New("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// Validate checks the whole configuration and reports every problem found.
func (c Config) Validate() error {
	var err error
	if c.CachePath == "" {
		err = multierr.Append(err, errors.New("cache_path is required"))
	} else if !filepath.IsAbs(c.CachePath) {
		err = multierr.Append(err, fmt.Errorf("cache_path must be absolute, got %q", c.CachePath))
	}
	if c.FeedTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("feed_timeout must not be negative, got %s", c.FeedTimeout))
	}
	if c.NegativeTTL < 0 {
		err = multierr.Append(err, fmt.Errorf("negative_ttl must not be negative, got %s", c.NegativeTTL))
	}
	err = multierr.Append(err, ValidateFeeds(c.Feeds))
	err = multierr.Append(err, ValidateTracing(c.Tracing))
	return err
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# pkgdb configuration

# Where the package database is persisted (default: ~/.config/pkgdb/packages.db)
# cache_path: /var/cache/pkgdb/packages.db

# Save the database after every change
auto_save: true

# Store the database zstd-compressed
compress: true

# Deadline for a single feed query
feed_timeout: 30s

# Maximum feeds queried at once for one package (0 = unlimited)
max_parallel_feeds: 8

# How long not-found and failed lookups are remembered (0 = until forgotten)
negative_ttl: 0s

# Local catalog feeds, consulted in this order
feeds: []
#  - name: npm:mirror
#    path: /srv/catalogs/npm-mirror.sqlite

# tracing:
#   enabled: true
#   exporter: file       # none, file, stdout or otlp
#   file_path: ~/.config/pkgdb/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0
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
