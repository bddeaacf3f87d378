// Package config loads image-enhance-mcp settings from defaults, an optional
// YAML file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by Load.
const (
	EnvConfigPath   = "IMAGE_ENHANCE_CONFIG"
	EnvBaseURL      = "IMAGE_ENHANCE_BASE_URL"
	EnvLogLevel     = "IMAGE_ENHANCE_LOG_LEVEL"
	EnvPollInterval = "IMAGE_ENHANCE_POLL_INTERVAL"
)

// Config is the top-level server configuration.
type Config struct {
	// BaseURL is the root of the image server the save, detection and batch
	// endpoints live under.
	BaseURL string `yaml:"base_url"`

	SaveTimeout  time.Duration `yaml:"save_timeout"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// JPEGQuality is used when encoding an enhanced image for saving.
	JPEGQuality int `yaml:"jpeg_quality"`

	Log LogConfig `yaml:"log"`
}

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:      "http://localhost:5000",
		SaveTimeout:  30 * time.Second,
		FetchTimeout: 30 * time.Second,
		PollInterval: 5 * time.Second,
		JPEGQuality:  92,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration. path may be empty, in which case the
// IMAGE_ENHANCE_CONFIG variable is consulted; with neither set only defaults
// and environment overrides apply.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvPollInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPollInterval, err)
		}
		c.PollInterval = d
	}
	return nil
}

// Validate checks that values are usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL, got %q", c.BaseURL)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.JPEGQuality)
	}
	if c.SaveTimeout <= 0 {
		return errors.New("save_timeout must be > 0")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("fetch_timeout must be > 0")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be > 0")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unsupported format %q (use text or json)", c.Log.Format)
	}
	return nil
}

// NewLogger returns a logger writing to out at the configured level and
// format.
func (c LogConfig) NewLogger(out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(c.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return logger
}
