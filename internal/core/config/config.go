// Package config handles configuration loading and validation for chatwidget.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hay-kot/chatwidget/internal/core/fallback"
)

// Storage drivers.
const (
	StorageJSONFile = "jsonfile"
	StorageSQLite   = "sqlite"
	StorageRedis    = "redis"
	StorageMemory   = "memory"
)

// Analytics drivers.
const (
	AnalyticsLog     = "log"
	AnalyticsChannel = "gochannel"
	AnalyticsRedis   = "redis"
)

// Config holds the application configuration.
type Config struct {
	BotName    string           `yaml:"bot_name"`
	Language   string           `yaml:"language"`
	Persist    bool             `yaml:"persist"`
	SeedDelay  time.Duration    `yaml:"seed_delay"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Escalation EscalationConfig `yaml:"escalation"`
	Storage    StorageConfig    `yaml:"storage"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Server     ServerConfig     `yaml:"server"`
	Fallback   FallbackConfig   `yaml:"fallback"`
	DataDir    string           `yaml:"-"` // set by caller, not from config file
}

// WebhookConfig configures the remote responder call.
type WebhookConfig struct {
	URL string `yaml:"url"`
	// Timeout bounds each call. Zero disables it.
	Timeout     time.Duration     `yaml:"timeout"`
	TypingDelay time.Duration     `yaml:"typing_delay"`
	Headers     map[string]string `yaml:"headers"`
}

// EscalationConfig configures the hand-off link.
type EscalationConfig struct {
	Host      string `yaml:"host"`
	Recipient string `yaml:"recipient"`
	Greeting  string `yaml:"greeting"`
	// Link is a Go template rendered with Host, Recipient, Greeting,
	// SessionID and Language.
	Link string `yaml:"link"`
}

// StorageConfig selects where sessions and conversations are kept.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	DSN         string `yaml:"dsn"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// AnalyticsConfig configures usage event tracking.
type AnalyticsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Driver    string `yaml:"driver"`
	RedisAddr string `yaml:"redis_addr"`
	Topic     string `yaml:"topic"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// FallbackConfig replaces the built-in fallback replies when Rules is set.
type FallbackConfig struct {
	Rules   []fallback.Spec `yaml:"rules"`
	Default string          `yaml:"default"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Language:  "pt",
		Persist:   true,
		SeedDelay: time.Second,
		Webhook: WebhookConfig{
			Timeout:     30 * time.Second,
			TypingDelay: 1500 * time.Millisecond,
			Headers:     map[string]string{},
		},
		Escalation: EscalationConfig{
			Host:     "wa.me",
			Greeting: "Olá! Vim pelo site e gostaria de saber mais.",
			Link:     "https://{{ .Host }}/{{ .Recipient }}?text={{ uriq .Greeting }}",
		},
		Storage: StorageConfig{
			Driver:      StorageJSONFile,
			RedisPrefix: "chatwidget:",
		},
		Analytics: AnalyticsConfig{
			Driver: AnalyticsLog,
			Topic:  "chatwidget.analytics",
		},
		Server: ServerConfig{
			Addr: ":3000",
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
// Durations are left alone; zero is meaningful for them.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Language == "" {
		c.Language = defaults.Language
	}
	if c.Escalation.Host == "" {
		c.Escalation.Host = defaults.Escalation.Host
	}
	if c.Escalation.Link == "" {
		c.Escalation.Link = defaults.Escalation.Link
	}
	if c.Escalation.Greeting == "" {
		c.Escalation.Greeting = defaults.Escalation.Greeting
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = defaults.Storage.Driver
	}
	if c.Storage.Path == "" && c.DataDir != "" {
		c.Storage.Path = filepath.Join(c.DataDir, "widget.json")
	}
	if c.Storage.DSN == "" && c.DataDir != "" {
		c.Storage.DSN = filepath.Join(c.DataDir, "widget.db")
	}
	if c.Storage.RedisPrefix == "" {
		c.Storage.RedisPrefix = defaults.Storage.RedisPrefix
	}
	if c.Analytics.Driver == "" {
		c.Analytics.Driver = defaults.Analytics.Driver
	}
	if c.Analytics.Topic == "" {
		c.Analytics.Topic = defaults.Analytics.Topic
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Webhook.Headers == nil {
		c.Webhook.Headers = map[string]string{}
	}
}

// LogsDir returns the directory for command log files.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// Resolver returns the configured fallback table, or nil to use the locale's.
func (c *Config) Resolver() *fallback.Resolver {
	if len(c.Fallback.Rules) == 0 {
		return nil
	}
	return fallback.FromSpecs(c.Fallback.Default, c.Fallback.Rules)
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
