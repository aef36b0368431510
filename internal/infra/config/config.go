// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/renify/internal/app/tier"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig           `yaml:"server"`
	Log       LogConfig              `yaml:"log"`
	Session   SessionConfig          `yaml:"session"`
	RateLimit RateLimitConfig        `yaml:"ratelimit"`
	Tiers     TiersConfig            `yaml:"tiers"`
	Guards    map[string]GuardConfig `yaml:"guards"`
	Catalog   CatalogConfig          `yaml:"catalog"`
}

// ServerConfig represents the HTTP server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
	File   string `yaml:"file"`
}

// SessionConfig represents playback session configuration.
type SessionConfig struct {
	IdleTimeoutSec int `yaml:"idle_timeout_sec" default:"30" validate:"gte=1,lte=3600"`
}

// RateLimitConfig represents the per-actor command rate limit.
type RateLimitConfig struct {
	WindowSec        int `yaml:"window_sec" default:"30" validate:"gte=1"`
	MaxCalls         int `yaml:"max_calls" default:"5" validate:"gte=1"`
	SweepIntervalSec int `yaml:"sweep_interval_sec" default:"300" validate:"gte=1"`
}

// TiersConfig represents the queue-capacity tier table. Table values are
// either a decimal track budget or the keyword "unlimited".
type TiersConfig struct {
	Default string            `yaml:"default" default:"free"`
	Table   map[string]string `yaml:"table"`
}

// GuardConfig represents one admission guard's configuration.
type GuardConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// CatalogConfig represents the local track catalog configuration.
type CatalogConfig struct {
	Path string `yaml:"path" default:"renify.db"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("RENIFY_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("RENIFY_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("RENIFY_CATALOG_PATH"); v != "" {
		c.Catalog.Path = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	if _, err := c.TierTable(); err != nil {
		return err
	}
	return nil
}

// IdleTimeout returns the idle disconnect duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutSec) * time.Second
}

// RateWindow returns the rate limit window duration.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSec) * time.Second
}

// SweepInterval returns the limiter sweep interval.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.RateLimit.SweepIntervalSec) * time.Second
}

// TierTable parses the configured tier table. An empty table yields the
// built-in free/premium/diamond defaults.
func (c *Config) TierTable() (map[string]tier.Capacity, error) {
	if len(c.Tiers.Table) == 0 {
		return tier.DefaultTable(), nil
	}

	table := make(map[string]tier.Capacity, len(c.Tiers.Table))
	for label, raw := range c.Tiers.Table {
		if strings.EqualFold(raw, "unlimited") {
			table[label] = tier.Capacity{Unlimited: true}
			continue
		}
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return nil, errors.Newf("tier %q has invalid capacity %q", label, raw)
		}
		table[label] = tier.Capacity{Limit: limit}
	}
	return table, nil
}

// IsGuardEnabled checks if an admission guard is enabled. Guards missing
// from the config default to enabled.
func (c *Config) IsGuardEnabled(name string) bool {
	if g, ok := c.Guards[name]; ok {
		return g.Enabled
	}
	return true
}

// GuardSettings returns the settings map for an admission guard.
func (c *Config) GuardSettings(name string) map[string]any {
	if g, ok := c.Guards[name]; ok {
		return g.Settings
	}
	return nil
}
