// Package config loads the YAML configuration of the scheduling
// service.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// Timezone is the IANA timezone used when forms omit an explicit
	// zone (e.g. "America/New_York").
	Timezone string `yaml:"timezone"`

	// DatabaseURL is a pgx connection string. Empty selects the
	// in-memory store.
	DatabaseURL string `yaml:"database_url"`

	// MetricsEnabled exposes /metrics when true.
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// MaxOccurrences caps recurrence expansion. Zero keeps the engine
	// default.
	MaxOccurrences int `yaml:"max_occurrences"`
}

// Default returns an in-memory default configuration.
func Default() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "UTC",
	}
}

// Normalize fills missing values with defaults and validates the ones
// that cannot be defaulted.
func (c *Config) Normalize() error {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: unknown timezone %q: %w", c.Timezone, err)
	}
	if c.MaxOccurrences < 0 {
		return fmt.Errorf("config: max_occurrences must not be negative")
	}
	return nil
}

// Location resolves the configured timezone. Normalize must have
// succeeded first.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from the given YAML path. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
