// Package config loads engine settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the engine runtime settings.
type Config struct {
	// TickPeriod is the duration of one scheduler step.
	TickPeriod time.Duration `env:"GLYPH_TICK_PERIOD" envDefault:"50ms"`

	// DecimalScale and RoundingMode shape non-integral leveled variable values.
	DecimalScale int    `env:"GLYPH_DECIMAL_SCALE" envDefault:"2"`
	RoundingMode string `env:"GLYPH_ROUNDING_MODE" envDefault:"HALF_UP"`

	// Locale selects the catalog for limitation failure reasons.
	Locale string `env:"GLYPH_LOCALE" envDefault:"en-US"`

	// DefaultCapacity applies to items no target type declares a capacity for.
	DefaultCapacity int `env:"GLYPH_DEFAULT_CAPACITY" envDefault:"32"`

	// Database is the SQLite path for persisted item slots. Empty keeps
	// item data in memory.
	Database string `env:"GLYPH_DB"`
}

// Default returns the configuration with every default applied.
func Default() Config {
	return Config{
		TickPeriod:      50 * time.Millisecond,
		DecimalScale:    2,
		RoundingMode:    "HALF_UP",
		Locale:          "en-US",
		DefaultCapacity: 32,
	}
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the process environment into a validated Config.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.TickPeriod <= 0 {
		return fmt.Errorf("tick period must be positive, got %s", c.TickPeriod)
	}
	if c.DecimalScale < 0 || c.DecimalScale > 10 {
		return fmt.Errorf("decimal scale must be within [0, 10], got %d", c.DecimalScale)
	}
	if c.DefaultCapacity <= 0 {
		return fmt.Errorf("default capacity must be positive, got %d", c.DefaultCapacity)
	}
	if strings.TrimSpace(c.Locale) == "" {
		return fmt.Errorf("locale must not be empty")
	}
	return nil
}
