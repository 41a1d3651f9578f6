// Package config loads the market server's runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/talgya/mini-market/internal/economy"
)

// Config holds every runtime setting. Defaults reproduce the reference economy.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // text | json

	DBPath      string `env:"MARKET_DB_PATH" envDefault:"data/market.db"`
	CatalogPath string `env:"MARKET_CATALOG"` // Empty = built-in catalog

	GameWeeks   int           `env:"MARKET_GAME_WEEKS" envDefault:"52"`
	WeekEvery   time.Duration `env:"MARKET_WEEK_INTERVAL" envDefault:"10s"`
	EventChance float64       `env:"MARKET_EVENT_CHANCE" envDefault:"0.15"`

	APIPort     int    `env:"MARKET_API_PORT" envDefault:"8080"`
	AdminKey    string `env:"MARKET_ADMIN_KEY"`
	EventsPerHr int    `env:"MARKET_EVENTS_PER_HOUR" envDefault:"30"`
	TrustProxy  bool   `env:"MARKET_TRUST_PROXY"`

	CacheSize      int `env:"MARKET_CACHE_SIZE" envDefault:"4096"`
	CacheRetention int `env:"MARKET_CACHE_RETENTION_WEEKS" envDefault:"2"`

	TrendSwitchWeek     int     `env:"TREND_SWITCH_WEEK" envDefault:"26"`
	TrendInfluenceEarly float64 `env:"TREND_INFLUENCE_EARLY" envDefault:"0.02"`
	TrendInfluenceLate  float64 `env:"TREND_INFLUENCE_LATE" envDefault:"-0.015"`
	PriceChangeMaxRatio float64 `env:"PRICE_CHANGE_MAX_RATIO" envDefault:"0.3"`
	StochasticScale     float64 `env:"STOCHASTIC_SCALE" envDefault:"0.1"`
	NoiseFrequency      float64 `env:"NOISE_FREQUENCY" envDefault:"0.37"`
	HistoryLength       int     `env:"PRICE_HISTORY_LENGTH" envDefault:"12"`
}

// Load reads an optional .env file, then parses the environment.
func Load(files ...string) (*Config, error) {
	// A missing .env is fine; values then come from the real environment.
	_ = godotenv.Load(files...)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Economy maps the engine knobs onto an economy.Config.
func (c *Config) Economy() economy.Config {
	return economy.Config{
		TrendSwitchWeek:     c.TrendSwitchWeek,
		TrendInfluenceEarly: c.TrendInfluenceEarly,
		TrendInfluenceLate:  c.TrendInfluenceLate,
		PriceChangeMaxRatio: c.PriceChangeMaxRatio,
		StochasticScale:     c.StochasticScale,
		NoiseFrequency:      c.NoiseFrequency,
		HistoryLength:       c.HistoryLength,
	}
}

// Validate checks cross-field constraints the economy cannot see on its own.
func (c *Config) Validate() error {
	var errs []error
	if c.GameWeeks < 1 {
		errs = append(errs, &economy.ConfigurationError{Field: "MARKET_GAME_WEEKS", Reason: "must be at least 1"})
	}
	if c.TrendSwitchWeek >= c.GameWeeks {
		errs = append(errs, &economy.ConfigurationError{
			Field:  "TREND_SWITCH_WEEK",
			Reason: fmt.Sprintf("week %d is not inside a %d-week game", c.TrendSwitchWeek, c.GameWeeks),
		})
	}
	if c.EventChance < 0 || c.EventChance > 1 {
		errs = append(errs, &economy.ConfigurationError{Field: "MARKET_EVENT_CHANCE", Reason: "must be within [0, 1]"})
	}
	if c.WeekEvery <= 0 {
		errs = append(errs, &economy.ConfigurationError{Field: "MARKET_WEEK_INTERVAL", Reason: "must be positive"})
	}
	if c.CacheSize < 1 || c.CacheRetention < 0 {
		errs = append(errs, &economy.ConfigurationError{Field: "MARKET_CACHE_SIZE", Reason: "size must be positive and retention non-negative"})
	}
	if c.EventsPerHr < 1 {
		errs = append(errs, &economy.ConfigurationError{Field: "MARKET_EVENTS_PER_HOUR", Reason: "must be at least 1"})
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, &economy.ConfigurationError{Field: "LOG_FORMAT", Reason: fmt.Sprintf("unknown format %q", c.LogFormat)})
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Economy().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo, &economy.ConfigurationError{Field: "LOG_LEVEL", Reason: err.Error()}
	}
	return lvl, nil
}
