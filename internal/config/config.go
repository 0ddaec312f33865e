package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	BotToken string  `env:"BOT_TOKEN,required,notEmpty"`
	AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"savings_bot.db"`
	DatabaseURL   string `env:"DATABASE_URL"`

	LedgerLock       string `env:"LEDGER_LOCK" envDefault:"local"`
	RedisAddr        string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	LedgerMaxRetries int    `env:"LEDGER_MAX_RETRIES" envDefault:"5"`

	Timezone         string        `env:"TZ" envDefault:"Europe/Moscow"`
	RemindDaysBefore []int         `env:"REMIND_DAYS_BEFORE" envSeparator:"," envDefault:"1,0"`
	RemindHour       int           `env:"REMIND_HOUR" envDefault:"10"`
	RemindEvery      time.Duration `env:"REMIND_EVERY" envDefault:"1m"`

	HTTPAddr    string `env:"HTTP_ADDR"`
	LogMode     string `env:"LOG_MODE" envDefault:"dev"`
	OTelEnabled bool   `env:"OTEL_ENABLED" envDefault:"false"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

func (c *Config) Validate() error {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	switch c.StorageDriver {
	case "sqlite", "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	c.LedgerLock = strings.ToLower(strings.TrimSpace(c.LedgerLock))
	if c.LedgerLock != "local" && c.LedgerLock != "redis" {
		return fmt.Errorf("unknown LEDGER_LOCK %q", c.LedgerLock)
	}

	if c.LedgerMaxRetries < 0 {
		return fmt.Errorf("LEDGER_MAX_RETRIES must not be negative")
	}
	if c.RemindHour < 0 || c.RemindHour > 23 {
		return fmt.Errorf("REMIND_HOUR must be within 0..23")
	}

	var days []int
	for _, d := range c.RemindDaysBefore {
		if d >= 0 && d <= 31 {
			days = append(days, d)
		}
	}
	c.RemindDaysBefore = days
	return nil
}

// Location resolves Timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
