// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config is the configuration shared by the server and the CLI.
type Config struct {
	Debug   bool `env:"DEBUG" envDefault:"false"`
	LogJSON bool `env:"LOG_JSON" envDefault:"false"`

	Storage       string `env:"STORAGE" envDefault:"memory"` // memory, postgres
	PostgresDSN   string `env:"POSTGRES_DSN"`
	ClickhouseDSN string `env:"CLICKHOUSE_DSN"` // optional ledger archive

	Redis struct {
		Addr     string `env:"REDIS_ADDR"` // empty disables the guard and stream
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
		Stream   string `env:"REDIS_STREAM" envDefault:"binary:events"`
		// Payment references are remembered this long.
		PaymentRefTTL time.Duration `env:"REDIS_PAYMENT_REF_TTL" envDefault:"720h"`
	}

	Cycle struct {
		Interval time.Duration `env:"CYCLE_INTERVAL" envDefault:"24h"`
		Workers  int           `env:"CYCLE_WORKERS" envDefault:"8"`
		// Terms for a root that holds no investment of its own.
		DefaultBinaryPct decimal.Decimal `env:"CYCLE_DEFAULT_BINARY_PCT" envDefault:"10"`
		DefaultCap       decimal.Decimal `env:"CYCLE_DEFAULT_CAP" envDefault:"0"` // zero means uncapped
	}

	Placement struct {
		MaxDepth int `env:"PLACEMENT_MAX_DEPTH" envDefault:"10000"`
	}

	Currency    string `env:"CURRENCY" envDefault:"USD"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	OutputDir   string `env:"OUTPUT_DIR" envDefault:"output"`
}

// Load reads .env if present, then parses the environment.
func Load() (*Config, error) {
	// A missing .env is fine; production sets variables directly.
	_ = godotenv.Load()
	return Parse()
}

// Parse parses the environment without touching .env.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORAGE=postgres")
		}
	default:
		return fmt.Errorf("unknown STORAGE %q (want memory or postgres)", c.Storage)
	}
	if c.Cycle.Workers < 1 {
		return fmt.Errorf("CYCLE_WORKERS must be positive, got %d", c.Cycle.Workers)
	}
	if c.Cycle.Interval <= 0 {
		return fmt.Errorf("CYCLE_INTERVAL must be positive, got %s", c.Cycle.Interval)
	}
	if c.Cycle.DefaultBinaryPct.IsNegative() || c.Cycle.DefaultBinaryPct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("CYCLE_DEFAULT_BINARY_PCT must be within 0..100, got %s", c.Cycle.DefaultBinaryPct)
	}
	if c.Cycle.DefaultCap.IsNegative() {
		return fmt.Errorf("CYCLE_DEFAULT_CAP must not be negative, got %s", c.Cycle.DefaultCap)
	}
	if c.Placement.MaxDepth < 1 {
		return fmt.Errorf("PLACEMENT_MAX_DEPTH must be positive, got %d", c.Placement.MaxDepth)
	}
	return nil
}
