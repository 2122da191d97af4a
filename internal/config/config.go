// Package config loads server settings from the environment, an optional
// .env file and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ROULETTE_"

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the server settings.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"roulette.db"`
	PostgresDSN   string `env:"POSTGRES_DSN"`

	AutoSaveDebounce time.Duration `env:"AUTOSAVE_DEBOUNCE" envDefault:"500ms"`
	SaveTimeout      time.Duration `env:"SAVE_TIMEOUT" envDefault:"10s"`
	LiveIdleTimeout  time.Duration `env:"LIVE_IDLE_TIMEOUT" envDefault:"1h"`
	JanitorInterval  time.Duration `env:"JANITOR_INTERVAL" envDefault:"10m"`

	LogVerbose bool   `env:"LOG_VERBOSE"`
	LogFile    string `env:"LOG_FILE"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

// Load reads .env (when present), then the environment, then args.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("roulette", flag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.StorageDriver, "storage", cfg.StorageDriver, "storage driver: sqlite, postgres or memory")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database file")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	fs.DurationVar(&cfg.AutoSaveDebounce, "autosave-debounce", cfg.AutoSaveDebounce, "delay before an auto-save")
	fs.BoolVar(&cfg.LogVerbose, "verbose", cfg.LogVerbose, "log to stdout as well as the log file")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("config: sqlite storage requires SQLITE_PATH")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: postgres storage requires POSTGRES_DSN")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.StorageDriver)
	}
	if c.AutoSaveDebounce < 0 {
		return errors.New("config: AUTOSAVE_DEBOUNCE must not be negative")
	}
	if c.SaveTimeout <= 0 || c.LiveIdleTimeout <= 0 || c.JanitorInterval <= 0 {
		return errors.New("config: SAVE_TIMEOUT, LIVE_IDLE_TIMEOUT and JANITOR_INTERVAL must be positive")
	}
	return nil
}
