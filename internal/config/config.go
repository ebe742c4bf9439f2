// Package config loads process settings from CONCLAVE_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every setting the server and CLIs read.
type Config struct {
	HTTPAddr string `env:"CONCLAVE_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"CONCLAVE_GRPC_ADDR" envDefault:":9090"`

	StoreDriver string `env:"CONCLAVE_STORE_DRIVER" envDefault:"memory"`
	StoreDSN    string `env:"CONCLAVE_STORE_DSN"`

	TokenSecret string        `env:"CONCLAVE_TOKEN_SECRET"`
	TokenTTL    time.Duration `env:"CONCLAVE_TOKEN_TTL" envDefault:"24h"`

	RateLimitRPS   float64  `env:"CONCLAVE_RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int      `env:"CONCLAVE_RATE_LIMIT_BURST" envDefault:"40"`
	MaxBodyBytes   int64    `env:"CONCLAVE_MAX_BODY_BYTES" envDefault:"65536"`
	CORSOrigins    []string `env:"CONCLAVE_CORS_ORIGINS" envSeparator:","`

	DailyCap int64 `env:"CONCLAVE_DAILY_CAP" envDefault:"100"`

	OTELEndpoint string `env:"CONCLAVE_OTEL_ENDPOINT"`

	NarratorProvider string `env:"CONCLAVE_NARRATOR_PROVIDER"`
	NarratorModel    string `env:"CONCLAVE_NARRATOR_MODEL" envDefault:"llama3.2"`
	NarratorURL      string `env:"CONCLAVE_NARRATOR_URL"`
}

// Load parses Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	switch cfg.StoreDriver {
	case "memory", "pgx", "sqlite3":
	default:
		return Config{}, fmt.Errorf("config: unknown store driver %q", cfg.StoreDriver)
	}
	if cfg.StoreDriver != "memory" && cfg.StoreDSN == "" {
		return Config{}, fmt.Errorf("config: CONCLAVE_STORE_DSN is required for driver %s", cfg.StoreDriver)
	}
	if cfg.DailyCap < 0 {
		return Config{}, fmt.Errorf("config: negative daily cap %d", cfg.DailyCap)
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
