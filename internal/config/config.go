package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Store backends selectable via STORE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"quizroom"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Store     Store
	Postgres  Postgres
	Redis     Redis
	Security  Security
	Generator Generator
	Sessions  Sessions
}

// Store selects the durable record store backing sessions and results.
type Store struct {
	Backend string `env:"STORE_BACKEND" envDefault:"postgres"`
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER"`
	Password string `env:"PG_PASSWORD"`
	Database string `env:"PG_DATABASE"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
}

// Redis holds store + cache configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Security stores secrets for verifying caller identity tokens.
type Security struct {
	JWTSecret string `env:"JWT_SECRET"`
}

// Generator configures the question set generator service.
type Generator struct {
	URL         string        `env:"GENERATOR_URL"`
	APIKey      string        `env:"GENERATOR_API_KEY"`
	HTTPTimeout time.Duration `env:"GENERATOR_TIMEOUT" envDefault:"6s"`
	CacheTTL    time.Duration `env:"QUESTION_CACHE_TTL" envDefault:"5m"`
}

// Sessions groups session lifecycle defaults.
type Sessions struct {
	TTL                  time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	DefaultQuestionCount int           `env:"DEFAULT_QUESTION_COUNT" envDefault:"5"`
	MaxQuestionCount     int           `env:"MAX_QUESTION_COUNT" envDefault:"15"`
}

// Load parses environment variables into App config and validates the
// combination (required secrets, backend-specific connection info).
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements that env tags cannot express.
func (c *App) Validate() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be configured")
	}
	if c.Generator.URL == "" {
		return fmt.Errorf("GENERATOR_URL must be configured")
	}

	switch c.Store.Backend {
	case BackendPostgres:
		if c.Postgres.Host == "" || c.Postgres.User == "" || c.Postgres.Database == "" {
			return fmt.Errorf("postgres backend requires PG_HOST, PG_USER and PG_DATABASE")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis backend requires REDIS_ADDR")
		}
	case BackendMemory:
		// no external requirements; volatile, development only
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.Sessions.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	return nil
}
