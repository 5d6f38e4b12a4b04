package config

import (
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StateStoreMemory   = "memory"
	StateStorePostgres = "postgres"
	StateStoreRedis    = "redis"

	devSessionSecret = "dev-secret-not-for-production"
	devJWTSecret     = "dev-jwt-secret-not-for-production"
)

// Config holds application configuration for the web tier, the CLI and the
// development backend.
type Config struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	BackendURL     string        `env:"BACKEND_URL" envDefault:"http://localhost:8000/api"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"15s"`
	SessionSecret  string        `env:"SESSION_SECRET"`
	CookieSecure   bool          `env:"COOKIE_SECURE"`
	DeviceName     string        `env:"DEVICE_NAME" envDefault:"sitedash-web"`

	StateStore    string `env:"STATE_STORE" envDefault:"memory"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RabbitMQURL   string `env:"RABBITMQ_URL"`

	AllowedOrigins    []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:8080"`
	Environment       string   `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	LogLevel          string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string   `env:"LOG_FORMAT" envDefault:"json"`
	OpenAPIValidation bool     `env:"OPENAPI_VALIDATION" envDefault:"true"`

	MockBackendPort   string `env:"MOCK_BACKEND_PORT" envDefault:"8000"`
	MockJWTSecret     string `env:"MOCK_JWT_SECRET"`
	GoogleClientID    string `env:"GOOGLE_CLIENT_ID" envDefault:"sitedash-dev.apps.googleusercontent.com"`
	FacebookClientID  string `env:"FACEBOOK_CLIENT_ID" envDefault:"000000000000000"`
	OAuthRedirectBase string `env:"OAUTH_REDIRECT_BASE" envDefault:"http://localhost:8080"`
}

// Load reads .env, parses the environment and validates the result. It
// exits the process on invalid configuration.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := Parse()
	if err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	return cfg
}

// Parse builds a Config from the current environment without reading .env.
func Parse() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration for security and correctness and fills
// development defaults.
func (c *Config) Validate() error {
	backend, err := url.Parse(c.BackendURL)
	if err != nil || backend.Scheme == "" || backend.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL (got %q)", c.BackendURL)
	}

	switch c.StateStore {
	case StateStoreMemory, StateStoreRedis:
	case StateStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STATE_STORE=postgres")
		}
	default:
		return fmt.Errorf("STATE_STORE must be one of memory, postgres, redis (got %q)", c.StateStore)
	}

	if c.IsProduction() {
		if c.SessionSecret == "" || c.SessionSecret == "change-this-in-production" {
			return fmt.Errorf("SESSION_SECRET must be set to a strong random value in production")
		}
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 characters in production (got %d)", len(c.SessionSecret))
		}
		if backend.Scheme != "https" {
			return fmt.Errorf("BACKEND_URL must use https in production")
		}
		c.CookieSecure = true

		for _, origin := range c.AllowedOrigins {
			if !strings.HasPrefix(origin, "https://") {
				slog.Warn("non-HTTPS origin allowed in production", slog.String("origin", origin))
			}
		}
		return nil
	}

	if c.SessionSecret == "" {
		c.SessionSecret = devSessionSecret
		slog.Info("using default SESSION_SECRET for development")
	}
	if c.MockJWTSecret == "" {
		c.MockJWTSecret = devJWTSecret
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}
