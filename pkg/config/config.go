package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Token configuration
	Token TokenConfig

	// Google federated sign-in configuration
	Google GoogleConfig

	// Rate limiting for credential endpoints
	RateLimit RateLimitConfig

	// Environment is "development" or "production"; development relaxes the
	// refresh-cookie attributes for cross-port local setups
	Environment string

	// LogLevel is one of debug, info, warn, error
	LogLevel string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds relational store configuration
type DatabaseConfig struct {
	Driver      string // "postgres" or "sqlite3"
	PostgresURL string
	SQLitePath  string
	MaxConns    int
	MinConns    int
	ConnTimeout time.Duration
}

// TokenConfig holds token issuance configuration
type TokenConfig struct {
	// SigningKey is the symmetric JWT signing key, decoded from base64
	SigningKey []byte

	// AccessTokenTTL is deliberately short; a stolen access token has a small
	// blast radius compared to the refresh window
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the fixed forward window for refresh tokens
	RefreshTokenTTL time.Duration
}

// GoogleConfig holds Google sign-in settings. ClientID doubles as the expected
// audience of incoming ID tokens. ClientSecret and RedirectURL are only needed
// for the server-side authorization-code flow.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether federated sign-in is configured
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != ""
}

// RateLimitConfig holds credential-endpoint rate limit settings
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
	BurstSize         int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("IDENTITY_HOST", "0.0.0.0"),
			Port:            getEnv("IDENTITY_PORT", "8080"),
			ReadTimeout:     getEnvDuration("IDENTITY_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("IDENTITY_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("IDENTITY_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("IDENTITY_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:      getEnv("IDENTITY_DB_DRIVER", "sqlite3"),
			PostgresURL: getEnv("IDENTITY_POSTGRES_URL", ""),
			SQLitePath:  getEnv("IDENTITY_SQLITE_PATH", "identity.db"),
			MaxConns:    getEnvInt("IDENTITY_DB_MAX_CONNS", 25),
			MinConns:    getEnvInt("IDENTITY_DB_MIN_CONNS", 5),
			ConnTimeout: getEnvDuration("IDENTITY_DB_CONN_TIMEOUT", 10*time.Second),
		},
		Token: TokenConfig{
			AccessTokenTTL:  getEnvDuration("IDENTITY_ACCESS_TOKEN_TTL", 10*time.Minute),
			RefreshTokenTTL: getEnvDuration("IDENTITY_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("IDENTITY_GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("IDENTITY_GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("IDENTITY_GOOGLE_REDIRECT_URL", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("IDENTITY_RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("IDENTITY_RATE_LIMIT_WINDOW", time.Minute),
			BurstSize:         getEnvInt("IDENTITY_RATE_LIMIT_BURST", 5),
		},
		Environment: getEnv("IDENTITY_ENVIRONMENT", "development"),
		LogLevel:    getEnv("IDENTITY_LOG_LEVEL", "info"),
	}

	encodedKey := getEnv("IDENTITY_TOKEN_KEY", "")
	if encodedKey != "" {
		key, err := base64.StdEncoding.DecodeString(encodedKey)
		if err != nil {
			return nil, fmt.Errorf("IDENTITY_TOKEN_KEY is not valid base64: %w", err)
		}
		cfg.Token.SigningKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres driver")
		}
	case "sqlite3":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite3 driver")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}

	if len(c.Token.SigningKey) == 0 {
		return fmt.Errorf("IDENTITY_TOKEN_KEY is required")
	}
	if len(c.Token.SigningKey) < 32 {
		return fmt.Errorf("signing key must be at least 32 bytes, got %d", len(c.Token.SigningKey))
	}
	if c.Token.AccessTokenTTL <= 0 || c.Token.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.Token.AccessTokenTTL >= c.Token.RefreshTokenTTL {
		return fmt.Errorf("access token TTL must be shorter than refresh token TTL")
	}

	switch c.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("invalid environment: %s (must be development or production)", c.Environment)
	}

	return nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnv returns a string environment variable or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
