// Package config defines the global configuration structure for the PawKeeper
// backend. Configuration is loaded once at process initialization and is
// immutable thereafter, strictly separating code from configuration.
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import "time"

// Config is the top-level configuration struct for the PawKeeper backend.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"pawkeeper-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server      ServerConfig
	Database    DatabaseConfig
	Stripe      StripeConfig
	Entitlement EntitlementConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL             string        `envconfig:"DATABASE_URL" validate:"required,url"`
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// StripeConfig holds the billing provider credentials and call bounds.
type StripeConfig struct {
	SecretKey     string        `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	WebhookSecret string        `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	BaseURL       string        `envconfig:"STRIPE_BASE_URL"` // override for testing
	CallTimeout   time.Duration `envconfig:"STRIPE_CALL_TIMEOUT" default:"10s"`
}

// EntitlementConfig tunes the entitlement engine's cache and retry policy.
type EntitlementConfig struct {
	CacheMaxAge  time.Duration `envconfig:"ENTITLEMENT_CACHE_MAX_AGE" default:"5m"`
	RetryBase    time.Duration `envconfig:"ENTITLEMENT_RETRY_BASE" default:"1s"`
	RetryMax     time.Duration `envconfig:"ENTITLEMENT_RETRY_MAX" default:"30s"`
	MaxRetries   int           `envconfig:"ENTITLEMENT_MAX_RETRIES" default:"3"`
}
