package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/tournevent/huolala/pkg/huolala"
	"go.opentelemetry.io/otel/attribute"
)

// Token store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config holds all configuration for the CLI and callback server.
type Config struct {
	// Server
	Port      int    `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Huolala
	AppKey      string        `envconfig:"HUOLALA_APP_KEY"`
	AppSecret   string        `envconfig:"HUOLALA_APP_SECRET"`
	APIVersion  string        `envconfig:"HUOLALA_API_VERSION" default:"1.0"`
	Sandbox     bool          `envconfig:"HUOLALA_SANDBOX" default:"false"`
	Timeout     time.Duration `envconfig:"HUOLALA_TIMEOUT" default:"5s"`
	UseMock     bool          `envconfig:"HUOLALA_USE_MOCK" default:"false"`
	RedirectURI string        `envconfig:"HUOLALA_REDIRECT_URI"`

	// Token store. sqlite needs a cgo build; use memory or redis with CGO_ENABLED=0.
	TokenStore     string        `envconfig:"TOKEN_STORE" default:"sqlite"`
	ExpiryLeeway   time.Duration `envconfig:"TOKEN_EXPIRY_LEEWAY" default:"0s"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	RedisKeyPrefix string        `envconfig:"REDIS_KEY_PREFIX" default:"huolala:token:"`
	SQLitePath     string        `envconfig:"SQLITE_PATH" default:"huolala-tokens.db"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"huolala-client"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	switch cfg.TokenStore {
	case StoreMemory, StoreRedis, StoreSQLite:
	default:
		return nil, fmt.Errorf("loading config: unknown TOKEN_STORE %q", cfg.TokenStore)
	}
	return &cfg, nil
}

// ClientConfig returns the credentials and environment for the Huolala client.
func (c *Config) ClientConfig() huolala.Config {
	return huolala.NewConfig(c.AppKey, c.AppSecret,
		huolala.WithAPIVersion(c.APIVersion),
		huolala.WithSandbox(c.Sandbox),
	)
}

// Attributes returns OpenTelemetry attributes for this configuration.
// Credentials are left out.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.version", c.Version),
		attribute.String("huolala.app_key", c.AppKey),
		attribute.Bool("huolala.sandbox", c.Sandbox),
		attribute.String("huolala.token_store", c.TokenStore),
	}
}
