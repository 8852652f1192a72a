package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/tillbook/internal/docstore"
	"github.com/tinoosan/tillbook/internal/settings"
)

// Config holds runtime configuration for the service and CLI.
type Config struct {
	AppAddr         string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout  time.Duration `envconfig:"APP_READ_TIMEOUT" default:"5s"`
	AppWriteTimeout time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"10s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// StoreBackend is memory, postgres or redis.
	StoreBackend string `envconfig:"STORE_BACKEND" default:"memory"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`
	RedisAddr    string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPrefix  string `envconfig:"REDIS_PREFIX" default:"tillbook"`

	BaseCurrency  string            `envconfig:"BASE_CURRENCY"`
	ExchangeRates map[string]string `envconfig:"EXCHANGE_RATES"`
	SettingsTTL   time.Duration     `envconfig:"SETTINGS_TTL" default:"1m"`
	OpeningFloat  string            `envconfig:"OPENING_FLOAT" default:"0"`
	Timezone      string            `envconfig:"TIMEZONE" default:"UTC"`

	TradingStrict          bool   `envconfig:"TRADING_STRICT" default:"true"`
	TradingOnLookupFailure string `envconfig:"TRADING_ON_LOOKUP_FAILURE" default:"deny"`

	ConflictRetries int           `envconfig:"CONFLICT_RETRIES" default:"3"`
	ConflictBackoff time.Duration `envconfig:"CONFLICT_BACKOFF" default:"10ms"`

	AuthSecret string `envconfig:"AUTH_SECRET"`

	// Replication publishes local writes to REPLICATION_QUEUE on REDIS_ADDR.
	ReplicationEnabled bool   `envconfig:"REPLICATION_ENABLED" default:"false"`
	ReplicationQueue   string `envconfig:"REPLICATION_QUEUE" default:"replication"`
	DeviceID           string `envconfig:"DEVICE_ID"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	switch cfg.StoreBackend {
	case "":
		cfg.StoreBackend = "memory"
	case "memory", "redis":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	if _, err := decimal.NewFromString(cfg.OpeningFloat); err != nil {
		return nil, fmt.Errorf("OPENING_FLOAT: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return &cfg, nil
}

// Settings builds the environment-level currency settings. A blank
// BASE_CURRENCY is left blank so the provider reports MissingSettings.
func (c *Config) Settings() (settings.Settings, error) {
	rates, err := settings.ParseRates(c.ExchangeRates)
	if err != nil {
		return settings.Settings{}, err
	}
	return settings.Settings{BaseCurrency: strings.TrimSpace(c.BaseCurrency), ExchangeRates: rates}, nil
}

func (c *Config) Retry() docstore.RetryPolicy {
	return docstore.RetryPolicy{Attempts: c.ConflictRetries, Backoff: c.ConflictBackoff}
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Float() decimal.Decimal {
	d, err := decimal.NewFromString(c.OpeningFloat)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Origin names this device in replicated tasks and must be stable across
// restarts. Falls back to the hostname.
func (c *Config) Origin() string {
	if id := strings.TrimSpace(c.DeviceID); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "tillbook"
	}
	return host
}
