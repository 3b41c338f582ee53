package config

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all runtime configuration, loaded from the environment.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	HTTP     HTTPServer `envPrefix:"HTTP_"`
	Database Database   `envPrefix:"DATABASE_"`
	Signing  Signing    `envPrefix:"SIGNING_"`
	Payment  Payment    `envPrefix:"PAYMENT_"`
	Storage  Storage    `envPrefix:"STORAGE_"`
	Tracing  Tracing    `envPrefix:"TRACING_"`
	Sweeper  Sweeper    `envPrefix:"SWEEPER_"`

	Bootstrap Bootstrap `envPrefix:"BOOTSTRAP_"`
}

type HTTPServer struct {
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port string `env:"PORT" envDefault:"8080"`
}

type Database struct {
	URL string `env:"URL"`
}

// Signing configures the external e-signature provider.
type Signing struct {
	BaseURL       string        `env:"BASE_URL"`
	APIKey        string        `env:"API_KEY"`
	WebhookSecret string        `env:"WEBHOOK_SECRET"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Payment configures the external payment provider.
type Payment struct {
	BaseURL       string        `env:"BASE_URL"`
	SecretKey     string        `env:"SECRET_KEY"`
	WebhookSecret string        `env:"WEBHOOK_SECRET"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

type Storage struct {
	Region          string `env:"REGION" envDefault:"us-east-1"`
	Bucket          string `env:"BUCKET"`
	EndpointURL     string `env:"ENDPOINT_URL"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
}

type Tracing struct {
	Enabled          bool    `env:"ENABLED" envDefault:"false"`
	ExporterEndpoint string  `env:"EXPORTER_ENDPOINT"`
	ExporterProtocol string  `env:"EXPORTER_PROTOCOL" envDefault:"grpc"`
	SamplingRatio    float64 `env:"SAMPLING_RATIO" envDefault:"1.0"`
}

// Sweeper configures the reconciliation-debt sweeper.
type Sweeper struct {
	Enabled      bool          `env:"ENABLED" envDefault:"true"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"5m"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"50"`
	StaleAfter   time.Duration `env:"STALE_AFTER" envDefault:"10m"`
}

type Bootstrap struct {
	EnsureDevAccount bool `env:"ENSURE_DEV_ACCOUNT" envDefault:"false"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.IsProduction() {
		if strings.TrimSpace(c.Signing.WebhookSecret) == "" {
			return errors.New("signing webhook secret is required")
		}
		if strings.TrimSpace(c.Payment.WebhookSecret) == "" {
			return errors.New("payment webhook secret is required")
		}
	}
	return nil
}

// IsProduction reports whether the process runs in production mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}
