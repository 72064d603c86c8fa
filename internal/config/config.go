// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	defaultBookingCodePrefix     = "BK"
	defaultSaleCodePrefix        = "SL"
	defaultPaymentWindowMinutes  = 15
	defaultExpiryIntervalMinutes = 1
)

type DatabaseConfig struct {
	Driver    string `yaml:"driver"`
	Filename  string `yaml:"filename"`
	URL       string `yaml:"url,omitempty"`
	AuthToken string `yaml:"-"` // Loaded from environment
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
		SecretKey   string `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database DatabaseConfig `yaml:"database"`

	Booking struct {
		CodePrefix           string `yaml:"code_prefix"`
		PaymentWindowMinutes int    `yaml:"payment_window_minutes"`
	} `yaml:"booking"`

	Sales struct {
		CodePrefix string `yaml:"code_prefix"`
	} `yaml:"sales"`

	Expiry struct {
		Enabled         bool   `yaml:"enabled"`
		IntervalMinutes int    `yaml:"interval_minutes"`
		Cron            string `yaml:"cron,omitempty"`
	} `yaml:"expiry"`

	RateLimit struct {
		Enabled           bool `yaml:"enabled"`
		WritesPerMinute   int  `yaml:"writes_per_minute"`
		TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
	} `yaml:"rate_limit"`

	Features struct {
		EnableMetrics bool `yaml:"enable_metrics"`
		EnableDebug   bool `yaml:"enable_debug"`
	} `yaml:"features"`
}

// secrets are never read from the YAML file.
type secrets struct {
	AppSecretKey      string `envconfig:"APP_SECRET_KEY"`
	DatabaseAuthToken string `envconfig:"DATABASE_AUTH_TOKEN"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	var env secrets
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}
	cfg.App.SecretKey = env.AppSecretKey
	cfg.Database.AuthToken = env.DatabaseAuthToken

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and fills defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Booking.CodePrefix) == "" {
		c.Booking.CodePrefix = defaultBookingCodePrefix
	}
	if c.Booking.PaymentWindowMinutes == 0 {
		c.Booking.PaymentWindowMinutes = defaultPaymentWindowMinutes
	}
	if strings.TrimSpace(c.Sales.CodePrefix) == "" {
		c.Sales.CodePrefix = defaultSaleCodePrefix
	}
	if c.Expiry.IntervalMinutes == 0 {
		c.Expiry.IntervalMinutes = defaultExpiryIntervalMinutes
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	case "turso":
		if c.Database.URL == "" {
			return fmt.Errorf("database URL is required for turso")
		}
		if c.Database.AuthToken == "" {
			return fmt.Errorf("database auth token is required for turso")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Booking.PaymentWindowMinutes < 0 {
		return fmt.Errorf("booking payment_window_minutes must be 0 or greater")
	}
	if c.RateLimit.WritesPerMinute < 0 {
		return fmt.Errorf("rate_limit writes_per_minute must be 0 or greater")
	}
	if c.Expiry.IntervalMinutes < 0 {
		return fmt.Errorf("expiry interval_minutes must be 0 or greater")
	}

	return nil
}
