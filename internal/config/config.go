package config

import (
	"errors"
	"fmt"
	"os"

	"courtflow/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	API        APIConfig        `yaml:"api"`
	Backend    BackendConfig    `yaml:"backend"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	Booking    BookingConfig    `yaml:"booking"`
	Payment    PaymentConfig    `yaml:"payment"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
}

// APIConfig configures the local HTTP surface in front of the flow.
type APIConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Port      int           `yaml:"port"`
	Auth      APIAuthConfig `yaml:"auth"`
	RateLimit APIRateLimit  `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Name        string   `yaml:"name"`
	Key         string   `yaml:"key"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// BackendConfig points at the remote booking service. Token is the
// bearer credential attached to every request.
type BackendConfig struct {
	BaseURL         string           `yaml:"base_url"`
	Token           string           `yaml:"token"`
	TimeoutSeconds  int              `yaml:"timeout_seconds"`
	CacheTTLSeconds int              `yaml:"cache_ttl_seconds"`
	RateLimit       BackendRateLimit `yaml:"rate_limit"`
}

type BackendRateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BookingConfig struct {
	Currency       string `yaml:"currency"`
	MaxAdvanceDays int    `yaml:"max_advance_days"`
}

type PaymentConfig struct {
	ProcessorURL   string             `yaml:"processor_url"`
	PublishableKey string             `yaml:"publishable_key"`
	TimeoutSeconds int                `yaml:"timeout_seconds"`
	ConfirmRetry   ConfirmRetryConfig `yaml:"confirm_retry"`
}

// ConfirmRetryConfig controls how a backend payment confirmation is
// re-driven after the processor already captured the charge.
type ConfirmRetryConfig struct {
	MaxRetries          int `yaml:"max_retries"`
	InitialDelaySeconds int `yaml:"initial_delay_seconds"`
	MaxDelaySeconds     int `yaml:"max_delay_seconds"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; ignore a missing file but surface parse errors
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Environment variables referenced in the YAML are expanded before
	// parsing, the same way secrets reach the config in deployment.
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}
	if c.Backend.Token == "" || c.Backend.Token == "YOUR_API_TOKEN_HERE" {
		return errors.New("backend token is required")
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Booking.Currency != "" && len(c.Booking.Currency) != 3 {
		return fmt.Errorf("invalid currency code %q", c.Booking.Currency)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 10
	}
	if c.Backend.CacheTTLSeconds == 0 {
		c.Backend.CacheTTLSeconds = models.DefaultCacheTTLSeconds
	}
	if c.Backend.RateLimit.RPS == 0 {
		c.Backend.RateLimit.RPS = 10
	}
	if c.Backend.RateLimit.Burst == 0 {
		c.Backend.RateLimit.Burst = 5
	}

	if c.Booking.Currency == "" {
		c.Booking.Currency = models.DefaultCurrency
	}
	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = 60
	}

	if c.API.Enabled && c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 20
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 10
	}

	if c.Payment.ProcessorURL == "" {
		c.Payment.ProcessorURL = "https://api.stripe.com"
	}
	if c.Payment.TimeoutSeconds == 0 {
		c.Payment.TimeoutSeconds = 30
	}
	if c.Payment.ConfirmRetry.MaxRetries == 0 {
		c.Payment.ConfirmRetry.MaxRetries = 5
	}
	if c.Payment.ConfirmRetry.InitialDelaySeconds == 0 {
		c.Payment.ConfirmRetry.InitialDelaySeconds = 2
	}
	if c.Payment.ConfirmRetry.MaxDelaySeconds == 0 {
		c.Payment.ConfirmRetry.MaxDelaySeconds = 60
	}
	if c.Payment.ConfirmRetry.PollIntervalSeconds == 0 {
		c.Payment.ConfirmRetry.PollIntervalSeconds = 2
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}
