package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
backend:
  base_url: "https://api.example.test/api/v1"
  token: "test_token"
database:
  path: "test.db"
booking:
  currency: "COP"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Backend.BaseURL != "https://api.example.test/api/v1" {
		t.Errorf("unexpected base_url: %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Token != "test_token" {
		t.Errorf("expected token test_token, got %s", cfg.Backend.Token)
	}
	if cfg.Booking.Currency != "COP" {
		t.Errorf("expected currency COP, got %s", cfg.Booking.Currency)
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("COURTFLOW_TOKEN", "secret-from-env")

	yamlContent := `
backend:
  base_url: "https://api.example.test"
  token: "${COURTFLOW_TOKEN}"
database:
  path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Backend.Token != "secret-from-env" {
		t.Errorf("expected env-expanded token, got %s", cfg.Backend.Token)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Backend:  BackendConfig{BaseURL: "https://api.example.test", Token: "token"},
				Database: DatabaseConfig{Path: "path"},
			},
			wantErr: false,
		},
		{
			name: "missing base url",
			cfg: Config{
				Backend:  BackendConfig{Token: "token"},
				Database: DatabaseConfig{Path: "path"},
			},
			wantErr: true,
		},
		{
			name: "missing token",
			cfg: Config{
				Backend:  BackendConfig{BaseURL: "https://api.example.test"},
				Database: DatabaseConfig{Path: "path"},
			},
			wantErr: true,
		},
		{
			name: "placeholder token",
			cfg: Config{
				Backend:  BackendConfig{BaseURL: "https://api.example.test", Token: "YOUR_API_TOKEN_HERE"},
				Database: DatabaseConfig{Path: "path"},
			},
			wantErr: true,
		},
		{
			name: "bad currency code",
			cfg: Config{
				Backend:  BackendConfig{BaseURL: "https://api.example.test", Token: "token"},
				Database: DatabaseConfig{Path: "path"},
				Booking:  BookingConfig{Currency: "PESOS"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Backend.TimeoutSeconds != 10 {
		t.Errorf("expected default timeout 10, got %d", cfg.Backend.TimeoutSeconds)
	}
	if cfg.Backend.CacheTTLSeconds != 30 {
		t.Errorf("expected default availability cache ttl 30, got %d", cfg.Backend.CacheTTLSeconds)
	}
	if cfg.Booking.Currency != "COP" {
		t.Errorf("expected default currency COP, got %s", cfg.Booking.Currency)
	}
	if cfg.Payment.ConfirmRetry.MaxRetries != 5 {
		t.Errorf("expected default confirm retries 5, got %d", cfg.Payment.ConfirmRetry.MaxRetries)
	}
	if cfg.Payment.ConfirmRetry.MaxDelaySeconds != 60 {
		t.Errorf("expected default confirm max delay 60, got %d", cfg.Payment.ConfirmRetry.MaxDelaySeconds)
	}

	cfg = &Config{Monitoring: MonitoringConfig{PrometheusEnabled: true}}
	cfg.applyDefaults()
	if cfg.Monitoring.PrometheusPort != 9090 {
		t.Errorf("expected default prometheus port 9090, got %d", cfg.Monitoring.PrometheusPort)
	}

	cfg = &Config{API: APIConfig{Enabled: true}}
	cfg.applyDefaults()
	if cfg.API.Port != 8080 {
		t.Errorf("expected default api port 8080, got %d", cfg.API.Port)
	}
	if cfg.API.RateLimit.RPS != 20 || cfg.API.RateLimit.Burst != 10 {
		t.Errorf("unexpected api rate limit defaults: %v", cfg.API.RateLimit)
	}
}
