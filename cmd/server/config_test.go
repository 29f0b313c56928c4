package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate default config: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("Server.Address = %q, want :8080", cfg.Server.Address)
	}
	if cfg.Database.Path != "data/sentinel.db" {
		t.Errorf("Database.Path = %q, want data/sentinel.db", cfg.Database.Path)
	}
	if cfg.Ingest.MaxUploadMB != 100 {
		t.Errorf("Ingest.MaxUploadMB = %d, want 100", cfg.Ingest.MaxUploadMB)
	}
}

func TestConfigValidate_RejectsTLSWithoutCert(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.TLS.Enabled = true

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for TLS without cert_file")
	}
}

func TestConfigValidate_RejectsInvalidDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.AccessTokenTTL = "not-a-duration"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for invalid access_token_ttl")
	}
}

func TestConfigValidate_RejectsOutOfRangeConfidence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Notify.MinConfidence = 1.5

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for min_confidence above 1")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  address: ":9080"
  rate_limit_per_user: 200
database:
  path: /var/lib/sentinel/sentinel.db
rules:
  dir: /etc/sentinel/rules
  watch: true
metrics:
  enabled: true
notify:
  webhook_url: https://hooks.example.com/sentinel
  min_confidence: 0.8
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Address != ":9080" {
		t.Errorf("Server.Address = %q, want :9080", cfg.Server.Address)
	}
	if cfg.Server.RateLimitPerUser != 200 {
		t.Errorf("Server.RateLimitPerUser = %d, want 200", cfg.Server.RateLimitPerUser)
	}
	if !cfg.Rules.Watch {
		t.Error("Rules.Watch = false, want true")
	}
	if cfg.Notify.WebhookURL != "https://hooks.example.com/sentinel" {
		t.Errorf("Notify.WebhookURL = %q", cfg.Notify.WebhookURL)
	}
	// Defaults still apply to sections the file omits.
	if cfg.Metrics.Address != ":9091" {
		t.Errorf("Metrics.Address = %q, want :9091", cfg.Metrics.Address)
	}
	if cfg.Server.AccessTokenTTL != "15m" {
		t.Errorf("Server.AccessTokenTTL = %q, want 15m", cfg.Server.AccessTokenTTL)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
