// Package main provides the Sentinel API server.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Rules    RulesConfig    `yaml:"rules"`
	GeoIP    GeoIPConfig    `yaml:"geoip"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Notify   NotifyConfig   `yaml:"notify"`

	Verbose bool `yaml:"-"` // set via CLI flag
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Address string    `yaml:"address"` // HTTP listen address (default: :8080)
	TLS     TLSConfig `yaml:"tls"`

	AccessTokenTTL  string `yaml:"access_token_ttl"`  // JWT lifetime (default: 15m)
	RefreshTokenTTL string `yaml:"refresh_token_ttl"` // refresh token lifetime (default: 168h)

	RateLimitPerIP   int `yaml:"rate_limit_per_ip"`   // login attempts/min per client IP
	RateLimitPerUser int `yaml:"rate_limit_per_user"` // requests/min per authenticated user

	LockoutThreshold int    `yaml:"lockout_threshold"` // failed logins before lockout
	LockoutDuration  string `yaml:"lockout_duration"`  // lockout length (default: 30m)
}

// TLSConfig contains TLS settings for the API listener.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database file (default: data/sentinel.db)
}

// ArchiveConfig contains the optional ClickHouse entry archive settings.
type ArchiveConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Addresses     []string `yaml:"addresses"` // host:port list (default: localhost:9000)
	Database      string   `yaml:"database"`  // default: sentinel
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	RetentionDays int      `yaml:"retention_days"` // entry TTL (default: 30)
	Compression   bool     `yaml:"compression"`
}

// IngestConfig contains upload pipeline settings.
type IngestConfig struct {
	MaxUploadMB    int `yaml:"max_upload_mb"`   // decoded size cap per upload (default: 100)
	BufferCapacity int `yaml:"buffer_capacity"` // recent-entry ring size (default: 100000)
	TopN           int `yaml:"top_n"`           // ranking depth for per-upload metrics (default: 10)
}

// RulesConfig contains custom detection rule settings.
type RulesConfig struct {
	Dir   string `yaml:"dir"`   // rules directory; empty disables custom rules
	Watch bool   `yaml:"watch"` // hot-reload the directory on change
}

// GeoIPConfig contains optional GeoIP enrichment settings.
type GeoIPConfig struct {
	Path string `yaml:"path"` // MaxMind mmdb file; empty disables enrichment
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // metrics listen address (default: :9091)
}

// NotifyConfig contains webhook notification settings.
type NotifyConfig struct {
	WebhookURL    string  `yaml:"webhook_url"` // empty disables notifications
	WebhookSecret string  `yaml:"webhook_secret"`
	MinConfidence float64 `yaml:"min_confidence"`
	CooldownMin   int     `yaml:"cooldown_minutes"` // per-(client, type) suppression (default: 10)
	MaxPerMinute  int     `yaml:"max_per_minute"`   // delivery rate cap (default: 30)
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.AccessTokenTTL == "" {
		c.Server.AccessTokenTTL = "15m"
	}
	if c.Server.RefreshTokenTTL == "" {
		c.Server.RefreshTokenTTL = "168h"
	}
	if c.Server.LockoutDuration == "" {
		c.Server.LockoutDuration = "30m"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/sentinel.db"
	}
	if len(c.Archive.Addresses) == 0 {
		c.Archive.Addresses = []string{"localhost:9000"}
	}
	if c.Archive.Database == "" {
		c.Archive.Database = "sentinel"
	}
	if c.Archive.RetentionDays == 0 {
		c.Archive.RetentionDays = 30
	}
	if c.Ingest.MaxUploadMB == 0 {
		c.Ingest.MaxUploadMB = 100
	}
	if c.Ingest.BufferCapacity == 0 {
		c.Ingest.BufferCapacity = 100000
	}
	if c.Ingest.TopN == 0 {
		c.Ingest.TopN = 10
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9091"
	}
	if c.Notify.CooldownMin == 0 {
		c.Notify.CooldownMin = 10
	}
	if c.Notify.MaxPerMinute == 0 {
		c.Notify.MaxPerMinute = 30
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			return fmt.Errorf("server.tls.cert_file is required when TLS is enabled")
		}
		if c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.key_file is required when TLS is enabled")
		}
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Archive.Enabled && len(c.Archive.Addresses) == 0 {
		return fmt.Errorf("archive.addresses is required when the archive is enabled")
	}
	if c.Notify.MinConfidence < 0 || c.Notify.MinConfidence > 1 {
		return fmt.Errorf("notify.min_confidence must be between 0 and 1")
	}
	for name, value := range map[string]string{
		"server.access_token_ttl":  c.Server.AccessTokenTTL,
		"server.refresh_token_ttl": c.Server.RefreshTokenTTL,
		"server.lockout_duration":  c.Server.LockoutDuration,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// duration returns a parsed duration field. Validate has already checked
// the value; a zero duration is returned for unparsable input.
func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
