package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for cashflowd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"env"`
	LedgerConfig  string          `yaml:"ledger_config"`
	Log           LogConfig       `yaml:"log"`
	Index         IndexConfig     `yaml:"index"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Scheduler     SchedulerConfig `yaml:"scheduler"`
	Export        ExportConfig    `yaml:"export"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// LogConfig controls the structured log sink.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// IndexConfig selects the relational store backing the event index.
type IndexConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig configures bearer token verification. The token subject is the
// caller's ledger address.
type AuthConfig struct {
	HMACSecret    string   `yaml:"hmac_secret"`
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
	AdminSubjects []string `yaml:"admin_subjects"`
	ClockSkew     Duration `yaml:"clock_skew"`
}

// RateLimitConfig bounds per-caller request rates.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"rps"`
	Burst             int     `yaml:"burst"`
}

// SchedulerConfig holds the cron expressions for background jobs. An empty
// expression disables the job.
type SchedulerConfig struct {
	SnapshotCron string `yaml:"snapshot_cron"`
	ExportCron   string `yaml:"export_cron"`
}

// ExportConfig controls parquet exports and the optional S3 upload.
type ExportConfig struct {
	Directory       string `yaml:"directory"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Headers  string `yaml:"headers"`
	Insecure bool   `yaml:"insecure"`
	Traces   bool   `yaml:"traces"`
	Metrics  bool   `yaml:"metrics"`
}

// Load reads configuration from the supplied path and applies CASHFLOW_*
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	str("CASHFLOW_LISTEN", &cfg.ListenAddress)
	str("CASHFLOW_ENV", &cfg.Environment)
	str("CASHFLOW_LEDGER_CONFIG", &cfg.LedgerConfig)
	str("CASHFLOW_INDEX_DRIVER", &cfg.Index.Driver)
	str("CASHFLOW_INDEX_DSN", &cfg.Index.DSN)
	str("CASHFLOW_JWT_SECRET", &cfg.Auth.HMACSecret)
	str("CASHFLOW_EXPORT_BUCKET", &cfg.Export.Bucket)
	str("CASHFLOW_S3_ACCESS_KEY_ID", &cfg.Export.AccessKeyID)
	str("CASHFLOW_S3_SECRET_ACCESS_KEY", &cfg.Export.SecretAccessKey)
	if v, ok := lookup("CASHFLOW_ADMIN_SUBJECTS"); ok && strings.TrimSpace(v) != "" {
		cfg.Auth.AdminSubjects = splitList(v)
	}
	if v, ok := lookup("CASHFLOW_RATE_LIMIT_RPS"); ok && strings.TrimSpace(v) != "" {
		rps, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("CASHFLOW_RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimit.RequestsPerSecond = rps
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.LedgerConfig == "" {
		cfg.LedgerConfig = "services/cashflowd/ledger.toml"
	}
	cfg.Index.Driver = strings.ToLower(strings.TrimSpace(cfg.Index.Driver))
	if cfg.Index.Driver == "" {
		cfg.Index.Driver = "sqlite"
	}
	if cfg.Index.DSN == "" && cfg.Index.Driver == "sqlite" {
		cfg.Index.DSN = "file:/var/data/cashflow-index.sqlite"
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 30 * time.Second
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 20
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 40
	}
	if cfg.Export.Directory == "" {
		cfg.Export.Directory = "exports"
	}
}

func validate(cfg Config) error {
	switch cfg.Index.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("index.driver: unsupported value %q", cfg.Index.Driver)
	}
	if strings.TrimSpace(cfg.Index.DSN) == "" {
		return errors.New("index.dsn: required")
	}
	if len(strings.TrimSpace(cfg.Auth.HMACSecret)) < 32 {
		return errors.New("auth.hmac_secret: must be at least 32 characters")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return errors.New("rate_limit: values must be non-negative")
	}
	if cfg.Export.Bucket != "" && strings.TrimSpace(cfg.Export.Region) == "" {
		return errors.New("export.region: required when bucket is set")
	}
	return nil
}
