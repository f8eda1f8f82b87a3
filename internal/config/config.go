// Package config loads engine configuration from a YAML file with
// environment variable overrides for secrets and deploy-time settings.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the broadcast engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	SES        SESConfig        `yaml:"ses"`
	SMS        SMSConfig        `yaml:"sms"`
	Instant    InstantConfig    `yaml:"instant_message"`
	Social     SocialConfig     `yaml:"social"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Automation AutomationConfig `yaml:"automation"`
	Approval   ApprovalConfig   `yaml:"approval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection settings. Redis backs the
// dispatch rate limiter, the automation dedup guard, and the
// notification bus.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SESConfig holds AWS SES credentials for the email channel.
type SESConfig struct {
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	Region         string `yaml:"region"`
	FromName       string `yaml:"from_name"`
	FromEmail      string `yaml:"from_email"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SMSConfig holds the SMS gateway provider settings.
type SMSConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	SenderID       string  `yaml:"sender_id"`
	CostPerMessage float64 `yaml:"cost_per_message"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// InstantConfig holds the instant-message (WhatsApp-style) provider settings.
type InstantConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	PhoneID        string  `yaml:"phone_id"`
	CostPerMessage float64 `yaml:"cost_per_message"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// SocialConfig holds the social posting provider settings.
type SocialConfig struct {
	BaseURL        string `yaml:"base_url"`
	AccessToken    string `yaml:"access_token"`
	PageID         string `yaml:"page_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// DispatchConfig controls the orchestrator's fan-out behavior.
type DispatchConfig struct {
	// WorkerCount bounds concurrent in-flight channel sends.
	WorkerCount int `yaml:"worker_count"`
	// SendTimeoutSeconds bounds a single transport call.
	SendTimeoutSeconds int `yaml:"send_timeout_seconds"`
	// RatePerMinute is the per-channel token bucket rate.
	RatePerMinute int `yaml:"rate_per_minute"`
	// PollIntervalSeconds is how often the worker scans for due campaigns.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// AutomationConfig controls the trigger scheduler.
type AutomationConfig struct {
	Enabled             bool `yaml:"enabled"`
	TickIntervalMinutes int  `yaml:"tick_interval_minutes"`
}

// ApprovalConfig holds the budget threshold above which campaigns
// require explicit sign-off.
type ApprovalConfig struct {
	BudgetThreshold float64 `yaml:"budget_threshold"`
}

// SendTimeout returns the per-call dispatch timeout as a duration.
func (c DispatchConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// PollInterval returns the due-campaign poll interval as a duration.
func (c DispatchConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// TickInterval returns the automation tick interval as a duration.
func (c AutomationConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMinutes) * time.Minute
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SMS.TimeoutSeconds == 0 {
		cfg.SMS.TimeoutSeconds = 15
	}
	if cfg.Instant.TimeoutSeconds == 0 {
		cfg.Instant.TimeoutSeconds = 15
	}
	if cfg.Social.TimeoutSeconds == 0 {
		cfg.Social.TimeoutSeconds = 15
	}
	if cfg.Dispatch.WorkerCount == 0 {
		cfg.Dispatch.WorkerCount = 8
	}
	if cfg.Dispatch.SendTimeoutSeconds == 0 {
		cfg.Dispatch.SendTimeoutSeconds = 30
	}
	if cfg.Dispatch.RatePerMinute == 0 {
		cfg.Dispatch.RatePerMinute = 600
	}
	if cfg.Dispatch.PollIntervalSeconds == 0 {
		cfg.Dispatch.PollIntervalSeconds = 30
	}
	if cfg.Automation.TickIntervalMinutes == 0 {
		cfg.Automation.TickIntervalMinutes = 60
	}
	if cfg.Approval.BudgetThreshold == 0 {
		cfg.Approval.BudgetThreshold = 50000
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("SMS_API_KEY"); v != "" {
		cfg.SMS.APIKey = v
	}
	if v := os.Getenv("INSTANT_API_KEY"); v != "" {
		cfg.Instant.APIKey = v
	}
	if v := os.Getenv("SOCIAL_ACCESS_TOKEN"); v != "" {
		cfg.Social.AccessToken = v
	}

	return cfg, nil
}
