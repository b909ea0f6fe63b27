// Package config provides YAML-based configuration loading for TherapyBridge.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level TherapyBridge configuration, loaded from
// therapybridge.yaml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	Retention RetentionConfig `yaml:"retention"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Auth      AuthConfig      `yaml:"auth"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Slack     SlackConfig     `yaml:"slack"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig selects the storage backend. Driver is "sqlite" or "mysql".
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"` // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// UploadsConfig governs the audio upload directory and acceptance rules.
type UploadsConfig struct {
	Dir               string   `yaml:"dir"`
	MaxUploadMB       int64    `yaml:"max_upload_mb"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// RetentionConfig holds the cleanup retention windows.
type RetentionConfig struct {
	OrphanHours       int `yaml:"orphan_hours"`
	FailedSessionDays int `yaml:"failed_session_days"`
}

// PipelineConfig tunes the processing worker and its external calls.
type PipelineConfig struct {
	PollIntervalSeconds  int    `yaml:"poll_interval_seconds"`
	MaxTransientAttempts int    `yaml:"max_transient_attempts"`
	RequestTimeoutSecs   int    `yaml:"request_timeout_seconds"`
	StaleClaimMinutes    int    `yaml:"stale_claim_minutes"`
	TranscribeModel      string `yaml:"transcribe_model"`
	ExtractModel         string `yaml:"extract_model"`
}

// AuthConfig holds token issuance settings. JWTSecret may be supplied via
// the TB_JWT_SECRET environment variable instead of the file.
type AuthConfig struct {
	JWTSecret          string `yaml:"jwt_secret"`
	AccessTokenMinutes int    `yaml:"access_token_minutes"`
	RefreshTokenDays   int    `yaml:"refresh_token_days"`
}

// OpenAIConfig holds the hosted-API credential. APIKey may be supplied via
// the OPENAI_API_KEY environment variable instead of the file.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
}

// SlackConfig enables failure alerts when both fields are set. Token may be
// supplied via the TB_SLACK_TOKEN environment variable.
type SlackConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// RateLimitConfig encodes the cost-containment policy: expensive endpoints
// get per-hour budgets, everything else a per-minute default.
type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"default_per_minute"`
	UploadPerHour    int `yaml:"upload_per_hour"`
	ExtractPerHour   int `yaml:"extract_per_hour"`
}

// CleanupConfig holds the cron schedule for the periodic sweep.
type CleanupConfig struct {
	Schedule string `yaml:"schedule"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays secrets from the environment over file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("TB_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("TB_SLACK_TOKEN"); v != "" {
		c.Slack.Token = v
	}
	if v := os.Getenv("TB_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "therapybridge.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "therapybridge"
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Uploads.Dir == "" {
		c.Uploads.Dir = "uploads"
	}
	if c.Uploads.MaxUploadMB == 0 {
		c.Uploads.MaxUploadMB = 100
	}
	if len(c.Uploads.AllowedExtensions) == 0 {
		c.Uploads.AllowedExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".flac", ".webm"}
	}
	if c.Retention.OrphanHours == 0 {
		c.Retention.OrphanHours = 24
	}
	if c.Retention.FailedSessionDays == 0 {
		c.Retention.FailedSessionDays = 7
	}
	if c.Pipeline.PollIntervalSeconds == 0 {
		c.Pipeline.PollIntervalSeconds = 5
	}
	if c.Pipeline.MaxTransientAttempts == 0 {
		c.Pipeline.MaxTransientAttempts = 3
	}
	if c.Pipeline.RequestTimeoutSecs == 0 {
		c.Pipeline.RequestTimeoutSecs = 120
	}
	if c.Pipeline.StaleClaimMinutes == 0 {
		c.Pipeline.StaleClaimMinutes = 15
	}
	if c.Pipeline.TranscribeModel == "" {
		c.Pipeline.TranscribeModel = "whisper-1"
	}
	if c.Pipeline.ExtractModel == "" {
		c.Pipeline.ExtractModel = "gpt-4o"
	}
	if c.Auth.AccessTokenMinutes == 0 {
		c.Auth.AccessTokenMinutes = 15
	}
	if c.Auth.RefreshTokenDays == 0 {
		c.Auth.RefreshTokenDays = 30
	}
	if c.RateLimit.DefaultPerMinute == 0 {
		c.RateLimit.DefaultPerMinute = 100
	}
	if c.RateLimit.UploadPerHour == 0 {
		c.RateLimit.UploadPerHour = 10
	}
	if c.RateLimit.ExtractPerHour == 0 {
		c.RateLimit.ExtractPerHour = 20
	}
	if c.Cleanup.Schedule == "" {
		c.Cleanup.Schedule = "0 * * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be sqlite or mysql, got %q", c.Database.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required (or set TB_JWT_SECRET)")
	}
	if c.Uploads.MaxUploadMB < 0 {
		errs = append(errs, "uploads.max_upload_mb must be >= 0")
	}
	if c.Retention.OrphanHours < 0 {
		errs = append(errs, "retention.orphan_hours must be >= 0")
	}
	if c.Retention.FailedSessionDays < 0 {
		errs = append(errs, "retention.failed_session_days must be >= 0")
	}
	if c.Slack.Token != "" && c.Slack.Channel == "" {
		errs = append(errs, "slack.channel is required when slack.token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// MaxUploadBytes returns the upload size cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Uploads.MaxUploadMB * 1024 * 1024
}

// PollInterval returns the worker poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Pipeline.PollIntervalSeconds) * time.Second
}

// RequestTimeout returns the external-API request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Pipeline.RequestTimeoutSecs) * time.Second
}

// StaleClaimWindow returns how long a claimed job may go without progress
// before it is considered abandoned and eligible for reclaim.
func (c *Config) StaleClaimWindow() time.Duration {
	return time.Duration(c.Pipeline.StaleClaimMinutes) * time.Minute
}

// OrphanRetention returns the minimum age before an unreferenced upload
// becomes a deletion candidate.
func (c *Config) OrphanRetention() time.Duration {
	return time.Duration(c.Retention.OrphanHours) * time.Hour
}

// FailedRetention returns the minimum age before a failed session's audio
// becomes a deletion candidate.
func (c *Config) FailedRetention() time.Duration {
	return time.Duration(c.Retention.FailedSessionDays) * 24 * time.Hour
}
