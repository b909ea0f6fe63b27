package config

import (
	"strings"
	"testing"
)

const minimalYAML = `
auth:
  jwt_secret: test-secret
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Uploads.Dir != "uploads" {
		t.Errorf("Uploads.Dir = %q, want uploads", cfg.Uploads.Dir)
	}
	if cfg.Uploads.MaxUploadMB != 100 {
		t.Errorf("Uploads.MaxUploadMB = %d, want 100", cfg.Uploads.MaxUploadMB)
	}
	if cfg.Retention.OrphanHours != 24 {
		t.Errorf("Retention.OrphanHours = %d, want 24", cfg.Retention.OrphanHours)
	}
	if cfg.Retention.FailedSessionDays != 7 {
		t.Errorf("Retention.FailedSessionDays = %d, want 7", cfg.Retention.FailedSessionDays)
	}
	if cfg.Pipeline.TranscribeModel != "whisper-1" {
		t.Errorf("Pipeline.TranscribeModel = %q, want whisper-1", cfg.Pipeline.TranscribeModel)
	}
	if cfg.Pipeline.ExtractModel != "gpt-4o" {
		t.Errorf("Pipeline.ExtractModel = %q, want gpt-4o", cfg.Pipeline.ExtractModel)
	}
}

func TestParse_RateLimitPolicy(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// These three numbers encode the cost-containment policy.
	if cfg.RateLimit.UploadPerHour != 10 {
		t.Errorf("RateLimit.UploadPerHour = %d, want 10", cfg.RateLimit.UploadPerHour)
	}
	if cfg.RateLimit.ExtractPerHour != 20 {
		t.Errorf("RateLimit.ExtractPerHour = %d, want 20", cfg.RateLimit.ExtractPerHour)
	}
	if cfg.RateLimit.DefaultPerMinute != 100 {
		t.Errorf("RateLimit.DefaultPerMinute = %d, want 100", cfg.RateLimit.DefaultPerMinute)
	}
}

func TestParse_Overrides(t *testing.T) {
	yaml := `
server:
  port: 9000
database:
  driver: mysql
  host: db.internal
  name: tb_prod
uploads:
  dir: /srv/audio
  max_upload_mb: 250
retention:
  orphan_hours: 48
  failed_session_days: 14
auth:
  jwt_secret: s3cret
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Database.Driver != "mysql" || cfg.Database.Host != "db.internal" {
		t.Errorf("Database = %+v, want mysql on db.internal", cfg.Database)
	}
	if cfg.Uploads.Dir != "/srv/audio" || cfg.Uploads.MaxUploadMB != 250 {
		t.Errorf("Uploads = %+v", cfg.Uploads)
	}
	if cfg.Retention.OrphanHours != 48 || cfg.Retention.FailedSessionDays != 14 {
		t.Errorf("Retention = %+v", cfg.Retention)
	}
}

func TestParse_MissingJWTSecret(t *testing.T) {
	t.Setenv("TB_JWT_SECRET", "")
	_, err := Parse([]byte("server:\n  port: 8080\n"))
	if err == nil {
		t.Fatal("Parse() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("error = %v, want mention of jwt_secret", err)
	}
}

func TestParse_EnvOverride(t *testing.T) {
	t.Setenv("TB_JWT_SECRET", "from-env")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Parse([]byte("server:\n  port: 8080\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("Auth.JWTSecret = %q, want from-env", cfg.Auth.JWTSecret)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("OpenAI.APIKey = %q, want sk-test", cfg.OpenAI.APIKey)
	}
}

func TestParse_BadDriver(t *testing.T) {
	yaml := `
database:
  driver: postgres
auth:
  jwt_secret: x
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for unsupported driver")
	}
}

func TestParse_SlackRequiresChannel(t *testing.T) {
	yaml := `
auth:
  jwt_secret: x
slack:
  token: xoxb-123
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for slack token without channel")
	}
	if !strings.Contains(err.Error(), "slack.channel") {
		t.Errorf("error = %v, want mention of slack.channel", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := cfg.FailedRetention().Hours(); got != 7*24 {
		t.Errorf("FailedRetention() = %v hours, want %v", got, 7*24)
	}
	if got := cfg.OrphanRetention().Hours(); got != 24 {
		t.Errorf("OrphanRetention() = %v hours, want 24", got)
	}
	if got := cfg.MaxUploadBytes(); got != 100*1024*1024 {
		t.Errorf("MaxUploadBytes() = %d", got)
	}
}
