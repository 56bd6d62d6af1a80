package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	RateLimit         int           `envconfig:"RATE_LIMIT" default:"120"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// PGDSN selects PostgreSQL persistence; empty keeps releases in memory.
	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr   string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	LockBackend string        `envconfig:"LOCK_BACKEND" default:"memory"`
	LockTTL     time.Duration `envconfig:"LOCK_TTL" default:"30s"`
	LockWait    time.Duration `envconfig:"LOCK_WAIT" default:"10s"`

	SlackWebhookURL string        `envconfig:"SLACK_WEBHOOK_URL"`
	SlackChannel    string        `envconfig:"SLACK_CHANNEL"`
	SlackTimeout    time.Duration `envconfig:"SLACK_TIMEOUT" default:"10s"`

	JiraBaseURL string `envconfig:"JIRA_BASE_URL"`
	JiraEmail   string `envconfig:"JIRA_EMAIL"`
	JiraToken   string `envconfig:"JIRA_TOKEN"`
	JiraProject string `envconfig:"JIRA_PROJECT" default:"REL"`

	// ReleaseNotesDir holds <date>.txt documents used when Jira is not configured.
	ReleaseNotesDir string `envconfig:"RELEASE_NOTES_DIR"`

	GoogleSheetID            string `envconfig:"GOOGLE_SHEET_ID"`
	GoogleServiceAccountFile string `envconfig:"GOOGLE_SERVICE_ACCOUNT_FILE"`

	ScheduleCron      string        `envconfig:"SCHEDULE_CRON" default:"0 12 * * 1-5"`
	SchedulerTimezone string        `envconfig:"SCHEDULER_TIMEZONE" default:"Asia/Kolkata"`
	IdempotencyTTL    time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"168h"`

	WebhookLogSize int `envconfig:"WEBHOOK_LOG_SIZE" default:"100"`

	location *time.Location
}

// LoadConfig reads configuration from a local .env file, when present, and
// environment variables. Variables already set in the environment win.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	loc, err := time.LoadLocation(c.SchedulerTimezone)
	if err != nil {
		return fmt.Errorf("scheduler timezone %q: %w", c.SchedulerTimezone, err)
	}
	c.location = loc
	switch c.LockBackend {
	case LockBackendMemory, LockBackendRedis:
	default:
		return fmt.Errorf("unknown lock backend %q", c.LockBackend)
	}
	if c.WebhookLogSize <= 0 {
		return errors.New("webhook log size must be positive")
	}
	if c.JiraBaseURL != "" && (c.JiraEmail == "" || c.JiraToken == "") {
		return errors.New("jira email and token must be provided with JIRA_BASE_URL")
	}
	if c.GoogleSheetID != "" && c.GoogleServiceAccountFile == "" {
		return errors.New("google service account file must be provided with GOOGLE_SHEET_ID")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Location returns the scheduler timezone. It falls back to UTC before validation.
func (c *Config) Location() *time.Location {
	if c == nil || c.location == nil {
		return time.UTC
	}
	return c.location
}

// JiraEnabled reports whether the tracker extractor can be built.
func (c *Config) JiraEnabled() bool {
	return c.JiraBaseURL != ""
}

// SheetsEnabled reports whether review sheets are published.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSheetID != ""
}
