package app

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/relnotes/testing"
)

// chdirTemp keeps LoadConfig away from any .env in the package directory.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SCHEDULER_TIMEZONE", "Asia/Kolkata")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, LockBackendMemory, cfg.LockBackend)
	require.Equal(t, "0 12 * * 1-5", cfg.ScheduleCron)
	require.Equal(t, 100, cfg.WebhookLogSize)
	require.Equal(t, "Asia/Kolkata", cfg.Location().String())
	require.False(t, cfg.JiraEnabled())
	require.False(t, cfg.SheetsEnabled())
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SLACK_CHANNEL=#releases\nLOCK_BACKEND=redis\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("SLACK_CHANNEL")
		_ = os.Unsetenv("LOCK_BACKEND")
	})

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "#releases", cfg.SlackChannel)
	require.Equal(t, LockBackendRedis, cfg.LockBackend)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown timezone":     {"SCHEDULER_TIMEZONE": "Mars/Olympus"},
		"unknown lock backend": {"LOCK_BACKEND": "etcd"},
		"jira without token":   {"JIRA_BASE_URL": "https://example.atlassian.net"},
		"sheet without creds":  {"GOOGLE_SHEET_ID": "sheet-1"},
		"empty webhook log":    {"WEBHOOK_LOG_SIZE": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			chdirTemp(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestNewLoggerHonoursLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("date", "2026-10-19"))

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"msg":"shown"`)
	require.Contains(t, out, `"date":"2026-10-19"`)
}

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())
	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
}
