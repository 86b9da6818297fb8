package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every recognised variable; blank values are ignored by Load.
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range envKeys {
		t.Setenv(key, "")
	}
	t.Setenv("ADMWATCH_CONFIG", "")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, "http", cfg.Monitor.Fetcher)
	assert.Equal(t, 3*time.Second, cfg.Monitor.RequestDelay)
	assert.Equal(t, 30*time.Second, cfg.Monitor.FetchTimeout)
	assert.Equal(t, 20*time.Second, cfg.Monitor.AnalyzeTimeout)
	assert.Equal(t, 72*time.Hour, cfg.Monitor.ReminderWindow)
	assert.Equal(t, "Asia/Hong_Kong", cfg.Scheduler.Timezone)
	assert.Equal(t, "0 9 * * *", cfg.Scheduler.DailySpec)
	assert.Equal(t, "0 10 * * 0", cfg.Scheduler.WeeklySpec)
	assert.Equal(t, "0 * * * *", cfg.Scheduler.DigestSpec)
	assert.Equal(t, "0 8 * * *", cfg.Scheduler.ReminderSpec)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 587, cfg.Email.Port)
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9000
monitor:
  request_delay: 1s
  fetcher: colly
`)
	t.Setenv("PORT", "9100")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MONITOR_FETCH_TIMEOUT", "45s")
	t.Setenv("SCHEDULER_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "env beats file")
	assert.Equal(t, time.Second, cfg.Monitor.RequestDelay, "file beats defaults")
	assert.Equal(t, "colly", cfg.Monitor.Fetcher)
	assert.Equal(t, 45*time.Second, cfg.Monitor.FetchTimeout)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoad_ConfigFromEnvPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADMWATCH_CONFIG", writeConfig(t, "log:\n  format: json\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "unknown fetcher", env: map[string]string{"MONITOR_FETCHER": "curl"}},
		{name: "bad port", env: map[string]string{"PORT": "70000"}},
		{name: "bad log format", file: "log:\n  format: xml\n"},
		{name: "negative delay", env: map[string]string{"MONITOR_REQUEST_DELAY": "-1s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to stat config file")
}
