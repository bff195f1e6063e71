package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "prequal.db", cfg.Store.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1000, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, 30000, cfg.Retry.MaxBackoffMs)
	assert.InDelta(t, 2.0, cfg.Retry.Multiplier, 0.001)
	assert.Equal(t, 15, cfg.Webhook.TimeoutSecs)
	assert.Equal(t, "*/10 * * * *", cfg.Webhook.RetrySchedule)
	assert.Equal(t, 5, cfg.Webhook.MaxAutoRetries)
	assert.Equal(t, "localhost:7233", cfg.Temporal.HostPort)
	assert.Equal(t, "default", cfg.Temporal.Namespace)
	assert.Equal(t, "prequal-fetch", cfg.Temporal.TaskQueue)
	assert.NotNil(t, cfg.Providers)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/prequal
log:
  level: debug
  format: console
providers:
  tax_registry:
    base_url: https://tax.example.gov
    token: secret-token
    read_timeout_secs: 45
    document_policy: best_effort
webhook:
  integrators:
    crm:
      url: https://crm.example.com/hook
      secret: hunter2
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/prequal", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)

	pc := cfg.Provider("tax_registry")
	assert.Equal(t, "https://tax.example.gov", pc.BaseURL)
	assert.Equal(t, "secret-token", pc.Token)
	assert.Equal(t, 45, pc.ReadTimeoutSecs)
	assert.Equal(t, "best_effort", pc.DocumentPolicy)

	integrator := cfg.Webhook.Integrators["crm"]
	assert.Equal(t, "https://crm.example.com/hook", integrator.URL)
	assert.Equal(t, "hunter2", integrator.Secret)

	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "*/10 * * * *", cfg.Webhook.RetrySchedule)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("PREQUAL_STORE_DRIVER", "postgres")
	t.Setenv("PREQUAL_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestProvider_AbsentIsZero(t *testing.T) {
	cfg := &Config{Providers: map[string]ProviderConfig{}}
	pc := cfg.Provider("tax_registry")
	assert.Empty(t, pc.BaseURL)
	assert.Empty(t, pc.Token)
}

func TestProviderTimeouts(t *testing.T) {
	pc := ProviderConfig{}
	assert.Equal(t, 10*time.Second, pc.ConnectTimeout(10*time.Second))
	assert.Equal(t, 30*time.Second, pc.ReadTimeout(30*time.Second))

	pc = ProviderConfig{ConnectTimeoutSecs: 5, ReadTimeoutSecs: 60}
	assert.Equal(t, 5*time.Second, pc.ConnectTimeout(10*time.Second))
	assert.Equal(t, 60*time.Second, pc.ReadTimeout(30*time.Second))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
