package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	t.Setenv("RELAY_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Webhook.RequestTimeout)
	assert.Equal(t, 3, cfg.Webhook.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Webhook.RetryBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Webhook.RetryMaxDelay)
	assert.Equal(t, 2.0, cfg.Webhook.RetryMultiplier)
	assert.True(t, cfg.Webhook.RetryJitter)
	assert.Equal(t, 5, cfg.Webhook.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Webhook.RecoveryTimeout)

	assert.True(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 1000, cfg.Monitoring.HistorySize)

	assert.False(t, cfg.Verification.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Verification.VerifyTimeout)
	assert.Equal(t, 5*time.Second, cfg.Verification.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Verification.DeploymentTimeout)

	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("RELAY_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("RELAY_WEBHOOK_URL", "http://example.com/webhook")
	t.Setenv("RELAY_WEBHOOK_AUTH_TOKEN", "secret")
	t.Setenv("RELAY_WEBHOOK_RETRY_ATTEMPTS", "7")
	t.Setenv("RELAY_WEBHOOK_REQUEST_TIMEOUT", "45s")
	t.Setenv("RELAY_MONITORING_ENABLED", "false")
	t.Setenv("RELAY_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/webhook", cfg.Webhook.URL)
	assert.Equal(t, "secret", cfg.Webhook.AuthToken)
	assert.Equal(t, 7, cfg.Webhook.RetryAttempts)
	assert.Equal(t, 45*time.Second, cfg.Webhook.RequestTimeout)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	content := `
webhook:
  url: "http://files.example.com/webhook"
  retry_attempts: 4
  failure_threshold: 2
verification:
  enabled: true
  poll_interval: 250ms
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	t.Setenv("RELAY_CONFIG_FILE", file)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://files.example.com/webhook", cfg.Webhook.URL)
	assert.Equal(t, 4, cfg.Webhook.RetryAttempts)
	assert.Equal(t, 2, cfg.Webhook.FailureThreshold)
	assert.True(t, cfg.Verification.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Verification.PollInterval)

	// Values the file does not set keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Webhook.RequestTimeout)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("webhook:\n  retry_attempts: 4\n"), 0o644))
	t.Setenv("RELAY_CONFIG_FILE", file)
	t.Setenv("RELAY_WEBHOOK_RETRY_ATTEMPTS", "9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Webhook.RetryAttempts)
}

func TestLoad_MalformedFileFails(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("webhook: [not: valid"), 0o644))
	t.Setenv("RELAY_CONFIG_FILE", file)

	_, err := Load()
	assert.Error(t, err)
}
