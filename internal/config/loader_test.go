package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ".chatbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validYAML = `
server:
  port: 9100
  shared_secret: "0123456789abcdef0123"
browser:
  target_url: "https://web.whatsapp.com"
sync:
  interval: 20m
`

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, validYAML)

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)

	// File values win
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 20*time.Minute, cfg.Sync.Interval)

	// Unset values fall back to defaults
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9222, cfg.Browser.DebugPort)
	assert.Equal(t, DefaultIdleTimeout, cfg.Browser.IdleTimeout)
	assert.Equal(t, DefaultCommandTimeout, cfg.Bridge.CommandTimeout)
	assert.Equal(t, DefaultSyncSafetyTimeout, cfg.Sync.SafetyTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, validYAML)
	t.Setenv("CHATBRIDGE_SERVER_PORT", "9999")
	t.Setenv("CHATBRIDGE_SYNC_INTERVAL", "30m")

	cfg, err := NewLoader().WithConfigFile(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Sync.Interval)
}

func TestLoad_MissingSecretFailsValidation(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9100
`)
	_, err := NewLoader().WithConfigFile(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shared_secret")
}

func TestLoadLenient_SkipsValidation(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9100
`)
	cfg, err := NewLoader().WithConfigFile(path).LoadLenient()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Empty(t, cfg.Server.SharedSecret)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [broken")
	_, err := NewLoader().WithConfigFile(path).Load()
	assert.Error(t, err)
}
