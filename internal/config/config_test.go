package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHATHUB_JWT_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "chathub", cfg.Server.Name)
	assert.Equal(t, "chathub", cfg.JWT.Issuer)
	assert.Equal(t, "chathub-clients", cfg.JWT.Audience)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, "chathub.broadcast", cfg.Redis.Channel)
	assert.Equal(t, 64, cfg.Hub.SendBuffer)
	assert.Equal(t, 30*time.Second, cfg.Hub.PingInterval)
	assert.Equal(t, "0 3 * * *", cfg.Retention.Schedule)
	assert.Equal(t, 2160*time.Hour, cfg.Retention.MaxAge)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CHATHUB_JWT_KEY", "test-key")
	t.Setenv("CHATHUB_ADDR", ":9999")
	t.Setenv("CHATHUB_ALLOWED_ORIGINS", "https://a.example;https://b.example")
	t.Setenv("CHATHUB_HUB_SEND_BUFFER", "128")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 128, cfg.Hub.SendBuffer)
}

func TestValidateRequiresSigningKey(t *testing.T) {
	cfg := &Config{}
	cfg.Hub.SendBuffer = 64
	assert.Error(t, cfg.Validate())

	cfg.JWT.SigningKey = "key"
	assert.NoError(t, cfg.Validate())
}

func TestApplyFileOverlay(t *testing.T) {
	t.Setenv("CHATHUB_JWT_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":7070\"\njwt:\n  issuer: overridden\n"), 0o600))

	require.NoError(t, ApplyFile(cfg, path))
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "overridden", cfg.JWT.Issuer)
	// Untouched values survive the overlay.
	assert.Equal(t, "chathub-clients", cfg.JWT.Audience)
}

func TestApplyFileMissing(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, ApplyFile(cfg, filepath.Join(t.TempDir(), "nope.yaml")))
}
