package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8484", cfg.HTTPAddr())
	assert.Equal(t, "retroim.db", cfg.Database.Path)
	assert.Equal(t, time.Second, cfg.Backend.SyncInterval)
	assert.Equal(t, 100, cfg.Backend.SyncBatchSize)
	assert.Equal(t, 10*time.Second, cfg.Backend.ReapInterval)
	assert.Equal(t, 2*time.Minute, cfg.Server.WSIdleTimeout)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 9000
  wsIdleTimeout: 5m
database:
  path: /tmp/test.db
backend:
  syncBatchSize: 50
redis:
  enabled: true
  addr: redis:6379
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Server.WSIdleTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 50, cfg.Backend.SyncBatchSize)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))

	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("SYNC_INTERVAL", "250ms")
	t.Setenv("DB_PATH", "/tmp/env.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Backend.SyncInterval)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
}

func TestAdminPasswordRequiresSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("admin:\n  password: hunter2\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("admin:\n  password: hunter2\n  jwtSecret: s3cret\n"), 0o644))
	_, err = Load(path)
	assert.NoError(t, err)
}

func TestBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
