package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaultsFieldByField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
queue:
  backend: redis
  redis:
    addr: "redis.internal:6379"
  worker_pool_size: 16
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Queue.Redis.Addr)
	assert.Equal(t, 16, cfg.Queue.WorkerPoolSize)

	// Fields the file didn't set keep Default()'s values.
	assert.Equal(t, "development", cfg.Container.Profile)
	assert.Equal(t, 30*time.Second, cfg.Module.InitTimeout)
	assert.Equal(t, "ignite:queue", cfg.Queue.Redis.KeyPrefix)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultIsInternallyConsistent(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "memory", cfg.Queue.Backend)
	assert.Greater(t, cfg.Queue.WorkerPoolSize, 0)
	assert.Greater(t, cfg.Queue.Retry.MaxAttempts, 0)
}
