package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 6379, cfg.Port)
	assert.Equal(t, 16, cfg.Databases)
	assert.Equal(t, "noeviction", cfg.MaxmemoryPolicy)
	assert.False(t, cfg.AppendOnly)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "redis.yaml")
	yamlBody := `
ip: 127.0.0.1
port: 7000
databases: 4
maxmemory: 104857600
maxmemory-policy: allkeys-lru
appendonly: true
appendfsync: always
repl-timeout: 30s
save:
  - [60, 1000]
  - [10, 1]
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.IP)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 4, cfg.Databases)
	assert.Equal(t, int64(104857600), cfg.Maxmemory)
	assert.Equal(t, "allkeys-lru", cfg.MaxmemoryPolicy)
	assert.True(t, cfg.AppendOnly)
	assert.Equal(t, "always", cfg.AppendFsync)
	assert.Equal(t, Duration(30*time.Second), cfg.ReplTimeout)
	require.Len(t, cfg.Save, 2)
	assert.Equal(t, SavePoint{Seconds: 60, Changes: 1000}, cfg.Save[0])
	assert.Equal(t, SavePoint{Seconds: 10, Changes: 1}, cfg.Save[1])
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}

func TestDefaultSentinelConfig(t *testing.T) {
	cfg := DefaultSentinelConfig()
	require.Len(t, cfg.Monitors, 1)
	assert.Equal(t, "mymaster", cfg.Monitors[0].Name)
	assert.Equal(t, 2, cfg.Monitors[0].Quorum)
}

func TestLoadSentinelConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	yamlBody := `
port: 26380
monitors:
  - name: mymaster
    host: 10.0.0.1
    port: 6379
    quorum: 3
    down-after-milliseconds: 5000
sentinels:
  - 10.0.0.2:26379
  - 10.0.0.3:26379
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := LoadSentinelConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 26380, cfg.Port)
	require.Len(t, cfg.Monitors, 1)
	assert.Equal(t, 3, cfg.Monitors[0].Quorum)
	assert.Equal(t, 5000, cfg.Monitors[0].DownAfterMillis)
	assert.Equal(t, []string{"10.0.0.2:26379", "10.0.0.3:26379"}, cfg.PeerAddrs)
}
