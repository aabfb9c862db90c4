package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/Shannon/go/briefing/internal/circuitbreaker"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	t.Run("Defaults without a file", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Service.HTTPPort)
		assert.Equal(t, 2112, cfg.Service.MetricsPort)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, 90*time.Second, cfg.Engines.Timeout)
		assert.False(t, cfg.Engines.IncludeFallbackDisagreements)
		assert.False(t, cfg.Cache.Enabled)
		assert.Equal(t, "lru", cfg.Cache.Backend)
		assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
		assert.Equal(t, 256, cfg.Cache.MaxEntries)
		assert.False(t, cfg.Tracing.Enabled)
		assert.False(t, cfg.Temporal.Enabled)
		assert.Equal(t, "research-briefing", cfg.Temporal.TaskQueue)
		assert.Equal(t, filepath.Join("config", "engines.yaml"), cfg.EnginesFile())
	})

	t.Run("File values", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "briefing.yaml", `
service:
  http_port: 9000
engines:
  timeout: 15s
  include_fallback_disagreements: true
cache:
  backend: Redis
  redis_addr: cache:6379
temporal:
  enabled: true
  task_queue: briefs
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Service.HTTPPort)
		assert.Equal(t, 15*time.Second, cfg.Engines.Timeout)
		assert.True(t, cfg.Engines.IncludeFallbackDisagreements)
		assert.Equal(t, "redis", cfg.Cache.Backend)
		assert.Equal(t, "cache:6379", cfg.Cache.RedisAddr)
		assert.True(t, cfg.Temporal.Enabled)
		assert.Equal(t, "briefs", cfg.Temporal.TaskQueue)
		assert.Equal(t, dir, cfg.Dir)
		assert.Equal(t, filepath.Join(dir, "engines.yaml"), cfg.EnginesFile())
	})

	t.Run("Environment variable override", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "briefing.yaml", "logging:\n  level: warn\n")
		t.Setenv("BRIEFING_LOGGING_LEVEL", "debug")
		t.Setenv("BRIEFING_ENGINES_TIMEOUT", "3s")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 3*time.Second, cfg.Engines.Timeout)
	})

	t.Run("CONFIG_PATH", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("CONFIG_PATH", writeFile(t, dir, "other.yaml", "service:\n  grpc_port: 6000\n"))
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 6000, cfg.Service.GRPCPort)
	})

	t.Run("Explicit missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestLoadResolvesBreakerSettings(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("CB_ENGINE_FAILURE_THRESHOLD", "7")
	t.Setenv("CB_REDIS_TIMEOUT", "2s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), cfg.Breakers.Engine.FailureThreshold)
	assert.Equal(t, circuitbreaker.EngineDefaults().Timeout, cfg.Breakers.Engine.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Breakers.Redis.Timeout)
}

func TestValidate(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	base, err := Load("")
	require.NoError(t, err)

	tests := map[string]func(c *Config){
		"negative port":      func(c *Config) { c.Service.HTTPPort = -1 },
		"zero timeout":       func(c *Config) { c.Engines.Timeout = 0 },
		"unknown backend":    func(c *Config) { c.Cache.Backend = "memcached" },
		"redis without addr": func(c *Config) { c.Cache.Backend = "redis"; c.Cache.RedisAddr = "" },
		"temporal no queue":  func(c *Config) { c.Temporal.Enabled = true; c.Temporal.TaskQueue = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := *base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
	assert.NoError(t, base.Validate())
}

func TestNewLogger(t *testing.T) {
	l, err := LoggingConfig{Level: "debug", Format: "console"}.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = LoggingConfig{Level: "loud"}.NewLogger()
	assert.Error(t, err)
}
