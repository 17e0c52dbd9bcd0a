package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/jarvis/internal/storage"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "https://api.openai.com/v1", cfg.AI.BaseURL)
	assert.Equal(t, 0.1, cfg.AI.ClassifyTemperature)
	assert.Equal(t, 50, cfg.AI.ClassifyMaxTokens)
	assert.Equal(t, 60, cfg.Quota.Limit)
	assert.Equal(t, uint32(5), cfg.Breaker.ConsecutiveFailures)
	assert.Equal(t, 50, cfg.Queue.MaxEntries)
	assert.True(t, cfg.Queue.AutoDrain)
	assert.Equal(t, 20, cfg.Queue.DrainReserve)
	assert.Equal(t, 5, cfg.Context.MaxExchanges)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 0.7, cfg.Resolver.RemoteThreshold)
	assert.Equal(t, "127.0.0.1:8765", cfg.Server.Listen)
	assert.Equal(t, "info", cfg.Logging.Level)

	cfg.Storage.Path = "/tmp/jarvis.db"
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromPath_CreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".jarvis", "config.yaml")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "config file was not created")

	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.Equal(t, 30*time.Second, cfg.AI.RequestTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.NotContains(t, cfg.Storage.Path, "~")
}

func TestLoadFromPath_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
ai:
  model: gpt-4o
  base_url: http://localhost:1234/v1
quota:
  limit: 10
  window: 30s
storage:
  driver: memory
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.AI.Model)
	assert.Equal(t, "http://localhost:1234/v1", cfg.AI.BaseURL)
	assert.Equal(t, 10, cfg.Quota.Limit)
	assert.Equal(t, 30*time.Second, cfg.Quota.Window)
	assert.Equal(t, storage.DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 0.85, cfg.Resolver.GrammarThreshold)
}

func TestLoadFromPath_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("JARVIS_AI_MODEL", "gpt-4.1-mini")
	t.Setenv("JARVIS_QUOTA_LIMIT", "5")
	t.Setenv("JARVIS_RETRY_BASE_DELAY", "2s")
	t.Setenv("JARVIS_STORAGE_DRIVER", "memory")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1-mini", cfg.AI.Model)
	assert.Equal(t, 5, cfg.Quota.Limit)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, storage.DriverMemory, cfg.Storage.Driver)
}

func TestLoadFromPath_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: floppy\n"), 0644))

	_, err := LoadFromPath(path)
	assert.ErrorContains(t, err, "storage.driver")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty model", func(c *Config) { c.AI.Model = "" }, "ai.model"},
		{"zero quota", func(c *Config) { c.Quota.Limit = 0 }, "quota.limit"},
		{"threshold above one", func(c *Config) { c.Resolver.RemoteThreshold = 1.5 }, "resolver.remote_threshold"},
		{"redis without addr", func(c *Config) { c.Storage.Driver = storage.DriverRedis }, "redis_addr"},
		{"bad level", func(c *Config) { c.Logging.Level = "chatty" }, "log level"},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"shrinking backoff", func(c *Config) { c.Retry.Multiplier = 0.5 }, "multiplier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestComponentViews(t *testing.T) {
	cfg := Default()
	cfg.Retry.MaxAttempts = 4
	cfg.Breaker.Enabled = false
	cfg.Storage.Driver = storage.DriverRedis
	cfg.Storage.RedisAddr = "localhost:6379"

	gw := cfg.GatewayConfig()
	assert.Equal(t, 4, gw.Retry.MaxAttempts)
	assert.False(t, gw.Breaker.Enabled)
	assert.Equal(t, cfg.AI.ClassifyMaxTokens, gw.ClassifyMaxTokens)

	p := cfg.ProviderConfig()
	assert.Equal(t, cfg.AI.BaseURL, p.Endpoint)
	assert.Equal(t, cfg.AI.RequestTimeout, p.Timeout)

	assert.Equal(t, cfg.Quota.Limit, cfg.QuotaLimits().Limit)
	assert.Equal(t, 0.7, cfg.Thresholds().Remote)

	st := cfg.StorageOptions()
	assert.Equal(t, "localhost:6379", st.RedisAddr)
	assert.Equal(t, "jarvis:", st.KeyPrefix)

	assert.Equal(t, "info", cfg.LoggerOptions().Level)
}

func TestSaveToPath_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Storage.Driver = storage.DriverMemory
	cfg.Cache.MaxEntries = 42

	require.NoError(t, cfg.SaveToPath(path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Cache.MaxEntries)
	assert.Equal(t, cfg.Cache.TTL, loaded.Cache.TTL)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadDotEnv(dir), "missing .env is not an error")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JARVIS_TEST_DOTENV=from-file\n"), 0600))
	t.Setenv("JARVIS_TEST_DOTENV", "")
	os.Unsetenv("JARVIS_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(dir))
	assert.Equal(t, "from-file", os.Getenv("JARVIS_TEST_DOTENV"))
}
