package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "fragrance.db", cfg.Store.Path)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	assert.Equal(t, "openai", cfg.Provider.Default)
	assert.Equal(t, 3, cfg.Provider.RetryAttempts)
	assert.InDelta(t, 1.0, cfg.Limits.DailyLimitUSD, 0.001)
	assert.InDelta(t, 10.0, cfg.Limits.MonthlyLimitUSD, 0.001)
	assert.Equal(t, 60, cfg.Limits.RequestsPerHour)
	assert.Equal(t, 15, cfg.Cache.TTLMinutes)
	assert.Equal(t, 4096, cfg.Cache.MaxEntries)
	assert.Equal(t, 10, cfg.Batch.MaxItems)
	assert.Equal(t, 4, cfg.Batch.Workers)
	assert.Equal(t, 3, cfg.Feedback.FewShotCount)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/fragrance
provider:
  default: anthropic
limits:
  daily_limit_usd: 2.5
log:
  level: debug
  format: console
server:
  port: 9090
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/fragrance", cfg.Store.DatabaseURL)
	assert.Equal(t, "anthropic", cfg.Provider.Default)
	assert.InDelta(t, 2.5, cfg.Limits.DailyLimitUSD, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Batch.MaxItems)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("FRAGRANCE_STORE_DRIVER", "postgres")
	t.Setenv("FRAGRANCE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("FRAGRANCE_SERVER_PORT", "3000")
	t.Setenv("FRAGRANCE_PROVIDER_DEFAULT", "gemini")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "gemini", cfg.Provider.Default)
}

func TestProviderBackoff(t *testing.T) {
	p := ProviderConfig{RetryAttempts: 5, RetryBaseMs: 100, RetryMaxDelayMs: 400}
	b := p.Backoff()
	assert.Equal(t, 5, b.MaxAttempts)
	assert.Equal(t, int64(100), b.BaseDelay.Milliseconds())
	assert.Equal(t, int64(400), b.MaxDelay.Milliseconds())
}

// validDefaults returns a Config with defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "fragrance.db"
	cfg.Batch.MaxItems = 10
	cfg.Batch.Workers = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateResolve_NoProviderKeys(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("resolve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "at least one provider key")
}

func TestValidateResolve_OneKeySuffices(t *testing.T) {
	cfg := validDefaults()
	cfg.Gemini.Key = "g-key"

	assert.NoError(t, cfg.Validate("resolve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateBatchBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.MaxItems = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch.max_items must be between 1 and 50")

	cfg.Batch.MaxItems = 51
	err = cfg.Validate("serve")
	assert.Error(t, err)

	cfg.Batch.MaxItems = 50
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateNegativeLimits(t *testing.T) {
	cfg := validDefaults()
	cfg.Limits.DailyLimitUSD = -1

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "limits values must be >= 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
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
