package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/contact-enricher/internal/config"
	"github.com/shpitdev/contact-enricher/internal/resilience/circuit"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "enricher.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Batch.Workers)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.False(t, cfg.AI.Enabled())
}

func TestLoad_FileWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_HUNTER_KEY", "hk-123")
	path := writeConfig(t, `
http:
  timeout: 5s
breakers:
  linkedin:
    threshold: 3
    recovery_time: 10m
search:
  google_url: http://127.0.0.1:9000/google
  rate_per_second: 0.5
email:
  hunter_api_key: ${TEST_HUNTER_KEY}
batch:
  workers: 4
  min_success_rate: 0.5
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, circuit.Settings{Threshold: 3, RecoveryTime: 10 * time.Minute}, cfg.Breakers[circuit.DepLinkedIn])
	assert.Equal(t, "http://127.0.0.1:9000/google", cfg.Search.GoogleURL)
	assert.Equal(t, 0.5, cfg.Search.RatePerSecond)
	assert.Equal(t, "hk-123", cfg.Email.HunterAPIKey)
	assert.Equal(t, 4, cfg.Batch.Workers)
	assert.Equal(t, 60*time.Second, cfg.Batch.RequestTimeout, "unset keys keep defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "batch:\n  workers: 4\n")
	t.Setenv("WORKERS", "16")
	t.Setenv("FAIL_FAST", "true")
	t.Setenv("REQUEST_TIMEOUT", "90s")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-flash")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Batch.Workers)
	assert.True(t, cfg.Batch.FailFast)
	assert.Equal(t, 90*time.Second, cfg.Batch.RequestTimeout)
	assert.True(t, cfg.AI.Enabled())
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	_, err = config.Load(writeConfig(t, "batch: [oops"))
	assert.ErrorContains(t, err, "parse config file")

	t.Setenv("WORKERS", "many")
	_, err = config.Load("")
	assert.ErrorContains(t, err, `invalid WORKERS="many"`)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.Batch.Workers = 0
	cfg.Batch.MinSuccessRate = 1.5
	cfg.AI.APIKey = "key-only"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "batch.workers")
	assert.ErrorContains(t, err, "min_success_rate")
	assert.ErrorContains(t, err, "ai.api_key")
}
