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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Fetcher.MaxPerMinute)
	assert.Equal(t, 1000, cfg.Fetcher.MinDelayMs)
	assert.Equal(t, 200, cfg.Fetcher.MinContentChars)
	assert.True(t, cfg.Fetcher.RespectRobots)
	assert.False(t, cfg.Fetcher.AllowStateChanging)
	assert.Equal(t, 10, cfg.Research.QuestionFloor)
	assert.Equal(t, 40, cfg.Research.QuestionTarget)
	assert.Equal(t, 8, cfg.Research.ContextDocs)
	assert.Equal(t, 2*time.Minute, cfg.InitialBudget())
	assert.Equal(t, 5*time.Minute, cfg.DeepBudget())
	assert.NotEmpty(t, cfg.DB.Path)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
fetcher:
  max_per_minute: 10
  block_domains:
    - facebook.com
    - .ads.example
research:
  deep_budget_seconds: 60
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Fetcher.MaxPerMinute)
	assert.Equal(t, []string{"facebook.com", ".ads.example"}, cfg.Fetcher.BlockDomains)
	assert.Equal(t, time.Minute, cfg.DeepBudget())
	// Untouched values keep their defaults.
	assert.Equal(t, 200, cfg.Fetcher.MinContentChars)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := cfg
	bad.Server.Port = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Auth.Enabled = true
	bad.Auth.APIKey = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Headless.Enabled = true
	bad.Headless.MaxParallel = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.DB.Path = ""
	assert.Error(t, bad.Validate())
}
