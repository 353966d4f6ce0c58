package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := NewConfig()

	assert.Equal(t, "http://127.0.0.1:5000", cfg.BackendURL)
	assert.Equal(t, time.Duration(0), cfg.BackendTimeout)
	assert.Equal(t, 50, cfg.MaxRecords)
	assert.Equal(t, "searchHistory", cfg.HistoryKey)
	assert.Equal(t, "file", cfg.StorageDriver)
	assert.Equal(t, filepath.Join(home, ".askweb"), cfg.StoragePath)
	assert.Equal(t, filepath.Join(home, ".askweb", "askweb.log"), cfg.LogPath)
	assert.Equal(t, "local", cfg.LedgerDriver)
	assert.Equal(t, 10, cfg.SignupCredits)
	assert.Equal(t, 2*time.Second, cfg.ProgressInterval)
	assert.True(t, cfg.RequireLogin)
	assert.Equal(t, "127.0.0.1:8787", cfg.ServerAddr)
	assert.NoError(t, cfg.Validate())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ASKWEB_BACKEND_URL", "http://search.internal:9000")
	t.Setenv("ASKWEB_BACKEND_TIMEOUT", "45s")
	t.Setenv("ASKWEB_HISTORY_MAX_RECORDS", "5")
	t.Setenv("ASKWEB_AUTH_REQUIRE_LOGIN", "false")

	v, err := NewViper("")
	require.NoError(t, err)
	cfg := FromViper(v)

	assert.Equal(t, "http://search.internal:9000", cfg.BackendURL)
	assert.Equal(t, 45*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 5, cfg.MaxRecords)
	assert.False(t, cfg.RequireLogin)
}

func TestConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "askweb.yaml")
	content := `
backend:
  url: http://10.0.0.2:5000
storage:
  driver: sqlite
  path: /var/lib/askweb
ledger:
  driver: postgres
  database_url: postgres://askweb@db/askweb
progress:
  interval: 500ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v, err := NewViper(path)
	require.NoError(t, err)
	cfg := FromViper(v)

	assert.Equal(t, "http://10.0.0.2:5000", cfg.BackendURL)
	assert.Equal(t, "sqlite", cfg.StorageDriver)
	assert.Equal(t, "/var/lib/askweb", cfg.StoragePath)
	assert.Equal(t, "/var/lib/askweb/askweb.log", cfg.LogPath)
	assert.Equal(t, "postgres", cfg.LedgerDriver)
	assert.Equal(t, 500*time.Millisecond, cfg.ProgressInterval)
	assert.NoError(t, cfg.Validate())
}

func TestConfigFileMissingIsAnError(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty backend url", func(c *Config) { c.BackendURL = "" }, "backend URL"},
		{"negative timeout", func(c *Config) { c.BackendTimeout = -time.Second }, "timeout"},
		{"zero max records", func(c *Config) { c.MaxRecords = 0 }, "max records"},
		{"empty history key", func(c *Config) { c.HistoryKey = "" }, "history key"},
		{"zero interval", func(c *Config) { c.ProgressInterval = 0 }, "interval"},
		{"negative signup credits", func(c *Config) { c.SignupCredits = -1 }, "signup"},
		{"unknown storage driver", func(c *Config) { c.StorageDriver = "redis" }, "storage driver"},
		{"unknown ledger driver", func(c *Config) { c.LedgerDriver = "stripe" }, "ledger driver"},
		{"postgres without url", func(c *Config) { c.LedgerDriver = "postgres" }, "database_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, filepath.Join(home, "x", "y"), expandHome("~/x/y"))
	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	assert.Equal(t, "~user/path", expandHome("~user/path"))
}
