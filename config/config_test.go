package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, BackendDynamo, cfg.Store.Backend)
	assert.Equal(t, "Preferences", cfg.Store.PreferencesTable)
	assert.Equal(t, 2*time.Minute, cfg.Matching.RunTimeout)
	assert.Zero(t, cfg.Matching.MaxPasses)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
store:
  backend: sqlite
  dsn: /tmp/prestige.db
matching:
  interval: 15m
  max_passes: 40
`), 0o600))

	t.Setenv("PRESTIGE_MATCHING__MAX_PASSES", "99")
	t.Setenv("PRESTIGE_LOG__LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/tmp/prestige.db", cfg.Store.DSN)
	assert.Equal(t, 15*time.Minute, cfg.Matching.Interval)
	assert.Equal(t, 99, cfg.Matching.MaxPasses)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown backend", env: map[string]string{"PRESTIGE_STORE__BACKEND": "mongo"}},
		{name: "sql backend without dsn", env: map[string]string{"PRESTIGE_STORE__BACKEND": "postgres"}},
		{name: "bad log format", env: map[string]string{"PRESTIGE_LOG__FORMAT": "xml"}},
		{name: "nats without url", env: map[string]string{"PRESTIGE_NATS__ENABLED": "true", "PRESTIGE_NATS__URL": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "matching.max_passes", envKey("PRESTIGE_MATCHING__MAX_PASSES"))
	assert.Equal(t, "store.dsn", envKey("PRESTIGE_STORE__DSN"))
}
