package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "TELEGRAM_TOKEN", "TASKBOARD_TIMEZONE", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(afero.NewMemMapFs(), "")
	require.NoError(t, err)
	assert.Equal(t, "taskboard.db", cfg.DatabaseURL)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, 3, cfg.Engine.RetryMax)
	assert.Empty(t, cfg.TelegramToken)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/etc/taskboard.yaml", []byte(`
database_url: /var/lib/taskboard/data.db
timezone: Europe/Berlin
log:
  level: debug
  format: json
engine:
  workers: 8
  retry_base: 250ms
redrive:
  schedule: "*/30 * * * * *"
  min_age: 1m
`), 0o644))
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(fsys, "/etc/taskboard.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/taskboard/data.db", cfg.DatabaseURL)
	assert.Equal(t, "Europe/Berlin", cfg.Location.String())
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.RetryBase)
	assert.Equal(t, 3, cfg.Engine.RetryMax, "unset keys keep defaults")
	assert.Equal(t, "*/30 * * * * *", cfg.Redrive.Schedule)
	assert.Equal(t, time.Minute, cfg.Redrive.MinAge)
	assert.Equal(t, "123:abc", cfg.TelegramToken)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "bad.yaml", []byte("engine: [1"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "zone.yaml", []byte("timezone: Mars/Olympus"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "workers.yaml", []byte("engine:\n  workers: -1\n"), 0o644))

	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing file", "nope.yaml", "not found"},
		{"bad yaml", "bad.yaml", "parse config"},
		{"bad timezone", "zone.yaml", "invalid timezone"},
		{"bad workers", "workers.yaml", "engine.workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(fsys, tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
