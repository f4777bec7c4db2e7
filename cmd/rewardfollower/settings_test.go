package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Missing(t *testing.T) {
	t.Parallel()

	s, found, err := loadSettings(filepath.Join(t.TempDir(), "settings.toml"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, Settings{}, s)

	_, found, err = loadSettings("")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoadSettings_Parse(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_url = "postgres://user:pw@db:5432/rewards"
node_addr = "http://node:9650"
mode = "filters"
backfill = true

[log]
log_dir = "/var/log/rewards"
`), 0o600))

	s, found, err := loadSettings(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, Settings{
		DatabaseURL: "postgres://user:pw@db:5432/rewards",
		NodeAddr:    "http://node:9650",
		Mode:        modeFilters,
		Backfill:    true,
		Log:         LogSettings{LogDir: "/var/log/rewards"},
	}, s)
}

func TestLoadSettings_Invalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = [unterminated"), 0o600))

	_, _, err := loadSettings(path)
	require.ErrorContains(t, err, "failed to parse settings")
}

func TestWriteSettings_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.toml")
	want := Settings{DatabaseURL: "sqlite:///tmp/rewards.db", NodeAddr: "http://127.0.0.1:9650", Mode: modeFull, Backfill: true}
	require.NoError(t, writeSettings(path, want))

	got, found, err := loadSettings(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)
}
