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
	t.Setenv("PORT", "")
	t.Setenv("LEAVE_DEBOUNCE", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, time.Second, cfg.SettleDelay)
	assert.Equal(t, 3*time.Second, cfg.LeaveDebounce)
	assert.Equal(t, 5*time.Second, cfg.MaxRecording)
	assert.True(t, cfg.FilterDisplayNames)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LEAVE_DEBOUNCE", "500ms")
	t.Setenv("AUTH_RATE_LIMIT", "3")
	t.Setenv("FILTER_DISPLAY_NAMES", "false")
	t.Setenv("MAX_RECORDING", "not-a-duration")

	cfg := Load()
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 500*time.Millisecond, cfg.LeaveDebounce)
	assert.Equal(t, 3, cfg.AuthRateLimit)
	assert.False(t, cfg.FilterDisplayNames)
	assert.Equal(t, 5*time.Second, cfg.MaxRecording)
}

func TestParseMergesFileOverEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GRADING_URL", "http://grader.env")

	cfg, err := Parse([]byte(`
[server]
database_type = "postgres"
database_url = "postgres://localhost/readalong"

[reader]
grading_url = "http://grader.file"
settle_delay = "250ms"
`))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DatabaseType)
	assert.Equal(t, "http://grader.file", cfg.GradingURL)
	assert.Equal(t, 250*time.Millisecond, cfg.SettleDelay)
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 3*time.Second, cfg.LeaveDebounce)
}

func TestParseInvalidDuration(t *testing.T) {
	_, err := Parse([]byte(`
[reader]
leave_debounce = "soon"
`))
	assert.ErrorContains(t, err, "reader.leave_debounce")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readalong.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
