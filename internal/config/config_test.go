package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XERO_TOOLKIT_DATA_DIR", dir)

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, dir, c.DataDir)
	assert.Equal(t, filepath.Join(dir, "xero-toolkit.db"), c.DBPath)
	assert.Equal(t, filepath.Join(dir, "plans"), c.UserPlanDir)
	assert.Equal(t, filepath.Join(dir, "runs"), c.WorkspacesDir())
	assert.Equal(t, "pkexec", c.Escalation)
	assert.Empty(t, c.AurHelper)
	assert.Equal(t, slog.LevelInfo, c.LogLevel)
}

func TestNewReadsSettingsFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XERO_TOOLKIT_DATA_DIR", dir)
	settings := "aur_helper: yay\nescalation: sudo\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(settings), 0644))

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "yay", c.AurHelper)
	assert.Equal(t, "sudo", c.Escalation)
	assert.Equal(t, slog.LevelDebug, c.LogLevel)
}

func TestEnvOverridesSettings(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XERO_TOOLKIT_DATA_DIR", dir)
	t.Setenv("XERO_TOOLKIT_AUR_HELPER", "paru")
	t.Setenv("XERO_TOOLKIT_LOG_LEVEL", "warn")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("aur_helper: yay\n"), 0644))

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, "paru", c.AurHelper)
	assert.Equal(t, slog.LevelWarn, c.LogLevel)
}

func TestBadSettings(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XERO_TOOLKIT_DATA_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("aur_helper: [unclosed\n"), 0644))

	_, err := New()
	assert.Error(t, err)
}

func TestBadLogLevel(t *testing.T) {
	t.Setenv("XERO_TOOLKIT_DATA_DIR", t.TempDir())
	t.Setenv("XERO_TOOLKIT_LOG_LEVEL", "loud")

	_, err := New()
	assert.ErrorContains(t, err, "invalid log level")
}

func TestEnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	t.Setenv("XERO_TOOLKIT_DATA_DIR", dir)

	c, err := New()
	require.NoError(t, err)
	require.NoError(t, c.EnsureDataDir())
	assert.DirExists(t, c.UserPlanDir)
}
