package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// isolate points every lookup at fresh temp directories.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5000, cfg.Store.BusyTimeoutMS)
	assert.Equal(t, "FULL", cfg.Store.Synchronous)
	assert.Equal(t, 1000, cfg.Capture.RestoreLines)
	assert.InDelta(t, 1.0, cfg.Replay.Rate, 0.0001)
	assert.Equal(t, 512, cfg.Replay.PageSize)
	if runtime.GOOS == "linux" {
		assert.Equal(t, filepath.Join(dir, "data", "skop"), cfg.DataDir)
	}
	assert.Equal(t, filepath.Join(cfg.DataDir, "registry.db"), cfg.RegistryPath)
}

func TestLoadFromYAML(t *testing.T) {
	dir := isolate(t)

	yaml := `
data_dir: /srv/skop
log:
  level: debug
  format: json
replay:
  rate: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/srv/skop", cfg.DataDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 4.0, cfg.Replay.Rate, 0.0001)
	assert.Equal(t, filepath.Join("/srv/skop", "registry.db"), cfg.RegistryPath)
	// Defaults still apply for unset values
	assert.Equal(t, 512, cfg.Replay.PageSize)
}

func TestLoadExplicitFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "elsewhere.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capture:\n  restore_lines: 50\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Capture.RestoreLines)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0o644))

	t.Setenv("SKOP_LOG_LEVEL", "warn")
	t.Setenv("SKOP_STORE_SYNCHRONOUS", "normal")
	t.Setenv("SKOP_REGISTRY_PATH", "/tmp/reg.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "normal", cfg.Store.Synchronous)
	assert.Equal(t, "/tmp/reg.db", cfg.RegistryPath)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		env, value string
	}{
		{"SKOP_REPLAY_RATE", "0"},
		{"SKOP_REPLAY_RATE", "-2"},
		{"SKOP_REPLAY_PAGE_SIZE", "0"},
		{"SKOP_STORE_SYNCHRONOUS", "sometimes"},
		{"SKOP_CAPTURE_RESTORE_LINES", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.env, tt.value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
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

func TestDefaultDirsFallBackToHome(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG fallback is linux only")
	}
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	orig := platformDir.homeDir
	platformDir.homeDir = func() (string, error) { return "/home/tester", nil }
	t.Cleanup(func() { platformDir.homeDir = orig })

	cfgDir, err := DefaultConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/home/tester/.config/skop", cfgDir)

	dataDir, err := DefaultDataDir()
	require.NoError(t, err)
	assert.Equal(t, "/home/tester/.local/share/skop", dataDir)
}
