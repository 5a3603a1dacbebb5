package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// withHome points the home directory at a temp dir and returns the inferd
// config dir inside it.
func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "inferd")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	return dir
}

func writeConfig(t *testing.T, dir, body string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_DefaultsWhenMissing(t *testing.T) {
	home := filepath.Dir(filepath.Dir(withHome(t)))

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, filepath.Join(home, ".config", "inferd", "inferd.db"), cfg.Storage.Path)
	assert.InDelta(t, 0.02, cfg.Trust.HeartbeatSeed, 1e-12)
	assert.Equal(t, "cipher", cfg.Skill.DefaultType)
	assert.Contains(t, cfg.Exploration.KnownTypes, "curiosity")
}

func TestLoadWithFile_YAML(t *testing.T) {
	dir := withHome(t)
	path := writeConfig(t, dir, `
server:
  http_port: 8088
  shutdown_timeout: 3s
  api_token: s3cret
storage:
  driver: memory
logging:
  level: debug
  format: console
trust:
  heartbeat_seed: 0.05
  heartbeat_min_interval: 30m
skill:
  k: 0.1
exploration:
  known_types: [risk, social]
experiment:
  trait_half_life: 240h
`, 0o600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "s3cret", cfg.Server.APIToken.Value())
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, zapcore.DebugLevel, cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.InDelta(t, 0.05, cfg.Trust.HeartbeatSeed, 1e-12)
	assert.Equal(t, 30*time.Minute, cfg.Trust.HeartbeatMinInterval)
	assert.InDelta(t, 0.1, cfg.Skill.K, 1e-12)
	assert.Equal(t, []string{"risk", "social"}, cfg.Exploration.KnownTypes)
	assert.Equal(t, 240*time.Hour, cfg.Experiment.TraitHalfLife)

	// untouched sections keep defaults
	assert.InDelta(t, 0.002, cfg.Trust.HeartbeatCredit, 1e-12)
	assert.Equal(t, "localhost", cfg.Server.Host)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	dir := withHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 8088\n", 0o600)

	t.Setenv("INFERD_SERVER_HTTP_PORT", "7077")
	t.Setenv("INFERD_TRUST_INACTIVITY_DECAY_PER_DAY", "0.01")
	t.Setenv("INFERD_LOGGING_OUTPUT__STDOUT", "false")
	t.Setenv("INFERD_LOGGING_OUTPUT__STDERR", "true")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7077, cfg.Server.Port)
	assert.InDelta(t, 0.01, cfg.Trust.InactivityDecayPerDay, 1e-12)
	assert.False(t, cfg.Logging.Output.Stdout)
	assert.True(t, cfg.Logging.Output.Stderr)
}

func TestLoadWithFile_Rejections(t *testing.T) {
	t.Run("outside allowed dirs", func(t *testing.T) {
		withHome(t)
		_, err := LoadWithFile(filepath.Join(t.TempDir(), "config.yaml"))
		assert.Error(t, err)
	})

	t.Run("sibling prefix", func(t *testing.T) {
		dir := withHome(t)
		_, err := LoadWithFile(dir + "-evil/config.yaml")
		assert.Error(t, err)
	})

	t.Run("world readable", func(t *testing.T) {
		dir := withHome(t)
		path := writeConfig(t, dir, "server:\n  http_port: 8088\n", 0o644)
		_, err := LoadWithFile(path)
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		dir := withHome(t)
		path := writeConfig(t, dir, "server:\n  http_port: 70000\n", 0o600)
		_, err := LoadWithFile(path)
		assert.Error(t, err)
	})

	t.Run("too large", func(t *testing.T) {
		dir := withHome(t)
		big := make([]byte, maxConfigFileSize+1)
		for i := range big {
			big[i] = '#'
		}
		path := writeConfig(t, dir, string(big), 0o600)
		_, err := LoadWithFile(path)
		assert.Error(t, err)
	})
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"INFERD_SERVER_HTTP_PORT":                   "server.http_port",
		"INFERD_BELIEF_CREDIBLE_LEVEL":              "belief.credible_level",
		"INFERD_LOGGING_OUTPUT__STDERR":             "logging.output.stderr",
		"INFERD_TELEMETRY_METRICS__EXPORT_INTERVAL": "telemetry.metrics.export_interval",
		"INFERD_STORAGE":                            "storage",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandPath("~/data/inferd.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data", "inferd.db"), got)

	got, err = ExpandPath("/var/lib/inferd.db")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/inferd.db", got)
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, EnsureConfigDir())

	info, err := os.Stat(filepath.Join(home, ".config", "inferd"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
