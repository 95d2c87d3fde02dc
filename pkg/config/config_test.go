package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, 2334, cfg.Port)
	assert.Equal(t, 5*time.Millisecond, cfg.Cadence)
	assert.Zero(t, cfg.Timeout)
	assert.Equal(t, time.Minute, cfg.CalibrationTimeout)
	assert.Equal(t, 20.0, cfg.Tolerance)
	assert.Equal(t, "config.json", cfg.Manifest)
	assert.Equal(t, "data.rpd", cfg.Trajectory)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("AMBER_PORT", "4000")
	t.Setenv("AMBER_CADENCE_MS", "10")
	t.Setenv("AMBER_MAX_STEP", "250.5")
	t.Setenv("AMBER_SETTLE_TIMEOUT_MS", "not a number")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, 10*time.Millisecond, cfg.Cadence)
	assert.Equal(t, 250.5, cfg.MaxStep)
	assert.Equal(t, 2*time.Second, cfg.SettleTimeout)
}

func TestDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("AMBER_MANIFEST=arm.yaml\nAMBER_TOLERANCE=3\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("AMBER_MANIFEST")
		os.Unsetenv("AMBER_TOLERANCE")
	})

	cfg := Load(path)
	assert.Equal(t, "arm.yaml", cfg.Manifest)
	assert.Equal(t, 3.0, cfg.Tolerance)

	s := cfg.Session(logrus.New())
	assert.Equal(t, 3.0, s.Tolerance)
	assert.NotNil(t, s.Stop)
	assert.Len(t, cfg.GroupOptions(logrus.New()), 5)
}

func TestLogger(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	assert.Equal(t, logrus.DebugLevel, cfg.Logger().GetLevel())

	cfg.LogLevel = "loud"
	assert.Equal(t, logrus.InfoLevel, cfg.Logger().GetLevel())

	cfg.LogLevel = "off"
	assert.Equal(t, io.Discard, cfg.Logger().Out)
}
