package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VAULTD_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.InDelta(t, 0.05, cfg.ReallocationThreshold, 1e-9)
	assert.Equal(t, 30, cfg.LookbackDays)
	assert.Equal(t, 30*time.Second, cfg.SolverTimeout)
	assert.True(t, cfg.NotifyQueueSize > 0)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("VAULTD_DATA_DIR", t.TempDir())
	t.Setenv("VAULTD_PORT", "9100")
	t.Setenv("REALLOCATION_THRESHOLD", "0.10")
	t.Setenv("SOLVER_TIMEOUT", "5s")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.InDelta(t, 0.10, cfg.ReallocationThreshold, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.SolverTimeout)
	assert.True(t, cfg.DevMode)
}

func TestLoad_InvalidThreshold(t *testing.T) {
	t.Setenv("VAULTD_DATA_DIR", t.TempDir())
	t.Setenv("REALLOCATION_THRESHOLD", "1.5")

	_, err := Load()
	require.Error(t, err)
}
