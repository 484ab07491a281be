package config

import (
	"runtime"
	"strings"
	"testing"

	"abtest/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"SIM_TRIALS", "SIM_SEED", "SIM_WORKERS", "ALPHA",
		"CROSSCHECK_TOLERANCE", "LOG_LEVEL", "LOG_FORMAT", "METRICS_FILE"} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10000, cfg.Simulation.Trials)
	assert.Equal(t, uint64(42), cfg.Simulation.Seed)
	assert.Equal(t, runtime.NumCPU(), cfg.Simulation.Workers)
	assert.Equal(t, 0.05, cfg.Analysis.Alpha)
	assert.Equal(t, 0.05, cfg.Analysis.CrossCheckTolerance)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Empty(t, cfg.Metrics.File)
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SIM_TRIALS", "2500")
	t.Setenv("SIM_SEED", "7")
	t.Setenv("SIM_WORKERS", "3")
	t.Setenv("ALPHA", "0.01")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("METRICS_FILE", "/tmp/abtest.prom")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2500, cfg.Simulation.Trials)
	assert.Equal(t, uint64(7), cfg.Simulation.Seed)
	assert.Equal(t, 3, cfg.Simulation.Workers)
	assert.Equal(t, 0.01, cfg.Analysis.Alpha)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/tmp/abtest.prom", cfg.Metrics.File)
}

func TestLoad_UnparseableFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("SIM_TRIALS", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10000, cfg.Simulation.Trials)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string]struct {
		key, value, field string
	}{
		"zero trials":    {"SIM_TRIALS", "0", "Simulation.Trials"},
		"alpha too big":  {"ALPHA", "1.5", "Analysis.Alpha"},
		"unknown level":  {"LOG_LEVEL", "verbose", "Logging.Level"},
		"unknown format": {"LOG_FORMAT", "xml", "Logging.Format"},
		"no workers":     {"SIM_WORKERS", "-1", "Simulation.Workers"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
			assert.True(t, strings.Contains(err.Error(), tc.field), err.Error())
		})
	}
}

func TestValidate_AfterOverride(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Analysis.CrossCheckTolerance = -0.1
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(cfg.Validate()))
}
