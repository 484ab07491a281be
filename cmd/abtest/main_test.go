package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"abtest/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(config.Default(), &out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestZTestCommand_JSON(t *testing.T) {
	out, err := execute(t, "ztest", "--json", "--log-level", "error")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.InDelta(t, -1.3109, res["statistic"], 1e-3)
	assert.InDelta(t, 0.9051, res["p_value"], 1e-3)
	assert.Equal(t, "greater", res["alternative"])
}

func TestZTestCommand_TwoSided(t *testing.T) {
	out, err := execute(t, "ztest", "--alternative", "two-sided",
		"--control-size", "100", "--control-conversions", "45",
		"--treatment-size", "100", "--treatment-conversions", "60")
	require.NoError(t, err)
	assert.Contains(t, out, "p = 0.0337")
}

func TestSimulateCommand_WritesMetrics(t *testing.T) {
	metricsFile := filepath.Join(t.TempDir(), "abtest.prom")
	out, err := execute(t, "simulate", "--json", "--trials", "500", "--workers", "2",
		"--log-level", "error", "--metrics-file", metricsFile)
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	sim := report["simulation"].(map[string]any)
	assert.Equal(t, 500.0, sim["summary"].(map[string]any)["trials"])

	body, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(body), "abtest_simulation_trials_total 500")
	assert.Contains(t, string(body), `abtest_p_value{test="simulation"}`)
}

func TestSimulateCommand_RejectsBadFlags(t *testing.T) {
	_, err := execute(t, "simulate", "--trials", "0")
	assert.Error(t, err)

	_, err = execute(t, "simulate", "--alternative", "sideways")
	assert.Error(t, err)
}

func TestAnalyzeCommand(t *testing.T) {
	_, err := execute(t, "analyze")
	assert.Error(t, err)

	out, err := execute(t, "analyze", "--synthetic", "--users", "3000", "--trials", "300", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "converted ~ ab_page + UK + US")
}
