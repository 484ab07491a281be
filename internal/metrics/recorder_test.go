package metrics

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"abtest/internal/errors"
	"abtest/ports"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.SimulationRecorder = (*Recorder)(nil)

func TestRecorder_ObserveSimulation(t *testing.T) {
	r := NewRecorder()

	r.ObserveSimulation(10000, 150*time.Millisecond, nil)
	r.ObserveSimulation(500, 20*time.Millisecond, nil)
	r.ObserveSimulation(0, time.Millisecond, stderrors.New("cancelled"))

	assert.Equal(t, 10500.0, testutil.ToFloat64(r.trialsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.simulationsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.simulationsTotal.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))
}

func TestRecorder_ObservePValue(t *testing.T) {
	r := NewRecorder()

	r.ObservePValue("simulation", 0.91)
	r.ObservePValue("simulation", 0.90)
	r.ObservePValue("ztest", 0.905)

	assert.Equal(t, 0.90, testutil.ToFloat64(r.pValue.WithLabelValues("simulation")))
	assert.Equal(t, 0.905, testutil.ToFloat64(r.pValue.WithLabelValues("ztest")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveSimulation(100, time.Second, nil)

	path := filepath.Join(t.TempDir(), "abtest.prom")
	require.NoError(t, r.WriteTextfile(path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), "abtest_simulation_trials_total 100")

	err = r.WriteTextfile("")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}
