// Package metrics exposes simulation runs as prometheus collectors on a
// private registry. The CLI is short-lived, so nothing is served over HTTP;
// WriteTextfile dumps the registry for the node-exporter textfile collector.
package metrics

import (
	"time"

	"abtest/internal/errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "abtest"

// Recorder implements ports.SimulationRecorder
type Recorder struct {
	registry *prometheus.Registry

	trialsTotal      prometheus.Counter
	simulationsTotal *prometheus.CounterVec
	duration         prometheus.Histogram
	pValue           *prometheus.GaugeVec
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		trialsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "trials_total",
			Help:      "Simulated null-hypothesis trials across all completed runs",
		}),
		simulationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "runs_total",
			Help:      "Null distribution builds by outcome",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "duration_seconds",
			Help:      "Wall time of one null distribution build",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		pValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "p_value",
			Help:      "Most recent p-value per test",
		}, []string{"test"}),
	}

	r.registry.MustRegister(r.trialsTotal, r.simulationsTotal, r.duration, r.pValue)
	return r
}

// Registry exposes the private registry for gathering
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveSimulation records one finished null distribution build
func (r *Recorder) ObserveSimulation(trials int, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	} else {
		r.trialsTotal.Add(float64(trials))
	}
	r.simulationsTotal.WithLabelValues(status).Inc()
	r.duration.Observe(elapsed.Seconds())
}

// ObservePValue records the latest p-value of a named test
func (r *Recorder) ObservePValue(test string, pValue float64) {
	r.pValue.WithLabelValues(test).Set(pValue)
}

// WriteTextfile writes the registry in text exposition format; the file is
// replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return errors.InvalidInput("metrics file path is empty")
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "write metrics to %s", path)
	}
	return nil
}
