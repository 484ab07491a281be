package ports

import (
	"time"

	"abtest/domain/experiment"
)

// ProportionTestPort is an analytic two-sample proportion test.
// The statistic compares sample 0 against sample 1.
type ProportionTestPort interface {
	Test(successes, nobs [2]int, alternative experiment.Alternative) (ProportionTestResult, error)
}

// ProportionTestResult is the statistic and analytic p-value of a proportion test
type ProportionTestResult struct {
	Statistic   float64                `json:"statistic"`
	PValue      float64                `json:"p_value"`
	Alternative experiment.Alternative `json:"alternative"`
	Difference  float64                `json:"difference"`
	StdErr      float64                `json:"std_err"`
}

// SimulationRecorder receives per-run simulation telemetry
type SimulationRecorder interface {
	ObserveSimulation(trials int, elapsed time.Duration, err error)
	ObservePValue(test string, pValue float64)
}
