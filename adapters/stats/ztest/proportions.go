package ztest

import (
	"fmt"
	"math"

	"abtest/domain/experiment"
	apperrors "abtest/internal/errors"
	"abtest/ports"

	"gonum.org/v1/gonum/stat/distuv"
)

// ProportionsZTest is the pooled two-sample z-test for proportions.
// The statistic is (p̂0 − p̂1) / sqrt(p̄(1−p̄)(1/n0 + 1/n1)) where p̄ is the
// pooled proportion; the hypothesised difference is zero.
type ProportionsZTest struct{}

// NewProportionsZTest creates a new two-proportion z-test
func NewProportionsZTest() *ProportionsZTest {
	return &ProportionsZTest{}
}

// Name returns the test name
func (z *ProportionsZTest) Name() string {
	return "two_proportion_ztest"
}

// Test compares sample 0 against sample 1
func (z *ProportionsZTest) Test(successes, nobs [2]int, alternative experiment.Alternative) (ports.ProportionTestResult, error) {
	for i := 0; i < 2; i++ {
		if nobs[i] <= 0 {
			return ports.ProportionTestResult{}, apperrors.InvalidInput(fmt.Sprintf("sample %d has %d observations", i, nobs[i]))
		}
		if successes[i] < 0 || successes[i] > nobs[i] {
			return ports.ProportionTestResult{}, apperrors.InvalidInput(fmt.Sprintf("sample %d has %d successes out of %d", i, successes[i], nobs[i]))
		}
	}

	n0, n1 := float64(nobs[0]), float64(nobs[1])
	p0 := float64(successes[0]) / n0
	p1 := float64(successes[1]) / n1
	pooled := float64(successes[0]+successes[1]) / (n0 + n1)

	stdErr := math.Sqrt(pooled * (1 - pooled) * (1/n0 + 1/n1))
	if stdErr == 0 {
		return ports.ProportionTestResult{}, apperrors.New(apperrors.CodeDegenerateVariance,
			"pooled proportion is 0 or 1, z statistic is undefined")
	}

	diff := p0 - p1
	stat := diff / stdErr

	var pValue float64
	switch alternative {
	case experiment.AlternativeGreater:
		pValue = distuv.UnitNormal.Survival(stat)
	case experiment.AlternativeLess:
		pValue = distuv.UnitNormal.CDF(stat)
	case experiment.AlternativeTwoSided:
		pValue = 2 * distuv.UnitNormal.Survival(math.Abs(stat))
	default:
		return ports.ProportionTestResult{}, apperrors.New(apperrors.CodeInvalidAlternative,
			fmt.Sprintf("unknown alternative %q", alternative))
	}

	return ports.ProportionTestResult{
		Statistic:   stat,
		PValue:      math.Min(pValue, 1),
		Alternative: alternative,
		Difference:  diff,
		StdErr:      stdErr,
	}, nil
}

// TestCounts runs the test as treatment versus control, so a positive
// statistic means the treatment converts better.
func (z *ProportionsZTest) TestCounts(counts experiment.Counts, alternative experiment.Alternative) (ports.ProportionTestResult, error) {
	return z.Test(
		[2]int{counts.Treatment.Conversions, counts.Control.Conversions},
		[2]int{counts.Treatment.Size, counts.Control.Size},
		alternative,
	)
}
