package simulation

import (
	"math"

	"abtest/domain/experiment"
	"abtest/domain/verdict"
	apperrors "abtest/internal/errors"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// NullDistribution is the ordered sequence of simulated statistics, one per
// trial, in generation order. It is immutable once built.
type NullDistribution struct {
	values []float64
}

// NewNullDistribution copies values into a new distribution
func NewNullDistribution(values []float64) *NullDistribution {
	cp := make([]float64, len(values))
	copy(cp, values)
	return &NullDistribution{values: cp}
}

// Len returns the number of trials
func (d *NullDistribution) Len() int {
	if d == nil {
		return 0
	}
	return len(d.values)
}

// At returns the statistic of trial i
func (d *NullDistribution) At(i int) float64 {
	return d.values[i]
}

// Values returns a copy of the simulated statistics
func (d *NullDistribution) Values() []float64 {
	cp := make([]float64, len(d.values))
	copy(cp, d.values)
	return cp
}

// PValue is shorthand for EmpiricalPValue(d, observed, alternative)
func (d *NullDistribution) PValue(observed float64, alternative experiment.Alternative) (float64, error) {
	return EmpiricalPValue(d, observed, alternative)
}

// Summary describes the distribution's location, spread and tails
func (d *NullDistribution) Summary() (verdict.NullDistributionSummary, error) {
	if d.Len() == 0 {
		return verdict.NullDistributionSummary{}, ErrEmptyDistribution
	}

	data := stats.Float64Data(d.Values())
	summary := verdict.NullDistributionSummary{Trials: len(data)}

	var err error
	if summary.Mean, err = stats.Mean(data); err != nil {
		return summary, apperrors.Wrap(err, "mean of null distribution")
	}
	if len(data) > 1 {
		if summary.StdDev, err = stats.StandardDeviationSample(data); err != nil {
			return summary, apperrors.Wrap(err, "std-dev of null distribution")
		}
	}
	if len(data) > 3 && summary.StdDev > 0 {
		// shape against the normal approximation used by the z-test
		summary.Skewness = stat.Skew(data, nil)
		summary.ExcessKurtosis = stat.ExKurtosis(data, nil)
	}
	if summary.Min, err = stats.Min(data); err != nil {
		return summary, apperrors.Wrap(err, "min of null distribution")
	}
	if summary.Max, err = stats.Max(data); err != nil {
		return summary, apperrors.Wrap(err, "max of null distribution")
	}

	percentiles := []struct {
		p   float64
		dst *float64
	}{
		{2.5, &summary.Percentile2_5},
		{50, &summary.Median},
		{95, &summary.Percentile95},
		{97.5, &summary.Percentile97_5},
		{99, &summary.Percentile99},
	}
	for _, pc := range percentiles {
		v, err := stats.Percentile(data, pc.p)
		if err != nil {
			// stats.Percentile rejects tiny inputs; fall back to the extremes
			if pc.p < 50 {
				v = summary.Min
			} else {
				v = summary.Max
			}
		}
		*pc.dst = v
	}

	return summary, nil
}

// EmpiricalPValue returns the one-sided fraction of the null distribution at
// least as extreme as observed. Ties count toward the alternative: for
// greater it is the share of values >= observed, for less the share <=
// observed.
func EmpiricalPValue(dist *NullDistribution, observed float64, alternative experiment.Alternative) (float64, error) {
	if dist.Len() == 0 {
		return 0, ErrEmptyDistribution
	}
	if math.IsNaN(observed) {
		return 0, apperrors.InvalidInput("observed statistic is NaN")
	}

	var extreme int
	switch alternative {
	case experiment.AlternativeGreater:
		for _, v := range dist.values {
			if v >= observed {
				extreme++
			}
		}
	case experiment.AlternativeLess:
		for _, v := range dist.values {
			if v <= observed {
				extreme++
			}
		}
	default:
		return 0, apperrors.Wrapf(ErrInvalidAlternative, "alternative %q", alternative)
	}

	return float64(extreme) / float64(len(dist.values)), nil
}
