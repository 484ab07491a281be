package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullDistribution_IsImmutable(t *testing.T) {
	src := []float64{0.1, 0.2, 0.3}
	dist := NewNullDistribution(src)

	src[0] = 99
	assert.Equal(t, 0.1, dist.At(0))

	values := dist.Values()
	values[1] = 99
	assert.Equal(t, 0.2, dist.At(1))
}

func TestNullDistribution_Summary(t *testing.T) {
	values := make([]float64, 200)
	for i := range values {
		values[i] = float64(i-100) / 1000
	}
	dist := NewNullDistribution(values)

	summary, err := dist.Summary()
	require.NoError(t, err)

	assert.Equal(t, 200, summary.Trials)
	assert.InDelta(t, -0.0005, summary.Mean, 1e-12)
	assert.Equal(t, -0.1, summary.Min)
	assert.Equal(t, 0.099, summary.Max)
	assert.Less(t, summary.Percentile2_5, summary.Median)
	assert.Less(t, summary.Median, summary.Percentile95)
	assert.LessOrEqual(t, summary.Percentile95, summary.Percentile97_5)
	assert.LessOrEqual(t, summary.Percentile97_5, summary.Percentile99)
	assert.Greater(t, summary.StdDev, 0.0)
	assert.InDelta(t, 0, summary.Skewness, 1e-9, "evenly spaced values are symmetric")
	assert.Less(t, summary.ExcessKurtosis, 0.0, "a uniform grid is platykurtic")
}

func TestNullDistribution_SummarySingleValue(t *testing.T) {
	summary, err := NewNullDistribution([]float64{0.25}).Summary()
	require.NoError(t, err)
	assert.Equal(t, 0.25, summary.Median)
	assert.Equal(t, 0.0, summary.StdDev)
}

func TestNullDistribution_SummaryEmpty(t *testing.T) {
	_, err := NewNullDistribution(nil).Summary()
	assert.ErrorIs(t, err, ErrEmptyDistribution)
}
