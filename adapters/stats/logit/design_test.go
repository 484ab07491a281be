package logit

import (
	"testing"

	apperrors "abtest/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDesignBuilder_CategoricalDropsReference(t *testing.T) {
	countries := []string{"US", "UK", "CA", "US", "CA"}

	design, err := NewDesign(len(countries)).
		Intercept().
		Categorical("country", func(i int) string { return countries[i] }, "").
		Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"intercept", "UK", "US"}, design.Names())
	assert.True(t, design.HasIntercept())

	rows, cols := design.Dims()
	assert.Equal(t, 5, rows)
	assert.Equal(t, 3, cols)

	m := design.Matrix()
	wantUS := []float64{1, 0, 0, 1, 0}
	wantUK := []float64{0, 1, 0, 0, 0}
	for i := 0; i < rows; i++ {
		assert.Equal(t, 1.0, m.At(i, 0))
		assert.Equal(t, wantUK[i], m.At(i, 1), "row %d UK", i)
		assert.Equal(t, wantUS[i], m.At(i, 2), "row %d US", i)
	}
}

func TestDesignBuilder_ExplicitReference(t *testing.T) {
	countries := []string{"US", "UK", "CA"}
	design, err := NewDesign(3).
		Categorical("country", func(i int) string { return countries[i] }, "US").
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"CA", "UK"}, design.Names())
	assert.False(t, design.HasIntercept())
}

func TestDesignBuilder_Errors(t *testing.T) {
	_, err := NewDesign(0).Intercept().Build()
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))

	_, err = NewDesign(3).Build()
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))

	_, err = NewDesign(2).
		Categorical("country", func(int) string { return "UK" }, "FR").
		Build()
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))

	_, err = NewDesign(2).
		Indicator("x", func(int) bool { return true }).
		Indicator("x", func(int) bool { return false }).
		Build()
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}
