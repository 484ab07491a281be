package dataset

import (
	"testing"
	"time"

	"abtest/domain/experiment"
	apperrors "abtest/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2017, 1, 2, 13, 42, 5, 0, time.UTC)

func obs(id int64, minutes int, g experiment.Group, p experiment.Page, converted bool) experiment.Observation {
	return experiment.Observation{
		UserID:      id,
		Timestamp:   t0.Add(time.Duration(minutes) * time.Minute),
		Group:       g,
		LandingPage: p,
		Converted:   converted,
	}
}

func fixture() []experiment.Observation {
	return []experiment.Observation{
		obs(1, 5, experiment.GroupControl, experiment.PageOld, false),
		obs(2, 1, experiment.GroupControl, experiment.PageOld, true),
		obs(3, 2, experiment.GroupTreatment, experiment.PageNew, false),
		obs(4, 3, experiment.GroupTreatment, experiment.PageNew, true),
		obs(5, 4, experiment.GroupTreatment, experiment.PageOld, true), // mismatch
		obs(6, 9, experiment.GroupControl, experiment.PageNew, false),  // mismatch
		obs(3, 7, experiment.GroupTreatment, experiment.PageNew, true), // duplicate of 3
		obs(7, 0, experiment.GroupTreatment, experiment.PageNew, false),
	}
}

func TestClean_FiltersAndDeduplicates(t *testing.T) {
	cleaned, err := Clean(fixture())
	require.NoError(t, err)

	r := cleaned.Report
	assert.Equal(t, 8, r.RawRows)
	assert.Equal(t, 7, r.RawUniqueUsers)
	assert.Equal(t, 2, r.MismatchedRows)
	assert.Equal(t, 1, r.DuplicateRows)
	assert.Equal(t, 5, r.RetainedRows)
	assert.Equal(t, t0, r.FirstSeen)
	assert.Equal(t, t0.Add(9*time.Minute), r.LastSeen)

	assert.Equal(t, experiment.ArmCounts{Size: 2, Conversions: 1}, cleaned.Counts.Control)
	assert.Equal(t, experiment.ArmCounts{Size: 3, Conversions: 1}, cleaned.Counts.Treatment)
	assert.InDelta(t, 2.0/5.0, cleaned.PooledRate(), 1e-12)

	// first occurrence of user 3 wins: not converted
	for _, o := range cleaned.Observations {
		if o.UserID == 3 {
			assert.False(t, o.Converted)
		}
	}
}

func TestClean_KeepLastPolicy(t *testing.T) {
	cleaned, err := NewCleaner(KeepLast).Clean(fixture())
	require.NoError(t, err)
	assert.Equal(t, experiment.ArmCounts{Size: 3, Conversions: 2}, cleaned.Counts.Treatment)
}

func TestClean_DoesNotModifyInput(t *testing.T) {
	input := fixture()
	before := append([]experiment.Observation(nil), input...)
	_, err := Clean(input)
	require.NoError(t, err)
	assert.Equal(t, before, input)
}

func TestClean_Errors(t *testing.T) {
	_, err := Clean(nil)
	assert.Equal(t, apperrors.CodeInsufficientData, apperrors.GetCode(err))

	onlyControl := []experiment.Observation{
		obs(1, 0, experiment.GroupControl, experiment.PageOld, true),
		obs(2, 0, experiment.GroupTreatment, experiment.PageOld, true),
	}
	_, err = Clean(onlyControl)
	assert.Equal(t, apperrors.CodeInsufficientData, apperrors.GetCode(err))

	_, err = NewCleaner("keep_random").Clean(fixture())
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}

func TestJoinCountries(t *testing.T) {
	cleaned, err := Clean(fixture())
	require.NoError(t, err)

	joined, err := JoinCountries(cleaned, map[int64]string{
		1: "US", 2: "UK", 3: "CA", 4: "US",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, joined.Report.MissingCountry)
	assert.Equal(t, 4, joined.Report.RetainedRows)
	assert.Equal(t, 2, joined.Counts.Treatment.Size)
	for _, o := range joined.Observations {
		assert.NotEmpty(t, o.Country)
	}
	// the source dataset is untouched
	assert.Empty(t, cleaned.Observations[0].Country)
	assert.Equal(t, 5, cleaned.Report.RetainedRows)
}

func TestJoinCountries_LosingAnArm(t *testing.T) {
	cleaned, err := Clean(fixture())
	require.NoError(t, err)

	_, err = JoinCountries(cleaned, map[int64]string{1: "US", 2: "UK"})
	assert.Equal(t, apperrors.CodeInsufficientData, apperrors.GetCode(err))

	_, err = JoinCountries(nil, nil)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}

func TestDescribe(t *testing.T) {
	cleaned, err := Clean(fixture())
	require.NoError(t, err)

	d, err := Describe(cleaned)
	require.NoError(t, err)
	assert.Equal(t, 5, d.Users)
	assert.InDelta(t, 0.4, d.ConversionRate, 1e-12)
	assert.InDelta(t, 0.5, d.ControlConversionRate, 1e-12)
	assert.InDelta(t, 1.0/3.0, d.TreatmentConversionRate, 1e-12)
	assert.InDelta(t, 0.6, d.NewPageProbability, 1e-12)
	assert.Nil(t, d.CountryConversionRate)

	joined, err := JoinCountries(cleaned, map[int64]string{1: "US", 2: "UK", 3: "US", 4: "US", 7: "UK"})
	require.NoError(t, err)
	d, err = Describe(joined)
	require.NoError(t, err)
	assert.Equal(t, []string{"UK", "US"}, d.Countries())
	assert.InDelta(t, 0.5, d.CountryConversionRate["UK"], 1e-12)
	assert.InDelta(t, 1.0/3.0, d.CountryConversionRate["US"], 1e-12)

	_, err = Describe(nil)
	assert.Equal(t, apperrors.CodeInsufficientData, apperrors.GetCode(err))
}
