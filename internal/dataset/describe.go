package dataset

import (
	"sort"

	"abtest/domain/experiment"
	apperrors "abtest/internal/errors"

	"github.com/montanaflynn/stats"
)

// Descriptives are the conditional conversion rates of a cleaned dataset
type Descriptives struct {
	Users                   int                `json:"users"`
	ConversionRate          float64            `json:"conversion_rate"`
	ControlConversionRate   float64            `json:"control_conversion_rate"`
	TreatmentConversionRate float64            `json:"treatment_conversion_rate"`
	NewPageProbability      float64            `json:"new_page_probability"`
	CountryConversionRate   map[string]float64 `json:"country_conversion_rate,omitempty"`
}

// Countries lists the countries present in the breakdown, sorted
func (d Descriptives) Countries() []string {
	out := make([]string, 0, len(d.CountryConversionRate))
	for c := range d.CountryConversionRate {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Describe computes overall and per-group conversion plus the share of users
// who received the new page. A per-country breakdown is included when the
// rows carry countries.
func Describe(cleaned *Cleaned) (Descriptives, error) {
	if cleaned == nil || len(cleaned.Observations) == 0 {
		return Descriptives{}, apperrors.InsufficientData("no observations to describe")
	}

	all := make(stats.Float64Data, 0, len(cleaned.Observations))
	byGroup := map[experiment.Group]stats.Float64Data{}
	byCountry := map[string]stats.Float64Data{}
	newPage := make(stats.Float64Data, 0, len(cleaned.Observations))

	for _, o := range cleaned.Observations {
		v := indicator(o.Converted)
		all = append(all, v)
		byGroup[o.Group] = append(byGroup[o.Group], v)
		newPage = append(newPage, indicator(o.LandingPage == experiment.PageNew))
		if o.Country != "" {
			byCountry[o.Country] = append(byCountry[o.Country], v)
		}
	}

	d := Descriptives{Users: len(all)}
	var err error
	if d.ConversionRate, err = all.Mean(); err != nil {
		return d, apperrors.Wrap(err, "overall conversion")
	}
	if d.NewPageProbability, err = newPage.Mean(); err != nil {
		return d, apperrors.Wrap(err, "new page probability")
	}
	// an empty arm is impossible after Clean, but Mean on it would error
	if rows := byGroup[experiment.GroupControl]; len(rows) > 0 {
		d.ControlConversionRate, _ = rows.Mean()
	}
	if rows := byGroup[experiment.GroupTreatment]; len(rows) > 0 {
		d.TreatmentConversionRate, _ = rows.Mean()
	}

	if len(byCountry) > 0 {
		d.CountryConversionRate = make(map[string]float64, len(byCountry))
		for country, rows := range byCountry {
			d.CountryConversionRate[country], _ = rows.Mean()
		}
	}

	return d, nil
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
