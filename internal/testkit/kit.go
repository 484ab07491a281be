package testkit

import (
	"math/rand/v2"
	"sort"
	"time"

	"abtest/domain/experiment"
	"abtest/internal/errors"
)

// ABGeneratorConfig configures the synthetic landing-page experiment
type ABGeneratorConfig struct {
	Users         int                `json:"users"`
	ControlRate   float64            `json:"control_rate"`
	TreatmentRate float64            `json:"treatment_rate"`
	MismatchRate  float64            `json:"mismatch_rate"`  // rows served the other arm's page
	DuplicateRate float64            `json:"duplicate_rate"` // users logged a second time
	Countries     map[string]float64 `json:"countries"`      // sampling weight per country
	CountryLift   map[string]float64 `json:"country_lift"`   // additive conversion shift
	StartDate     time.Time          `json:"start_date"`
	EndDate       time.Time          `json:"end_date"`
	Seed          uint64             `json:"seed"`
}

// DefaultABConfig mirrors the e-commerce landing page experiment: a new page
// that converts marginally worse than the old one.
func DefaultABConfig() ABGeneratorConfig {
	return ABGeneratorConfig{
		Users:         20000,
		ControlRate:   0.1204,
		TreatmentRate: 0.1188,
		MismatchRate:  0.013,
		DuplicateRate: 0.0005,
		Countries:     map[string]float64{"US": 0.70, "UK": 0.25, "CA": 0.05},
		CountryLift:   map[string]float64{"UK": 0.0025, "CA": -0.0035},
		StartDate:     time.Date(2017, 1, 2, 13, 42, 5, 0, time.UTC),
		EndDate:       time.Date(2017, 1, 24, 13, 41, 54, 0, time.UTC),
		Seed:          42,
	}
}

// ABDataset is one generated experiment log plus the per-user country table
type ABDataset struct {
	Observations []experiment.Observation
	Countries    map[int64]string
}

// ABDataGenerator produces reproducible experiment logs
type ABDataGenerator struct {
	config    ABGeneratorConfig
	rng       *rand.Rand
	countries []string
	weights   []float64
}

// NewABDataGenerator validates the config and seeds the generator
func NewABDataGenerator(config ABGeneratorConfig) (*ABDataGenerator, error) {
	if config.Users <= 0 {
		return nil, errors.InvalidInput("generator needs at least one user")
	}
	for _, rate := range []float64{config.ControlRate, config.TreatmentRate, config.MismatchRate, config.DuplicateRate} {
		if rate < 0 || rate > 1 {
			return nil, errors.Newf(errors.CodeInvalidProbability, "generator rate %v outside [0, 1]", rate)
		}
	}
	if !config.EndDate.After(config.StartDate) {
		return nil, errors.InvalidInput("generator end date must follow start date")
	}

	g := &ABDataGenerator{
		config: config,
		rng:    rand.New(rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15)),
	}
	// map iteration order is random; sort so the seed alone fixes the output
	for c := range config.Countries {
		g.countries = append(g.countries, c)
	}
	sort.Strings(g.countries)
	total := 0.0
	for _, c := range g.countries {
		total += config.Countries[c]
		g.weights = append(g.weights, total)
	}
	return g, nil
}

// Generate produces the observation log in timestamp order
func (g *ABDataGenerator) Generate() ABDataset {
	ds := ABDataset{
		Observations: make([]experiment.Observation, 0, g.config.Users),
		Countries:    make(map[int64]string, g.config.Users),
	}

	const firstUserID = 630000
	for i := 0; i < g.config.Users; i++ {
		userID := int64(firstUserID + i)
		country := g.pickCountry()
		if country != "" {
			ds.Countries[userID] = country
		}

		o := g.visit(userID, country)
		if g.rng.Float64() < g.config.MismatchRate {
			o.LandingPage = flip(o.LandingPage)
		}
		ds.Observations = append(ds.Observations, o)

		if g.rng.Float64() < g.config.DuplicateRate {
			ds.Observations = append(ds.Observations, g.visit(userID, country))
		}
	}

	sort.SliceStable(ds.Observations, func(a, b int) bool {
		return ds.Observations[a].Timestamp.Before(ds.Observations[b].Timestamp)
	})
	return ds
}

func (g *ABDataGenerator) visit(userID int64, country string) experiment.Observation {
	group := experiment.GroupControl
	rate := g.config.ControlRate
	if g.rng.IntN(2) == 1 {
		group = experiment.GroupTreatment
		rate = g.config.TreatmentRate
	}
	rate += g.config.CountryLift[country]

	return experiment.Observation{
		UserID:      userID,
		Timestamp:   g.randomTime(),
		Group:       group,
		LandingPage: group.ExpectedPage(),
		Converted:   g.rng.Float64() < rate,
	}
}

func (g *ABDataGenerator) pickCountry() string {
	if len(g.weights) == 0 {
		return ""
	}
	u := g.rng.Float64() * g.weights[len(g.weights)-1]
	for i, w := range g.weights {
		if u < w {
			return g.countries[i]
		}
	}
	return g.countries[len(g.countries)-1]
}

func (g *ABDataGenerator) randomTime() time.Time {
	span := g.config.EndDate.Sub(g.config.StartDate)
	return g.config.StartDate.Add(time.Duration(g.rng.Int64N(int64(span))))
}

func flip(p experiment.Page) experiment.Page {
	if p == experiment.PageNew {
		return experiment.PageOld
	}
	return experiment.PageNew
}
