package experiment

import (
	"fmt"
	"time"
)

// Group is the experiment arm an observation was assigned to
type Group string

const (
	GroupControl   Group = "control"
	GroupTreatment Group = "treatment"
)

// Valid reports whether g is one of the two known arms
func (g Group) Valid() bool {
	return g == GroupControl || g == GroupTreatment
}

// Page is the landing page variant actually served
type Page string

const (
	PageOld Page = "old_page"
	PageNew Page = "new_page"
)

// ExpectedPage returns the page an arm is supposed to receive
func (g Group) ExpectedPage() Page {
	if g == GroupTreatment {
		return PageNew
	}
	return PageOld
}

// Observation is one logged visit: a binary outcome in exactly one arm
type Observation struct {
	UserID      int64     `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	Group       Group     `json:"group"`
	LandingPage Page      `json:"landing_page"`
	Converted   bool      `json:"converted"`
	Country     string    `json:"country,omitempty"`
}

// Aligned reports whether the served page matches the assigned arm
func (o Observation) Aligned() bool {
	return o.Group.Valid() && o.LandingPage == o.Group.ExpectedPage()
}

// SampleSpec holds per-arm simulation parameters. The null success
// probability is deliberately not part of it: both arms of a null
// simulation draw from one shared rate passed alongside the specs.
type SampleSpec struct {
	Group Group `json:"group"`
	Size  int   `json:"size"`
}

// ArmCounts is the observed size and success count of one arm
type ArmCounts struct {
	Size        int `json:"size"`
	Conversions int `json:"conversions"`
}

// Rate returns the observed conversion proportion of the arm
func (a ArmCounts) Rate() float64 {
	if a.Size == 0 {
		return 0
	}
	return float64(a.Conversions) / float64(a.Size)
}

// Counts summarises a cleaned two-arm dataset
type Counts struct {
	Control   ArmCounts `json:"control"`
	Treatment ArmCounts `json:"treatment"`
}

// Total returns the number of observations across both arms
func (c Counts) Total() int {
	return c.Control.Size + c.Treatment.Size
}

// PooledRate is the conversion rate ignoring group membership
func (c Counts) PooledRate() float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return float64(c.Control.Conversions+c.Treatment.Conversions) / float64(total)
}

// ObservedDifference is p̂(treatment) − p̂(control)
func (c Counts) ObservedDifference() float64 {
	return c.Treatment.Rate() - c.Control.Rate()
}

// SampleSpecs returns the treatment and control specs for a null simulation
func (c Counts) SampleSpecs() (treatment, control SampleSpec) {
	return SampleSpec{Group: GroupTreatment, Size: c.Treatment.Size},
		SampleSpec{Group: GroupControl, Size: c.Control.Size}
}

// Validate checks that both arms are non-empty and conversions fit the sizes
func (c Counts) Validate() error {
	for _, arm := range []struct {
		name string
		a    ArmCounts
	}{{"control", c.Control}, {"treatment", c.Treatment}} {
		if arm.a.Size <= 0 {
			return fmt.Errorf("%s arm size must be positive, got %d", arm.name, arm.a.Size)
		}
		if arm.a.Conversions < 0 || arm.a.Conversions > arm.a.Size {
			return fmt.Errorf("%s arm conversions %d outside [0, %d]", arm.name, arm.a.Conversions, arm.a.Size)
		}
	}
	return nil
}

// Alternative is the direction of the alternative hypothesis
type Alternative string

const (
	// AlternativeGreater: the first sample's proportion exceeds the second's
	AlternativeGreater Alternative = "greater"
	// AlternativeLess: the first sample's proportion is below the second's
	AlternativeLess Alternative = "less"
	// AlternativeTwoSided is only meaningful for analytic tests
	AlternativeTwoSided Alternative = "two-sided"
)

// ParseAlternative accepts the canonical names plus the statsmodels aliases
// "larger" and "smaller".
func ParseAlternative(s string) (Alternative, error) {
	switch s {
	case "greater", "larger":
		return AlternativeGreater, nil
	case "less", "smaller":
		return AlternativeLess, nil
	case "two-sided", "two_sided", "two":
		return AlternativeTwoSided, nil
	}
	return "", fmt.Errorf("unknown alternative %q", s)
}
