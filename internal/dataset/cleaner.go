// Package dataset turns raw landing-page observations into the cleaned
// two-arm counts the hypothesis tests run on.
//
// Cleaning happens in two passes over the input, in order:
//   - rows whose served page does not match the assigned group are dropped
//   - repeated user ids are collapsed according to the DuplicatePolicy
//
// The input slice is never modified.
package dataset

import (
	"fmt"
	"time"

	"abtest/domain/experiment"
	apperrors "abtest/internal/errors"
)

// DuplicatePolicy defines which row survives when a user appears twice
type DuplicatePolicy string

const (
	// KeepFirst retains the earliest row in input order
	KeepFirst DuplicatePolicy = "keep_first"
	// KeepLast retains the latest row in input order
	KeepLast DuplicatePolicy = "keep_last"
)

// CleaningReport records what the cleaning passes removed
type CleaningReport struct {
	RawRows        int       `json:"raw_rows"`
	RawUniqueUsers int       `json:"raw_unique_users"`
	MismatchedRows int       `json:"mismatched_rows"`
	DuplicateRows  int       `json:"duplicate_rows"`
	MissingCountry int       `json:"missing_country,omitempty"`
	RetainedRows   int       `json:"retained_rows"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// Cleaned is a validated, deduplicated dataset with one row per user
type Cleaned struct {
	Observations []experiment.Observation `json:"-"`
	Counts       experiment.Counts        `json:"counts"`
	Report       CleaningReport           `json:"report"`
}

// PooledRate is the conversion rate of the cleaned dataset regardless of page
func (c *Cleaned) PooledRate() float64 {
	return c.Counts.PooledRate()
}

// Cleaner applies the validity filter and deduplication
type Cleaner struct {
	policy DuplicatePolicy
}

// NewCleaner creates a cleaner; an empty policy means KeepFirst
func NewCleaner(policy DuplicatePolicy) *Cleaner {
	if policy == "" {
		policy = KeepFirst
	}
	return &Cleaner{policy: policy}
}

// Clean runs both passes with the default KeepFirst policy
func Clean(observations []experiment.Observation) (*Cleaned, error) {
	return NewCleaner(KeepFirst).Clean(observations)
}

// Clean filters mismatched rows, collapses duplicate users and counts both arms
func (c *Cleaner) Clean(observations []experiment.Observation) (*Cleaned, error) {
	if len(observations) == 0 {
		return nil, apperrors.InsufficientData("no observations to clean")
	}
	if c.policy != KeepFirst && c.policy != KeepLast {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown duplicate policy %q", c.policy))
	}

	report := CleaningReport{RawRows: len(observations)}
	users := make(map[int64]struct{}, len(observations))
	for i, o := range observations {
		users[o.UserID] = struct{}{}
		if i == 0 || o.Timestamp.Before(report.FirstSeen) {
			report.FirstSeen = o.Timestamp
		}
		if o.Timestamp.After(report.LastSeen) {
			report.LastSeen = o.Timestamp
		}
	}
	report.RawUniqueUsers = len(users)

	aligned := make([]experiment.Observation, 0, len(observations))
	for _, o := range observations {
		if !o.Aligned() {
			report.MismatchedRows++
			continue
		}
		aligned = append(aligned, o)
	}

	kept := c.dedupe(aligned)
	report.DuplicateRows = len(aligned) - len(kept)

	return finish(kept, report)
}

func (c *Cleaner) dedupe(rows []experiment.Observation) []experiment.Observation {
	index := make(map[int64]int, len(rows))
	kept := make([]experiment.Observation, 0, len(rows))
	for _, o := range rows {
		if at, seen := index[o.UserID]; seen {
			if c.policy == KeepLast {
				kept[at] = o
			}
			continue
		}
		index[o.UserID] = len(kept)
		kept = append(kept, o)
	}
	return kept
}

// JoinCountries attaches each user's country. Users without an entry are
// dropped and counted in the report.
func JoinCountries(cleaned *Cleaned, countries map[int64]string) (*Cleaned, error) {
	if cleaned == nil {
		return nil, apperrors.InvalidInput("nothing to join: cleaned dataset is nil")
	}

	report := cleaned.Report
	joined := make([]experiment.Observation, 0, len(cleaned.Observations))
	for _, o := range cleaned.Observations {
		country, ok := countries[o.UserID]
		if !ok || country == "" {
			report.MissingCountry++
			continue
		}
		o.Country = country
		joined = append(joined, o)
	}

	return finish(joined, report)
}

func finish(rows []experiment.Observation, report CleaningReport) (*Cleaned, error) {
	var counts experiment.Counts
	for _, o := range rows {
		arm := &counts.Control
		if o.Group == experiment.GroupTreatment {
			arm = &counts.Treatment
		}
		arm.Size++
		if o.Converted {
			arm.Conversions++
		}
	}
	report.RetainedRows = len(rows)

	if err := counts.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.InsufficientData(err.Error()), "cleaned dataset cannot be tested")
	}

	return &Cleaned{Observations: rows, Counts: counts, Report: report}, nil
}
