package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"abtest/domain/core"
	"abtest/domain/verdict"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7A80"))
	rejectStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E74C3C"))
	keepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#2CD7C7"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2C4A54"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// WriteJSON encodes the report as indented JSON
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText renders the report as terminal tables
func WriteText(w io.Writer, r *Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n%s\n\n",
		titleStyle.Render("Landing page A/B test"),
		mutedStyle.Render(fmt.Sprintf("run %s · %s · %d ms", r.RunID, r.StartedAt.Format("2006-01-02 15:04:05Z07:00"), r.RuntimeMs)))

	if r.Cleaning != nil {
		c := r.Cleaning
		rows := [][]string{
			{"raw rows", humanize.Comma(int64(c.RawRows))},
			{"unique users", humanize.Comma(int64(c.RawUniqueUsers))},
			{"page/group mismatches removed", humanize.Comma(int64(c.MismatchedRows))},
			{"duplicate users removed", humanize.Comma(int64(c.DuplicateRows))},
			{"retained", humanize.Comma(int64(c.RetainedRows))},
		}
		if c.MissingCountry > 0 {
			rows = append(rows, []string{"without country", humanize.Comma(int64(c.MissingCountry))})
		}
		if !c.FirstSeen.IsZero() {
			rows = append(rows, []string{"window", c.FirstSeen.Format("2006-01-02") + " to " + c.LastSeen.Format("2006-01-02")})
		}
		section(&b, "Dataset", newTable("", "").Rows(rows...))
	}

	arms := newTable("arm", "users", "conversions", "rate").
		Row("control (old page)", humanize.Comma(int64(r.Counts.Control.Size)),
			humanize.Comma(int64(r.Counts.Control.Conversions)), rate(r.Counts.Control.Rate())).
		Row("treatment (new page)", humanize.Comma(int64(r.Counts.Treatment.Size)),
			humanize.Comma(int64(r.Counts.Treatment.Conversions)), rate(r.Counts.Treatment.Rate())).
		Row("pooled", humanize.Comma(int64(r.Counts.Total())),
			humanize.Comma(int64(r.Counts.Control.Conversions+r.Counts.Treatment.Conversions)), rate(r.Counts.PooledRate()))
	section(&b, "Arms", arms)

	if d := r.Descriptives; d != nil && len(d.CountryConversionRate) > 0 {
		countries := newTable("country", "rate")
		for _, c := range d.Countries() {
			countries.Row(c, rate(d.CountryConversionRate[c]))
		}
		section(&b, "Conversion by country", countries)
	}

	sim := r.Simulation
	simRows := newTable("", "").Rows(
		[]string{"null rate (both arms)", rate(sim.NullP)},
		[]string{"observed p̂(new) − p̂(old)", fmt.Sprintf("%+.6f", sim.ObservedDifference)},
		[]string{"trials", humanize.Comma(int64(sim.Summary.Trials))},
		[]string{"seed", fmt.Sprintf("%d", sim.Seed)},
		[]string{"input fingerprint", core.Hash(sim.Fingerprint).Short()},
		[]string{"null mean / std-dev", fmt.Sprintf("%+.6f / %.6f", sim.Summary.Mean, sim.Summary.StdDev)},
		[]string{"null 2.5% / 97.5%", fmt.Sprintf("%+.6f / %+.6f", sim.Summary.Percentile2_5, sim.Summary.Percentile97_5)},
	)
	section(&b, "Simulated null distribution", simRows)

	tests := newTable("test", "alternative", "statistic", "p-value", "decision").
		Row(TestSimulation, string(sim.Alternative), fmt.Sprintf("%+.6f", sim.ObservedDifference),
			fmt.Sprintf("%.4f", sim.PValue), decision(sim.Verdict)).
		Row(TestZ, string(r.ZTest.Alternative), fmt.Sprintf("%+.4f", r.ZTest.Statistic),
			fmt.Sprintf("%.4f", r.ZTest.PValue), decision(r.ZTestVerdict))
	section(&b, fmt.Sprintf("Hypothesis tests (alpha %.2f)", r.Options.Alpha), tests)

	agreement := keepStyle.Render("agree")
	if !r.CrossCheck.Agrees {
		agreement = rejectStyle.Render("disagree")
	}
	fmt.Fprintf(&b, "cross-check: |Δp| = %.4f, tolerance %.2f, %s\n\n", r.CrossCheck.Delta, r.CrossCheck.Tolerance, agreement)

	for _, m := range r.Models {
		coefs := newTable("term", "coef", "std err", "z", "p>|z|", "95% CI")
		for _, c := range m.Result.Coefficients {
			coefs.Row(c.Name,
				fmt.Sprintf("%+.4f", c.Estimate),
				fmt.Sprintf("%.4f", c.StdErr),
				fmt.Sprintf("%+.3f", c.Z),
				fmt.Sprintf("%.4f", c.PValue),
				fmt.Sprintf("[%+.4f, %+.4f]", c.CILower, c.CIUpper))
		}
		title := fmt.Sprintf("Logit %s (n=%s, pseudo-R² %.2e, LLR p %.4f)",
			m.Formula, humanize.Comma(int64(m.Result.Observations)), m.Result.PseudoR2, m.Result.LLRPValue)
		section(&b, title, coefs)
		for _, v := range m.Verdicts {
			fmt.Fprintf(&b, "  %s: %s\n", v.Test, decision(v))
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func newTable(headers ...string) *table.Table {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle })
	if strings.Join(headers, "") != "" {
		t.Headers(headers...)
	}
	return t
}

func section(b *strings.Builder, title string, t *table.Table) {
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(t.Render())
	b.WriteString("\n\n")
}

func rate(p float64) string {
	return fmt.Sprintf("%.4f%%", 100*p)
}

func decision(v verdict.Verdict) string {
	if v.Decision == verdict.DecisionRejectNull {
		return rejectStyle.Render("reject H0")
	}
	return keepStyle.Render("fail to reject H0")
}
