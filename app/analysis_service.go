package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"abtest/adapters/simulation"
	"abtest/adapters/stats/logit"
	"abtest/domain/core"
	"abtest/domain/experiment"
	"abtest/domain/verdict"
	"abtest/internal/dataset"
	"abtest/internal/errors"
	"abtest/ports"
)

// NullDistributionBuilder produces the simulated sampling distribution of
// p̂(new) − p̂(old) under a shared null rate
type NullDistributionBuilder interface {
	BuildNullDistribution(ctx context.Context, newArm, oldArm experiment.SampleSpec, nullP float64, trials int, seed uint64) (*simulation.NullDistribution, error)
}

// RegressionFitter fits a binary-outcome model
type RegressionFitter interface {
	Fit(ctx context.Context, design *logit.Design, y []bool) (*logit.Result, error)
}

// Options are the per-run analysis parameters
type Options struct {
	Trials              int                     `json:"trials"`
	Seed                uint64                  `json:"seed"`
	Alpha               float64                 `json:"alpha"`
	Alternative         experiment.Alternative  `json:"alternative"`
	CrossCheckTolerance float64                 `json:"cross_check_tolerance"`
	DuplicatePolicy     dataset.DuplicatePolicy `json:"duplicate_policy"`
	ReferenceCountry    string                  `json:"reference_country,omitempty"`
}

// DefaultOptions returns a 10,000-trial one-sided test at the 5% level
func DefaultOptions() Options {
	return Options{
		Trials:              simulation.DefaultTrials,
		Seed:                42,
		Alpha:               0.05,
		Alternative:         experiment.AlternativeGreater,
		CrossCheckTolerance: 0.05,
		DuplicatePolicy:     dataset.KeepFirst,
		ReferenceCountry:    "CA",
	}
}

func (o Options) validate() error {
	if o.Alpha <= 0 || o.Alpha >= 1 {
		return errors.InvalidInput(fmt.Sprintf("alpha must lie in (0, 1), got %v", o.Alpha))
	}
	if o.Alternative != experiment.AlternativeGreater && o.Alternative != experiment.AlternativeLess {
		return errors.Newf(errors.CodeInvalidAlternative,
			"simulation supports %q or %q, got %q", experiment.AlternativeGreater, experiment.AlternativeLess, o.Alternative)
	}
	if o.CrossCheckTolerance < 0 {
		return errors.InvalidInput("cross-check tolerance must be non-negative")
	}
	return nil
}

// SimulationReport is the simulated half of a run
type SimulationReport struct {
	NullP              float64                         `json:"null_p"`
	Treatment          experiment.SampleSpec           `json:"treatment"`
	Control            experiment.SampleSpec           `json:"control"`
	ObservedDifference float64                         `json:"observed_difference"`
	Alternative        experiment.Alternative          `json:"alternative"`
	Seed               uint64                          `json:"seed"`
	Fingerprint        core.InputFingerprint           `json:"fingerprint"`
	Summary            verdict.NullDistributionSummary `json:"summary"`
	PValue             float64                         `json:"p_value"`
	Verdict            verdict.Verdict                 `json:"verdict"`
}

// ModelReport is one fitted logistic regression and its per-covariate decisions
type ModelReport struct {
	Name     string            `json:"name"`
	Formula  string            `json:"formula"`
	Result   *logit.Result     `json:"result"`
	Verdicts []verdict.Verdict `json:"verdicts"`
}

// Report is the complete output of one analysis run
type Report struct {
	RunID        core.RunID                 `json:"run_id"`
	StartedAt    time.Time                  `json:"started_at"`
	RuntimeMs    int64                      `json:"runtime_ms"`
	Options      Options                    `json:"options"`
	Cleaning     *dataset.CleaningReport    `json:"cleaning,omitempty"`
	Descriptives *dataset.Descriptives      `json:"descriptives,omitempty"`
	Counts       experiment.Counts          `json:"counts"`
	Simulation   SimulationReport           `json:"simulation"`
	ZTest        ports.ProportionTestResult `json:"z_test"`
	ZTestVerdict verdict.Verdict            `json:"z_test_verdict"`
	CrossCheck   verdict.CrossCheck         `json:"cross_check"`
	Models       []ModelReport              `json:"models,omitempty"`
}

// Model returns the named model report
func (r *Report) Model(name string) (ModelReport, bool) {
	for _, m := range r.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelReport{}, false
}

// Model names
const (
	ModelPage        = "page"
	ModelCountry     = "country"
	ModelPageCountry = "page_country"
)

// Test names used in verdicts and metrics
const (
	TestSimulation = "simulation"
	TestZ          = "two_proportion_ztest"
)

// ABTestService runs the landing-page hypothesis tests
type ABTestService struct {
	simulator NullDistributionBuilder
	ztest     ports.ProportionTestPort
	fitter    RegressionFitter
	recorder  ports.SimulationRecorder
	logger    *slog.Logger
}

// ServiceOption configures an ABTestService
type ServiceOption func(*ABTestService)

// WithRecorder reports p-values to a telemetry sink
func WithRecorder(r ports.SimulationRecorder) ServiceOption {
	return func(s *ABTestService) {
		s.recorder = r
	}
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *ABTestService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewABTestService creates the analysis service
func NewABTestService(simulator NullDistributionBuilder, ztest ports.ProportionTestPort, fitter RegressionFitter, opts ...ServiceOption) *ABTestService {
	s := &ABTestService{
		simulator: simulator,
		ztest:     ztest,
		fitter:    fitter,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "ABTestService")
	return s
}

// Run cleans the observation log, tests the two arms by simulation and by
// z-test, and fits the page and country regressions. countries may be nil,
// in which case only the page model is fitted.
func (s *ABTestService) Run(ctx context.Context, observations []experiment.Observation, countries map[int64]string, opts Options) (*Report, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	report := s.newReport(opts)
	log := s.logger.With("run_id", report.RunID.String())

	cleaned, err := dataset.NewCleaner(opts.DuplicatePolicy).Clean(observations)
	if err != nil {
		return nil, errors.Wrap(err, "clean observations")
	}
	report.Cleaning = &cleaned.Report
	log.Info("dataset cleaned",
		"raw_rows", cleaned.Report.RawRows,
		"mismatched", cleaned.Report.MismatchedRows,
		"duplicates", cleaned.Report.DuplicateRows,
		"retained", cleaned.Report.RetainedRows)

	if err := s.runTests(ctx, report, cleaned.Counts, opts); err != nil {
		return nil, err
	}

	pageModel, err := s.fitPageModel(ctx, cleaned, opts)
	if err != nil {
		return nil, err
	}
	report.Models = append(report.Models, pageModel)

	desc, err := dataset.Describe(cleaned)
	if err != nil {
		return nil, err
	}
	report.Descriptives = &desc

	if len(countries) > 0 {
		joined, err := dataset.JoinCountries(cleaned, countries)
		if err != nil {
			return nil, errors.Wrap(err, "join countries")
		}
		if joined.Report.MissingCountry > 0 {
			log.Warn("users without a country were left out of the country models", "count", joined.Report.MissingCountry)
		}
		report.Cleaning.MissingCountry = joined.Report.MissingCountry

		byCountry, err := dataset.Describe(joined)
		if err != nil {
			return nil, err
		}
		report.Descriptives.CountryConversionRate = byCountry.CountryConversionRate

		countryModels, err := s.fitCountryModels(ctx, joined, opts)
		if err != nil {
			return nil, err
		}
		report.Models = append(report.Models, countryModels...)
	}

	report.RuntimeMs = time.Since(report.StartedAt).Milliseconds()
	log.Info("analysis complete",
		"simulated_p", report.Simulation.PValue,
		"ztest_p", report.ZTest.PValue,
		"decision", report.Simulation.Verdict.Decision,
		"runtime_ms", report.RuntimeMs)
	return report, nil
}

// SimulateCounts runs the simulation and z-test from per-arm counts alone
func (s *ABTestService) SimulateCounts(ctx context.Context, counts experiment.Counts, opts Options) (*Report, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := counts.Validate(); err != nil {
		return nil, errors.InvalidInput(err.Error())
	}

	report := s.newReport(opts)
	if err := s.runTests(ctx, report, counts, opts); err != nil {
		return nil, err
	}
	report.RuntimeMs = time.Since(report.StartedAt).Milliseconds()
	s.logger.Info("simulation complete",
		"run_id", report.RunID.String(),
		"simulated_p", report.Simulation.PValue,
		"ztest_p", report.ZTest.PValue)
	return report, nil
}

func (s *ABTestService) newReport(opts Options) *Report {
	return &Report{
		RunID:     core.NewRunID(),
		StartedAt: time.Now().UTC(),
		Options:   opts,
	}
}

// runTests fills the simulation, z-test and cross-check sections
func (s *ABTestService) runTests(ctx context.Context, report *Report, counts experiment.Counts, opts Options) error {
	report.Counts = counts

	treatment, control := counts.SampleSpecs()
	nullP := counts.PooledRate()
	observed := counts.ObservedDifference()

	dist, err := s.simulator.BuildNullDistribution(ctx, treatment, control, nullP, opts.Trials, opts.Seed)
	if err != nil {
		return errors.Wrap(err, "build null distribution")
	}
	pSim, err := simulation.EmpiricalPValue(dist, observed, opts.Alternative)
	if err != nil {
		return errors.Wrap(err, "empirical p-value")
	}
	summary, err := dist.Summary()
	if err != nil {
		return errors.Wrap(err, "summarise null distribution")
	}

	report.Simulation = SimulationReport{
		NullP:              nullP,
		Treatment:          treatment,
		Control:            control,
		ObservedDifference: observed,
		Alternative:        opts.Alternative,
		Seed:               opts.Seed,
		Fingerprint: core.ComputeInputFingerprint(map[string]interface{}{
			"n_new":  treatment.Size,
			"n_old":  control.Size,
			"null_p": nullP,
			"trials": opts.Trials,
			"seed":   opts.Seed,
		}),
		Summary: summary,
		PValue:  pSim,
		Verdict: newVerdict(TestSimulation, pSim, opts.Alpha),
	}

	z, err := s.ztest.Test(
		[2]int{counts.Treatment.Conversions, counts.Control.Conversions},
		[2]int{counts.Treatment.Size, counts.Control.Size},
		opts.Alternative)
	if err != nil {
		return errors.Wrap(err, "two-proportion z-test")
	}
	report.ZTest = z
	report.ZTestVerdict = newVerdict(TestZ, z.PValue, opts.Alpha)
	report.CrossCheck = verdict.NewCrossCheck(pSim, z.PValue, opts.CrossCheckTolerance)

	if !report.CrossCheck.Agrees {
		s.logger.Warn("simulated and analytic p-values disagree",
			"run_id", report.RunID.String(),
			"simulated", pSim,
			"analytic", z.PValue,
			"tolerance", opts.CrossCheckTolerance)
	}
	if s.recorder != nil {
		s.recorder.ObservePValue(TestSimulation, pSim)
		s.recorder.ObservePValue(TestZ, z.PValue)
	}
	return nil
}

func (s *ABTestService) fitPageModel(ctx context.Context, cleaned *dataset.Cleaned, opts Options) (ModelReport, error) {
	rows := cleaned.Observations
	design, err := logit.NewDesign(len(rows)).
		Intercept().
		Indicator("ab_page", func(i int) bool { return rows[i].Group == experiment.GroupTreatment }).
		Build()
	if err != nil {
		return ModelReport{}, err
	}
	return s.fitModel(ctx, ModelPage, design, rows, opts)
}

func (s *ABTestService) fitCountryModels(ctx context.Context, joined *dataset.Cleaned, opts Options) ([]ModelReport, error) {
	rows := joined.Observations
	country := func(i int) string { return rows[i].Country }
	reference := opts.ReferenceCountry
	if !hasCountry(rows, reference) {
		reference = ""
	}

	countryOnly, err := logit.NewDesign(len(rows)).
		Intercept().
		Categorical("country", country, reference).
		Build()
	if err != nil {
		return nil, err
	}
	withPage, err := logit.NewDesign(len(rows)).
		Intercept().
		Indicator("ab_page", func(i int) bool { return rows[i].Group == experiment.GroupTreatment }).
		Categorical("country", country, reference).
		Build()
	if err != nil {
		return nil, err
	}

	var out []ModelReport
	for _, m := range []struct {
		name   string
		design *logit.Design
	}{{ModelCountry, countryOnly}, {ModelPageCountry, withPage}} {
		mr, err := s.fitModel(ctx, m.name, m.design, rows, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, mr)
	}
	return out, nil
}

func (s *ABTestService) fitModel(ctx context.Context, name string, design *logit.Design, rows []experiment.Observation, opts Options) (ModelReport, error) {
	y := make([]bool, len(rows))
	for i, o := range rows {
		y[i] = o.Converted
	}

	res, err := s.fitter.Fit(ctx, design, y)
	if err != nil {
		return ModelReport{}, errors.Wrapf(err, "fit %s model", name)
	}

	mr := ModelReport{Name: name, Formula: formula(design), Result: res}
	for _, c := range res.Coefficients {
		if c.Name == logit.InterceptName {
			continue
		}
		mr.Verdicts = append(mr.Verdicts, newVerdict(name+":"+c.Name, c.PValue, opts.Alpha))
	}
	return mr, nil
}

func newVerdict(test string, pValue, alpha float64) verdict.Verdict {
	return verdict.Verdict{
		Test:     test,
		PValue:   pValue,
		Alpha:    alpha,
		Decision: verdict.Decide(pValue, alpha),
	}
}

func formula(design *logit.Design) string {
	var terms []string
	for _, n := range design.Names() {
		if n != logit.InterceptName {
			terms = append(terms, n)
		}
	}
	if len(terms) == 0 {
		return "converted ~ 1"
	}
	return "converted ~ " + strings.Join(terms, " + ")
}

func hasCountry(rows []experiment.Observation, country string) bool {
	if country == "" {
		return false
	}
	for _, o := range rows {
		if o.Country == country {
			return true
		}
	}
	return false
}
