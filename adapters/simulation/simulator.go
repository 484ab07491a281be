package simulation

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"abtest/domain/experiment"
	apperrors "abtest/internal/errors"
	"abtest/ports"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultTrials is the repetition count used when callers do not choose one
const DefaultTrials = 10000

// cancelCheckInterval is how many trials a worker runs between context checks
const cancelCheckInterval = 256

// ProportionDiffSimulator builds the null distribution of
// p̂(new) − p̂(old) when both arms convert with one shared probability.
type ProportionDiffSimulator struct {
	rngPort  ports.RNGPort
	workers  int
	recorder ports.SimulationRecorder
	logger   *slog.Logger
}

// Option configures a ProportionDiffSimulator
type Option func(*ProportionDiffSimulator)

// WithWorkers sets the number of concurrent workers; 1 runs sequentially
func WithWorkers(n int) Option {
	return func(s *ProportionDiffSimulator) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRecorder attaches a telemetry sink
func WithRecorder(r ports.SimulationRecorder) Option {
	return func(s *ProportionDiffSimulator) {
		s.recorder = r
	}
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(s *ProportionDiffSimulator) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewProportionDiffSimulator creates a simulator drawing from rngPort
func NewProportionDiffSimulator(rngPort ports.RNGPort, opts ...Option) *ProportionDiffSimulator {
	s := &ProportionDiffSimulator{
		rngPort: rngPort,
		workers: runtime.NumCPU(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "ProportionDiffSimulator")
	return s
}

// Workers returns the configured concurrency
func (s *ProportionDiffSimulator) Workers() int {
	return s.workers
}

// SimulateTrial draws newArm.Size and oldArm.Size Bernoulli(nullP) outcomes
// and returns mean(new) − mean(old). The two arms share nullP and their
// draws are independent of each other.
func SimulateTrial(newArm, oldArm experiment.SampleSpec, nullP float64, src rand.Source) (float64, error) {
	if err := validateTrialInputs(newArm, oldArm, nullP); err != nil {
		return 0, err
	}
	if src == nil {
		return 0, apperrors.InvalidInput("random source is required")
	}
	return simulateTrial(newArm.Size, oldArm.Size, nullP, src), nil
}

// BuildNullDistribution runs trials independent trials and collects their
// statistics in trial order. Trial i always draws from stream (seed, i), so
// the sequence depends only on the inputs and seed, never on the number of
// workers or their scheduling.
func (s *ProportionDiffSimulator) BuildNullDistribution(ctx context.Context, newArm, oldArm experiment.SampleSpec, nullP float64, trials int, seed uint64) (*NullDistribution, error) {
	if err := validateTrialInputs(newArm, oldArm, nullP); err != nil {
		return nil, err
	}
	if trials <= 0 {
		return nil, apperrors.Wrapf(ErrInvalidTrialCount, "trials = %d", trials)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	values := make([]float64, trials)

	workers := s.workers
	if workers > trials {
		workers = trials
	}
	chunk := (trials + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < trials; lo += chunk {
		hi := min(lo+chunk, trials)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%cancelCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				values[i] = simulateTrial(newArm.Size, oldArm.Size, nullP, s.rngPort.Stream(seed, i))
			}
			return nil
		})
	}
	err := g.Wait()
	elapsed := time.Since(start)

	if s.recorder != nil {
		s.recorder.ObserveSimulation(trials, elapsed, err)
	}
	if err != nil {
		s.logger.Warn("null distribution aborted", "trials", trials, "error", err)
		return nil, err
	}

	s.logger.Debug("null distribution built",
		"trials", trials,
		"workers", workers,
		"null_p", nullP,
		"n_new", newArm.Size,
		"n_old", oldArm.Size,
		"elapsed", elapsed)

	return &NullDistribution{values: values}, nil
}

func simulateTrial(nNew, nOld int, p float64, src rand.Source) float64 {
	pNew := drawProportion(nNew, p, src)
	pOld := drawProportion(nOld, p, src)
	return pNew - pOld
}

// drawProportion returns the mean of n Bernoulli(p) draws. The success count
// is sampled from Binomial(n, p), which is exactly the distribution of that sum.
func drawProportion(n int, p float64, src rand.Source) float64 {
	switch p {
	case 0:
		return 0
	case 1:
		return 1
	}
	k := distuv.Binomial{N: float64(n), P: p, Src: src}.Rand()
	return k / float64(n)
}

func validateTrialInputs(newArm, oldArm experiment.SampleSpec, nullP float64) error {
	for _, arm := range []experiment.SampleSpec{newArm, oldArm} {
		if arm.Size <= 0 {
			return apperrors.Wrapf(ErrInvalidSampleSize, "%s arm has size %d", arm.Group, arm.Size)
		}
	}
	if math.IsNaN(nullP) || nullP < 0 || nullP > 1 {
		return apperrors.Wrapf(ErrInvalidProbability, "null probability %v", nullP)
	}
	return nil
}
