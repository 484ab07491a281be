package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"abtest/adapters/rng"
	"abtest/adapters/simulation"
	"abtest/adapters/stats/logit"
	"abtest/adapters/stats/ztest"
	"abtest/app"
	"abtest/domain/experiment"
	"abtest/internal"
	"abtest/internal/config"
	"abtest/internal/metrics"
	"abtest/internal/testkit"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// cliState is the state shared by every subcommand once flags are parsed
type cliState struct {
	cfg      *config.Config
	jsonOut  bool
	logger   *slog.Logger
	recorder *metrics.Recorder
	service  *app.ABTestService
}

func main() {
	// a missing .env is fine; the environment may already be populated
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg, os.Stdout).ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config, out io.Writer) *cobra.Command {
	rt := &cliState{cfg: cfg}

	rootCmd := &cobra.Command{
		Use:   "abtest",
		Short: "Landing page A/B test analysis by simulation, z-test and logistic regression",
		Long: `Decide whether a new landing page converts better than the old one.

The null distribution of p̂(new) − p̂(old) is simulated with both arms
converting at the pooled rate, and the empirical p-value is cross-checked
against a two-proportion z-test.

Settings come from the environment (SIM_TRIALS, SIM_SEED, SIM_WORKERS, ALPHA,
CROSSCHECK_TOLERANCE, LOG_LEVEL, LOG_FORMAT, METRICS_FILE, optionally via .env)
and can be overridden with flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.cfg.Validate(); err != nil {
				return err
			}
			rt.logger = internal.NewLogger(os.Stderr, rt.cfg.Logging.Level, rt.cfg.Logging.Format)
			rt.recorder = metrics.NewRecorder()

			sim := simulation.NewProportionDiffSimulator(rng.NewPCGAdapter(),
				simulation.WithWorkers(rt.cfg.Simulation.Workers),
				simulation.WithRecorder(rt.recorder),
				simulation.WithLogger(rt.logger))
			rt.service = app.NewABTestService(sim, ztest.NewProportionsZTest(), logit.NewFitter(logit.WithLogger(rt.logger)),
				app.WithRecorder(rt.recorder),
				app.WithLogger(rt.logger))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfg.Metrics.File == "" || rt.recorder == nil {
				return nil
			}
			if err := rt.recorder.WriteTextfile(rt.cfg.Metrics.File); err != nil {
				return err
			}
			rt.logger.Debug("metrics written", "file", rt.cfg.Metrics.File)
			return nil
		},
	}
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&rt.jsonOut, "json", false, "Print the report as JSON")
	flags.IntVar(&cfg.Simulation.Trials, "trials", cfg.Simulation.Trials, "Simulated null trials")
	flags.Uint64Var(&cfg.Simulation.Seed, "seed", cfg.Simulation.Seed, "Seed of the simulation streams")
	flags.IntVar(&cfg.Simulation.Workers, "workers", cfg.Simulation.Workers, "Concurrent simulation workers")
	flags.Float64Var(&cfg.Analysis.Alpha, "alpha", cfg.Analysis.Alpha, "Significance level")
	flags.Float64Var(&cfg.Analysis.CrossCheckTolerance, "tolerance", cfg.Analysis.CrossCheckTolerance, "Allowed gap between simulated and z-test p-values")
	flags.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "debug, info, warn or error")
	flags.StringVar(&cfg.Metrics.File, "metrics-file", cfg.Metrics.File, "Write prometheus metrics to this textfile")

	rootCmd.AddCommand(
		newSimulateCmd(rt),
		newZTestCmd(rt),
		newAnalyzeCmd(rt),
	)
	return rootCmd
}

// countFlags registers the per-arm count flags; defaults are the cleaned
// counts of the reference landing page experiment
func countFlags(cmd *cobra.Command, counts *experiment.Counts) {
	cmd.Flags().IntVar(&counts.Control.Size, "control-size", 145274, "Users who saw the old page")
	cmd.Flags().IntVar(&counts.Control.Conversions, "control-conversions", 17489, "Old page conversions")
	cmd.Flags().IntVar(&counts.Treatment.Size, "treatment-size", 145310, "Users who saw the new page")
	cmd.Flags().IntVar(&counts.Treatment.Conversions, "treatment-conversions", 17264, "New page conversions")
}

func (rt *cliState) options(alternative string) (app.Options, error) {
	opts := app.DefaultOptions()
	opts.Trials = rt.cfg.Simulation.Trials
	opts.Seed = rt.cfg.Simulation.Seed
	opts.Alpha = rt.cfg.Analysis.Alpha
	opts.CrossCheckTolerance = rt.cfg.Analysis.CrossCheckTolerance

	alt, err := experiment.ParseAlternative(alternative)
	if err != nil {
		return opts, err
	}
	opts.Alternative = alt
	return opts, nil
}

func (rt *cliState) write(cmd *cobra.Command, report *app.Report) error {
	if rt.jsonOut {
		return app.WriteJSON(cmd.OutOrStdout(), report)
	}
	return app.WriteText(cmd.OutOrStdout(), report)
}

func newSimulateCmd(rt *cliState) *cobra.Command {
	var counts experiment.Counts
	var alternative string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate the null distribution from per-arm counts",
		Long: `Simulate the null distribution of p̂(new) − p̂(old) from per-arm counts and
compare the empirical p-value with a two-proportion z-test.

Example: abtest simulate --trials 10000 --seed 42 --alternative greater`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := rt.options(alternative)
			if err != nil {
				return err
			}
			report, err := rt.service.SimulateCounts(cmd.Context(), counts, opts)
			if err != nil {
				return err
			}
			return rt.write(cmd, report)
		},
	}

	countFlags(cmd, &counts)
	cmd.Flags().StringVar(&alternative, "alternative", "greater", "greater or less")
	return cmd
}

func newZTestCmd(rt *cliState) *cobra.Command {
	var counts experiment.Counts
	var alternative string

	cmd := &cobra.Command{
		Use:   "ztest",
		Short: "Two-proportion z-test of the new page against the old",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			alt, err := experiment.ParseAlternative(alternative)
			if err != nil {
				return err
			}
			res, err := ztest.NewProportionsZTest().TestCounts(counts, alt)
			if err != nil {
				return err
			}
			if rt.jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "z = %+.4f  p = %.4f  (%s, p̂new − p̂old = %+.6f, se = %.6f)\n",
				res.Statistic, res.PValue, res.Alternative, res.Difference, res.StdErr)
			return nil
		},
	}

	countFlags(cmd, &counts)
	cmd.Flags().StringVar(&alternative, "alternative", "greater", "greater, less or two-sided")
	return cmd
}

func newAnalyzeCmd(rt *cliState) *cobra.Command {
	var synthetic bool
	var alternative string
	var noCountries bool
	gen := testkit.DefaultABConfig()

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Clean an experiment log, test it and fit the regressions",
		Long: `Run the full pipeline: clean the observation log, simulate, z-test,
and fit converted ~ ab_page, converted ~ UK + US and converted ~ ab_page + UK + US.

Only generated experiment logs are supported.

Example: abtest analyze --synthetic --users 50000 --gen-seed 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !synthetic {
				return fmt.Errorf("analyze needs a data source: pass --synthetic")
			}
			opts, err := rt.options(alternative)
			if err != nil {
				return err
			}

			g, err := testkit.NewABDataGenerator(gen)
			if err != nil {
				return err
			}
			ds := g.Generate()
			countries := ds.Countries
			if noCountries {
				countries = nil
			}
			rt.logger.Info("generated experiment log", "rows", len(ds.Observations), "users", gen.Users, "seed", gen.Seed)

			report, err := rt.service.Run(cmd.Context(), ds.Observations, countries, opts)
			if err != nil {
				return err
			}
			return rt.write(cmd, report)
		},
	}

	cmd.Flags().BoolVar(&synthetic, "synthetic", false, "Analyze a generated experiment log")
	cmd.Flags().StringVar(&alternative, "alternative", "greater", "greater or less")
	cmd.Flags().BoolVar(&noCountries, "no-countries", false, "Skip the country join and models")
	cmd.Flags().IntVar(&gen.Users, "users", gen.Users, "Generated users")
	cmd.Flags().Uint64Var(&gen.Seed, "gen-seed", gen.Seed, "Generator seed")
	cmd.Flags().Float64Var(&gen.ControlRate, "control-rate", gen.ControlRate, "Old page conversion rate")
	cmd.Flags().Float64Var(&gen.TreatmentRate, "treatment-rate", gen.TreatmentRate, "New page conversion rate")
	cmd.Flags().Float64Var(&gen.MismatchRate, "mismatch-rate", gen.MismatchRate, "Share of rows served the wrong page")
	return cmd
}
