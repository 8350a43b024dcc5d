package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/cwbudde/bootfit/internal/bootstrap"
	"github.com/cwbudde/bootfit/internal/config"
	"github.com/cwbudde/bootfit/internal/fit"
	"github.com/cwbudde/bootfit/internal/metrics"
	"github.com/cwbudde/bootfit/internal/store"
	"github.com/spf13/cobra"
)

var (
	bootIterations int
	bootSeed       int64
	bootWorkers    int
	bootPolicy     string
	bootOutput     string
	bootPlot       bool
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Fit a profile model and estimate uncertainties by bootstrap resampling",
	Long: `Fits the model once, then resamples the data with replacement and refits
from the best fit for every round. Prints the per-parameter 68% confidence
intervals and optionally writes the sample matrix as tab-separated text.`,
	RunE: runBootstrap,
}

func init() {
	addFitFlags(bootstrapCmd)
	bootstrapCmd.Flags().IntVarP(&bootIterations, "iterations", "n", 0, "Number of bootstrap rounds (overrides the config)")
	bootstrapCmd.Flags().Int64Var(&bootSeed, "seed", 0, "Master random seed, 0 = wall clock (overrides the config)")
	bootstrapCmd.Flags().IntVarP(&bootWorkers, "workers", "w", 1, "Parallel refit workers (overrides the config)")
	bootstrapCmd.Flags().StringVar(&bootPolicy, "failure-policy", "", "Failed refits: keep, exclude or retry (overrides the config)")
	bootstrapCmd.Flags().StringVarP(&bootOutput, "output", "o", "", "Write bootstrap samples to this TSV file")
	bootstrapCmd.Flags().BoolVar(&bootPlot, "plot", false, "Plot a histogram per free parameter")
	rootCmd.AddCommand(bootstrapCmd)
}

// applyBootstrapFlags overlays the flags the user set on the config.
func applyBootstrapFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("iterations") {
		cfg.Bootstrap.Iterations = bootIterations
	}
	if flags.Changed("seed") {
		cfg.Bootstrap.Seed = bootSeed
	}
	if flags.Changed("workers") {
		cfg.Bootstrap.Workers = bootWorkers
	}
	if flags.Changed("failure-policy") {
		cfg.Bootstrap.FailurePolicy = bootPolicy
	}
	if flags.Changed("output") {
		cfg.Bootstrap.Output = bootOutput
	}
	return cfg.Validate()
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyBootstrapFlags(cmd, cfg); err != nil {
		return err
	}
	if cfg.Bootstrap.Iterations < 1 {
		return fmt.Errorf("bootstrap needs at least one iteration")
	}

	model, err := cfg.BuildModel()
	if err != nil {
		return err
	}
	selector, err := cfg.Selector()
	if err != nil {
		return err
	}
	limits := cfg.Limits()
	out := cmd.OutOrStdout()
	rep := newReporter(out)

	res, err := fit.Fit(model, cfg.InitialParams(), limits, selector, cfg.Settings(0))
	if err != nil {
		return err
	}
	rep.Fit(res, limits)

	var runStore *store.FSStore
	runID := ""
	observers := []bootstrap.Observer{metrics.BootstrapObserver{}}
	var trace *store.TraceWriter
	if saveRun {
		if runStore, err = store.NewFSStore(dataDir); err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
		runID = store.NewRunID()
		if trace, err = store.NewTraceWriter(runStore.BaseDir(), runID, false); err != nil {
			return err
		}
		defer func() {
			if cerr := trace.Close(); cerr != nil {
				slog.Warn("Failed to close trace", "run_id", runID, "error", cerr)
			}
		}()
		observers = append(observers, trace)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	bcfg := cfg.BootstrapSettings()
	slog.Info("Starting bootstrap",
		"iterations", bcfg.Iterations,
		"workers", bcfg.Workers,
		"failure_policy", bcfg.FailurePolicy.String(),
	)
	engine := bootstrap.NewEngine(selector, bcfg, observers...)
	bres, err := engine.Run(ctx, model, res.Params, limits)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	rep.Bootstrap(bres)
	if bootPlot {
		rep.PlotDistribution(bres)
	}

	if path := cfg.Bootstrap.Output; path != "" {
		if err := bootstrap.SaveSamples(path, bres.Header, bres.Samples); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nSaved bootstrap samples to %s\n", path)
	}

	if runStore == nil {
		return nil
	}
	run := store.NewRun(runID, configPath, cfg.DataPath(), cfg.Model, res, limits)
	run.AttachBootstrap(bres, bcfg.Workers)
	if err := runStore.SaveRun(run); err != nil {
		return err
	}
	if err := runStore.SaveSamples(run.ID, bres.Header, bres.Samples); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSaved run %s\n", run.ID)
	return nil
}
