package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cwbudde/bootfit/internal/bootstrap"
	"github.com/cwbudde/bootfit/internal/opt"
	"github.com/cwbudde/bootfit/internal/stats"
	"github.com/cwbudde/bootfit/internal/store"
	"github.com/spf13/cobra"
)

var (
	summarizeBest  map[string]string
	summarizeFixed []string
	summarizeRun   string
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [samples.tsv]",
	Short: "Recompute bootstrap statistics from saved samples",
	Long: `Recomputes the per-parameter bootstrap statistics from a samples file written
by "bootfit bootstrap --output", or from a saved run with --run.

For a plain samples file the best-fit values come from --best; parameters
without one are reported against the sample mean.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSummarize,
}

func init() {
	summarizeCmd.Flags().StringToStringVar(&summarizeBest, "best", nil, "Best-fit values as name=value pairs")
	summarizeCmd.Flags().StringSliceVar(&summarizeFixed, "fixed", nil, "Names of fixed parameters")
	summarizeCmd.Flags().StringVar(&summarizeRun, "run", "", "Summarize a saved run instead of a samples file")
	summarizeCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Base directory for saved runs")
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	var (
		names   []string
		m       *bootstrap.SampleMatrix
		best    []float64
		limits  opt.Limits
		include []bool
		err     error
	)

	switch {
	case summarizeRun != "":
		names, m, best, limits, include, err = loadRunSamples(summarizeRun)
	case len(args) == 1:
		names, m, err = bootstrap.LoadSamples(args[0])
		if err == nil {
			best, limits, err = bestFromFlags(names, m)
		}
	default:
		return errors.New("need a samples file or --run")
	}
	if err != nil {
		return err
	}

	summaries := bootstrap.Summarize(m, best, limits, names, include)
	newReporter(cmd.OutOrStdout()).Summaries(summaries, m.Iterations())
	return nil
}

// bestFromFlags builds the best-fit vector and limits from --best and --fixed.
func bestFromFlags(names []string, m *bootstrap.SampleMatrix) ([]float64, opt.Limits, error) {
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}

	best := make([]float64, len(names))
	given := make([]bool, len(names))
	for name, value := range summarizeBest {
		i, ok := index[name]
		if !ok {
			return nil, nil, fmt.Errorf("unknown parameter %q in --best", name)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid best-fit value for %s: %w", name, err)
		}
		best[i] = v
		given[i] = true
	}
	for i, ok := range given {
		if !ok {
			best[i] = stats.Mean(m.Row(i))
			slog.Warn("No best-fit value given, using the sample mean", "param", names[i], "mean", best[i])
		}
	}

	if len(summarizeFixed) == 0 {
		return best, nil, nil
	}
	limits := make(opt.Limits, len(names))
	for _, name := range summarizeFixed {
		i, ok := index[name]
		if !ok {
			return nil, nil, fmt.Errorf("unknown parameter %q in --fixed", name)
		}
		limits[i] = opt.FixedLimit()
	}
	return best, limits, nil
}

// loadRunSamples reads a saved run. Runs with the exclude policy get their
// inclusion mask from the iteration trace.
func loadRunSamples(runID string) ([]string, *bootstrap.SampleMatrix, []float64, opt.Limits, []bool, error) {
	runStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("failed to create run store: %w", err)
	}
	run, err := runStore.LoadRun(runID)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if run.Bootstrap == nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("run %s has no bootstrap samples", runID)
	}
	names, m, err := runStore.LoadSamples(runID)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	var include []bool
	if run.Bootstrap.FailurePolicy == bootstrap.ExcludeFailed.String() {
		include, err = store.IncludedFromTrace(runStore.BaseDir(), runID, m.Iterations())
		if err != nil {
			slog.Warn("Cannot restore excluded refits, summarizing all samples", "run_id", runID, "error", err)
			include = nil
		}
	}
	return names, m, run.BestFit(), run.Limits(), include, nil
}
