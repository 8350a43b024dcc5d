package main

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/bootfit/internal/config"
	"github.com/cwbudde/bootfit/internal/fit"
	"github.com/cwbudde/bootfit/internal/store"
	"github.com/spf13/cobra"
)

var (
	configPath    string
	statisticName string
	saveRun       bool
	dataDir       string
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit a profile model once",
	Long: `Fits the model described by a YAML config to its data file and prints the
best-fit parameters, the fit statistic and the information criteria.`,
	RunE: runFit,
}

func init() {
	addFitFlags(fitCmd)
	rootCmd.AddCommand(fitCmd)
}

// addFitFlags registers the flags shared by fit and bootstrap.
func addFitFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML run configuration (required)")
	cmd.Flags().StringVar(&statisticName, "statistic", "", "Override the fit statistic (chisquare, poisson-mlr, cash)")
	cmd.Flags().BoolVar(&saveRun, "save", false, "Persist the run under --data-dir")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Base directory for saved runs")
	cmd.MarkFlagRequired("config")
}

// loadConfig reads --config and applies the --statistic override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if statisticName != "" {
		cfg.Statistic = statisticName
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func runFit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
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

	res, err := fit.Fit(model, cfg.InitialParams(), limits, selector, cfg.Settings(0))
	if err != nil {
		return err
	}
	newReporter(cmd.OutOrStdout()).Fit(res, limits)

	if !saveRun {
		return nil
	}
	runStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	run := store.NewRun("", configPath, cfg.DataPath(), cfg.Model, res, limits)
	if err := runStore.SaveRun(run); err != nil {
		return err
	}
	slog.Info("Saved run", "run_id", run.ID, "dir", runStore.RunDir(run.ID))
	fmt.Fprintf(cmd.OutOrStdout(), "\nSaved run %s\n", run.ID)
	return nil
}
