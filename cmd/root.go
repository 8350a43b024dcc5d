package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/cwbudde/bootfit/internal/report"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	noColor  bool
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bootfit",
	Short: "Profile fitting with bootstrap parameter uncertainties",
	Long: `bootfit fits parametric 1-D profile models to data through interchangeable
optimizer backends (Levenberg-Marquardt, Nelder-Mead, differential evolution,
mayfly) and estimates parameter uncertainties by bootstrap resampling.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		// stdout carries the report
		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

// newReporter writes to the command's output, colored only on a terminal.
func newReporter(w io.Writer) *report.Reporter {
	if f, ok := w.(*os.File); ok {
		return report.New(w, report.SchemeFor(f, noColor))
	}
	return report.New(w, report.NoColorScheme())
}
