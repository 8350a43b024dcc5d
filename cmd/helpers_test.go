package main

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// writeQuadraticConfig writes a noisy quadratic profile and a YAML config that
// fits it with the curvature fixed, and returns the config path.
func writeQuadraticConfig(t *testing.T, dir string) string {
	t.Helper()

	var data strings.Builder
	data.WriteString("# x y err\n")
	for i := 0; i < 25; i++ {
		x := float64(i) / 2
		y := 1 + 2*x + 0.5*x*x + 0.1*math.Sin(2.3*x)
		fmt.Fprintf(&data, "%g %g 0.1\n", x, y)
	}
	if err := os.WriteFile(filepath.Join(dir, "quad.dat"), []byte(data.String()), 0644); err != nil {
		t.Fatalf("Failed to write data: %v", err)
	}

	cfg := `
data: quad.dat
model: quadratic
statistic: chisquare
parameters:
  - {name: a, value: 0.0}
  - {name: b, value: 1.0, limits: [-10, 10]}
  - {name: c, value: 0.5, fixed: true}
bootstrap:
  iterations: 12
  seed: 42
`
	path := filepath.Join(dir, "quad.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

// resetFlags restores every flag variable and clears the parsed state so each
// test starts from the defaults.
func resetFlags() {
	configPath, statisticName, saveRun, dataDir = "", "", false, "./data"
	bootIterations, bootSeed, bootWorkers = 0, 0, 1
	bootPolicy, bootOutput, bootPlot = "", "", false
	summarizeBest, summarizeFixed, summarizeRun = map[string]string{}, nil, ""
	keepLast, olderThanDays, forceClean = 0, 0, false
	serverURL = "http://localhost:8080"
	logLevel, noColor = "warn", false

	var reset func(c *cobra.Command)
	reset = func(c *cobra.Command) {
		unset := func(f *pflag.Flag) { f.Changed = false }
		c.Flags().VisitAll(unset)
		c.PersistentFlags().VisitAll(unset)
		for _, sub := range c.Commands() {
			reset(sub)
		}
	}
	reset(rootCmd)
}

// execute runs the CLI with args and returns its standard output.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}
