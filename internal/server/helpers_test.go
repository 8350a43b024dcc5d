package server

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeLineConfig writes a noisy straight-line profile and a YAML config
// fitting it, and returns the config path.
func writeLineConfig(t *testing.T, dir string, iterations int) string {
	t.Helper()

	var data strings.Builder
	data.WriteString("# x y err\n")
	for i := 0; i < 20; i++ {
		x := float64(i)
		y := 2 + 3*x + 0.2*math.Sin(1.7*x)
		fmt.Fprintf(&data, "%g %g 0.2\n", x, y)
	}
	if err := os.WriteFile(filepath.Join(dir, "line.dat"), []byte(data.String()), 0644); err != nil {
		t.Fatalf("Failed to write data: %v", err)
	}

	cfg := fmt.Sprintf(`
data: line.dat
model: line
statistic: chisquare
parameters:
  - {name: a, value: 1.0}
  - {name: b, value: 1.0, limits: [0, 10]}
bootstrap:
  iterations: %d
  seed: 17
`, iterations)
	path := filepath.Join(dir, "line.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}
