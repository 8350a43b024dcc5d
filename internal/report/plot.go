package report

import (
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/cwbudde/bootfit/internal/bootstrap"
	"github.com/guptarohit/asciigraph"
)

// DefaultBins is the histogram resolution of PlotDistribution.
const DefaultBins = 40

// Histogram counts the finite values into n equal-width bins spanning [min, max].
// NaN and infinite values are skipped.
func Histogram(values []float64, n int) (counts []float64, lo, hi float64) {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 || n <= 0 {
		return nil, math.NaN(), math.NaN()
	}
	lo, hi = slices.Min(finite), slices.Max(finite)
	counts = make([]float64, n)
	width := (hi - lo) / float64(n)
	for _, v := range finite {
		bin := n - 1
		if width > 0 {
			bin = min(int((v-lo)/width), n-1)
		}
		counts[bin]++
	}
	return counts, lo, hi
}

// PlotDistribution draws an ASCII histogram of every free parameter's bootstrap
// samples. Fixed parameters and parameters without samples are skipped.
func (r *Reporter) PlotDistribution(res *bootstrap.Result) {
	include := res.Included()
	for p, s := range res.Summaries {
		if !s.Defined() {
			continue
		}
		values := make([]float64, 0, res.Samples.Iterations())
		for i, v := range res.Samples.Row(p) {
			if include == nil || include[i] {
				values = append(values, v)
			}
		}
		writeHistogram(r.w, s.Name, values)
	}
}

func writeHistogram(w io.Writer, name string, values []float64) {
	counts, lo, hi := Histogram(values, DefaultBins)
	if len(counts) == 0 {
		return
	}
	var total float64
	for _, c := range counts {
		total += c
	}
	caption := fmt.Sprintf("%s: %d samples in [%.6g, %.6g]", name, int(total), lo, hi)
	graph := asciigraph.Plot(counts,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
	fmt.Fprintf(w, "\n%s\n", graph)
}
