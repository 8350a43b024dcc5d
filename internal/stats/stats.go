// Package stats provides the summary statistics used for bootstrap uncertainty estimates.
//
// StandardDeviation uses the sample convention (÷(n−1)). ConfidenceInterval selects
// equal-tail order statistics enclosing the central 68.27% of the samples and
// reorders its input.
package stats

import (
	"math"
	"slices"
)

// One-sigma equal-tail quantiles of the normal distribution.
const (
	OneSigmaLower = 0.158655
	OneSigmaUpper = 0.841345
)

// Mean returns the arithmetic mean of values.
// Returns NaN for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// StandardDeviation returns the sample standard deviation of values.
// Returns 0 for a single value and NaN for an empty slice.
func StandardDeviation(values []float64) float64 {
	n := len(values)
	switch n {
	case 0:
		return math.NaN()
	case 1:
		return 0
	}

	mean := Mean(values)

	var sumSq float64
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}

	return math.Sqrt(sumSq / float64(n-1))
}

// MeanStdDev returns Mean and StandardDeviation in one call.
func MeanStdDev(values []float64) (mean, stddev float64) {
	return Mean(values), StandardDeviation(values)
}

// ConfidenceInterval sorts values in place and returns the order statistics bracketing
// the central 68.27% of the distribution. Callers that still need the original order
// must pass a copy. Returns (NaN, NaN) for an empty slice.
func ConfidenceInterval(values []float64) (lower, upper float64) {
	n := len(values)
	if n == 0 {
		return math.NaN(), math.NaN()
	}

	slices.Sort(values)

	lowerIdx, upperIdx := intervalIndices(n)
	return values[lowerIdx], values[upperIdx]
}

// intervalIndices returns the sorted-array indices used by ConfidenceInterval.
func intervalIndices(n int) (lower, upper int) {
	lower = int(math.Round(OneSigmaLower * float64(n)))
	upper = int(math.Round(OneSigmaUpper * float64(n)))
	if lower > n-1 {
		lower = n - 1
	}
	if upper > n-1 {
		upper = n - 1
	}
	return lower, upper
}
