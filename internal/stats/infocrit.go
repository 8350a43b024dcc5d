package stats

import "math"

// AICc returns the Akaike Information Criterion with the small-sample correction, using
// a fit statistic that equals −2 ln L up to a constant (chi-square, Cash, Poisson-MLR).
// Returns +Inf when nData−nFree−1 ≤ 0.
func AICc(statistic float64, nFree, nData int) float64 {
	k := float64(nFree)
	n := float64(nData)
	denom := n - k - 1
	if denom <= 0 {
		return math.Inf(1)
	}
	return statistic + 2*k + 2*k*(k+1)/denom
}

// BIC returns the Bayesian Information Criterion for the same kind of statistic.
func BIC(statistic float64, nFree, nData int) float64 {
	if nData <= 0 {
		return math.NaN()
	}
	return statistic + float64(nFree)*math.Log(float64(nData))
}

// Reduced divides a statistic by the degrees of freedom nData−nFree.
// Returns NaN when there are no degrees of freedom left.
func Reduced(statistic float64, nFree, nData int) float64 {
	dof := nData - nFree
	if dof <= 0 {
		return math.NaN()
	}
	return statistic / float64(dof)
}
