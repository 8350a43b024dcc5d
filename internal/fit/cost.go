package fit

import "math"

// minModelValue floors model values inside logarithms so non-positive model
// predictions give a large but finite penalty.
const minModelValue = 1e-25

// chiSquareDeviate returns the weighted residual (d - m)/sigma.
func chiSquareDeviate(d, m, sigma float64) float64 {
	return (d - m) / sigma
}

// dataSigma is the error estimate used when neither an error column nor model
// errors are available: sqrt(|d|), floored at 1.
func dataSigma(d float64) float64 {
	return math.Sqrt(math.Max(math.Abs(d), 1))
}

// modelSigma is the error estimate taken from the model prediction.
func modelSigma(m float64) float64 {
	return math.Sqrt(math.Max(m, 1))
}

// poissonMLRTerm is one sample's contribution to the Poisson maximum-likelihood
// ratio statistic, 2(m - d + d ln(d/m)). It is never negative.
func poissonMLRTerm(d, m float64) float64 {
	if m < minModelValue {
		m = minModelValue
	}
	if d <= 0 {
		return 2 * m
	}
	return 2 * (m - d + d*math.Log(d/m))
}

// cashTerm is one sample's contribution to the Cash statistic, 2(m - d ln m).
func cashTerm(d, m float64) float64 {
	if m < minModelValue {
		m = minModelValue
	}
	return 2 * (m - d*math.Log(m))
}
