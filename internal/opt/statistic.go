package opt

import (
	"fmt"
	"strings"
)

// Statistic identifies the fit statistic a model minimizes.
type Statistic int

const (
	ChiSquare Statistic = iota
	PoissonMLR
	Cash
)

func (s Statistic) String() string {
	switch s {
	case ChiSquare:
		return "chisquare"
	case PoissonMLR:
		return "poisson-mlr"
	case Cash:
		return "cash"
	default:
		return fmt.Sprintf("statistic(%d)", int(s))
	}
}

// LeastSquares reports whether the statistic is a sum of squared deviates and can
// therefore be minimized by a least-squares backend.
func (s Statistic) LeastSquares() bool {
	return s == ChiSquare || s == PoissonMLR
}

// ParseStatistic converts a config or flag value into a Statistic.
func ParseStatistic(name string) (Statistic, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "chisquare", "chi2", "chi-square":
		return ChiSquare, nil
	case "poisson-mlr", "poissonmlr", "modcash", "modified-cash":
		return PoissonMLR, nil
	case "cash":
		return Cash, nil
	default:
		return 0, fmt.Errorf("unknown fit statistic: %q", name)
	}
}
