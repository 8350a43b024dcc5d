package fit

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/bootfit/internal/opt"
	"github.com/cwbudde/bootfit/internal/stats"
)

// StatisticModel is an opt.Model that knows which fit statistic it computes.
type StatisticModel interface {
	opt.Model
	Statistic() opt.Statistic
}

// FitResult holds the output of a single fit
type FitResult struct {
	Params      []float64
	Errors      []float64
	Names       []string
	Backend     string
	Statistic   opt.Statistic
	Status      opt.Status
	Iterations  int
	Evaluations int
	NFree       int
	NValid      int

	InitialStatistic float64
	FinalStatistic   float64
	ReducedStatistic float64
	AICc             float64
	BIC              float64
}

// Fit minimizes the model's statistic from params using the backend the selector picks
// for that statistic. params is left untouched; the best fit is returned in the result.
func Fit(model StatisticModel, params []float64, limits opt.Limits, selector *opt.Selector, s opt.Settings) (*FitResult, error) {
	stat := model.Statistic()
	backend, err := selector.Select(stat)
	if err != nil {
		return nil, err
	}

	slog.Info("Starting fit",
		"statistic", stat.String(),
		"backend", backend.Name(),
		"parameters", model.ParamCount(),
		"free", limits.FreeCount(model.ParamCount()),
		"samples", model.ValidSampleCount(),
	)

	best := make([]float64, len(params))
	copy(best, params)

	res, err := backend.Minimize(best, limits, model, s)
	if err != nil {
		return nil, fmt.Errorf("fit failed (%s): %w", res.Status, err)
	}

	names := make([]string, model.ParamCount())
	for i := range names {
		names[i] = model.ParameterName(i)
	}

	nValid := model.ValidSampleCount()
	result := &FitResult{
		Params:           best,
		Errors:           res.ParamErrors,
		Names:            names,
		Backend:          res.Backend,
		Statistic:        stat,
		Status:           res.Status,
		Iterations:       res.Iterations,
		Evaluations:      res.Evaluations,
		NFree:            res.NFree,
		NValid:           nValid,
		InitialStatistic: res.InitialStatistic,
		FinalStatistic:   res.FinalStatistic,
		ReducedStatistic: stats.Reduced(res.FinalStatistic, res.NFree, nValid),
		AICc:             stats.AICc(res.FinalStatistic, res.NFree, nValid),
		BIC:              stats.BIC(res.FinalStatistic, res.NFree, nValid),
	}

	slog.Info("Fit complete",
		"status", res.Status.String(),
		"initial_statistic", res.InitialStatistic,
		"final_statistic", res.FinalStatistic,
		"reduced_statistic", result.ReducedStatistic,
	)
	return result, nil
}
