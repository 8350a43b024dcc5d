package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/cwbudde/bootfit/internal/bootstrap"
	"github.com/cwbudde/bootfit/internal/fit"
	"github.com/cwbudde/bootfit/internal/opt"
)

// Reporter writes human-readable results.
type Reporter struct {
	w      io.Writer
	colors *ColorScheme
}

// New creates a reporter writing to w.
func New(w io.Writer, colors *ColorScheme) *Reporter {
	if colors == nil {
		colors = NoColorScheme()
	}
	return &Reporter{w: w, colors: colors}
}

// Fit prints a single-fit result: status, statistics, information criteria and
// the parameter values with their errors when the backend estimated them.
func (r *Reporter) Fit(res *fit.FitResult, limits opt.Limits) {
	c := r.colors
	statusColor := c.Success
	if !res.Status.OK() {
		statusColor = c.Error
	} else if !res.Status.Converged() {
		statusColor = c.Warn
	}

	fmt.Fprintf(r.w, "*** %s status = %d -- %s\n", res.Backend, int(res.Status), statusColor.Sprint(res.Status.String()))
	dof := res.NValid - res.NFree
	fmt.Fprintf(r.w, "  %s = %f    (%d DOF)\n", statisticLabel(res.Statistic), res.FinalStatistic, dof)
	fmt.Fprintf(r.w, "  INITIAL %s = %f\n", statisticLabel(res.Statistic), res.InitialStatistic)
	fmt.Fprintf(r.w, "        NPAR = %d\n", len(res.Params))
	fmt.Fprintf(r.w, "       NFREE = %d\n", res.NFree)
	fmt.Fprintf(r.w, "       NITER = %d\n", res.Iterations)
	fmt.Fprintf(r.w, "        NFEV = %d\n\n", res.Evaluations)

	if res.Statistic.LeastSquares() {
		fmt.Fprintf(r.w, "Reduced %s = %s\n", reducedLabel(res.Statistic), r.number(res.ReducedStatistic, "%f"))
	}
	fmt.Fprintf(r.w, "AIC = %s, BIC = %s\n\n", r.number(res.AICc, "%f"), r.number(res.BIC, "%f"))

	for i, v := range res.Params {
		name := c.Name.Sprintf("%10s", res.Names[i])
		switch {
		case limits.IsFixed(i):
			fmt.Fprintf(r.w, "  %s = %f     %s\n", name, v, c.Fixed.Sprint("[fixed parameter]"))
		case res.Errors != nil:
			fmt.Fprintf(r.w, "  %s = %f +/- %f\n", name, v, res.Errors[i])
		default:
			fmt.Fprintf(r.w, "  %s = %f\n", name, v)
		}
	}
}

// Bootstrap prints the bootstrap statistics of every parameter.
func (r *Reporter) Bootstrap(res *bootstrap.Result) {
	r.Summaries(res.Summaries, res.Samples.Iterations())
	if res.Failed > 0 {
		note := "kept in the statistics"
		if res.Policy == bootstrap.ExcludeFailed {
			note = "excluded from the statistics"
		}
		fmt.Fprintln(r.w, r.colors.Warn.Sprintf("%d of %d refits did not converge (%s)", res.Failed, res.Samples.Iterations(), note))
	}
	if t := res.Timing; t.Count > 0 {
		fmt.Fprintf(r.w, "\n%d refits in %s (mean %s, p50 %s, p95 %s, max %s)\n",
			t.Count, res.Elapsed.Round(time.Millisecond), t.Mean, t.P50, t.P95, t.Max)
	}
}

// Summaries prints per-parameter bootstrap statistics for n resampling rounds.
func (r *Reporter) Summaries(summaries []bootstrap.Summary, n int) {
	c := r.colors
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, c.Header.Sprintf("Statistics for parameter values from bootstrap resampling (%d rounds):", n))
	fmt.Fprintln(r.w, "Best-fit\t\t Bootstrap      [68% conf.int., half-width]; (mean +/- standard deviation)")

	for _, s := range summaries {
		name := c.Name.Sprint(s.Name)
		switch {
		case s.Fixed:
			fmt.Fprintf(r.w, "%s = %.6g     %s\n", name, s.BestFit, c.Fixed.Sprint("[fixed parameter]"))
		case s.N == 0:
			fmt.Fprintf(r.w, "%s = %.6g     %s\n", name, s.BestFit, c.Undefined.Sprint("[undefined: no bootstrap samples]"))
		default:
			fmt.Fprintf(r.w, "%s = %.6g  +%.6g, -%.6g    [%.6g -- %.6g, %.6g];  (%.6g +/- %.6g)\n",
				name, s.BestFit, s.Plus, s.Minus, s.Lower, s.Upper, s.HalfWidth, s.Mean, s.StdDev)
		}
	}
}

func (r *Reporter) number(v float64, format string) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return r.colors.Undefined.Sprint("undefined")
	}
	return fmt.Sprintf(format, v)
}

func statisticLabel(s opt.Statistic) string {
	switch s {
	case opt.Cash:
		return "CASH STATISTIC"
	case opt.PoissonMLR:
		return "POISSON-MLR STATISTIC"
	default:
		return "CHI-SQUARE"
	}
}

func reducedLabel(s opt.Statistic) string {
	if s == opt.PoissonMLR {
		return "Poisson-MLR"
	}
	return "Chi^2"
}
