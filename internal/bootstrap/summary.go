package bootstrap

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"

	"github.com/cwbudde/bootfit/internal/opt"
	"github.com/cwbudde/bootfit/internal/stats"
)

// Summary holds the bootstrap statistics of one parameter. Fixed parameters carry only
// their best-fit value; their interval fields are NaN. With no samples every statistic
// is NaN.
type Summary struct {
	Name      string  `json:"name"`
	BestFit   float64 `json:"best_fit"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"stddev"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
	HalfWidth float64 `json:"half_width"`
	Plus      float64 `json:"plus"`
	Minus     float64 `json:"minus"`
	Fixed     bool    `json:"fixed"`
	N         int     `json:"n"`
}

// Defined reports whether the summary has interval statistics to show.
func (s Summary) Defined() bool {
	return !s.Fixed && s.N > 0
}

// summaryJSON is the wire form of Summary. Undefined statistics travel as null.
type summaryJSON struct {
	Name      string   `json:"name"`
	BestFit   *float64 `json:"best_fit"`
	Mean      *float64 `json:"mean"`
	StdDev    *float64 `json:"stddev"`
	Lower     *float64 `json:"lower"`
	Upper     *float64 `json:"upper"`
	HalfWidth *float64 `json:"half_width"`
	Plus      *float64 `json:"plus"`
	Minus     *float64 `json:"minus"`
	Fixed     bool     `json:"fixed"`
	N         int      `json:"n"`
}

// MarshalJSON encodes NaN and infinite statistics as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		Name:      s.Name,
		BestFit:   finiteOrNil(s.BestFit),
		Mean:      finiteOrNil(s.Mean),
		StdDev:    finiteOrNil(s.StdDev),
		Lower:     finiteOrNil(s.Lower),
		Upper:     finiteOrNil(s.Upper),
		HalfWidth: finiteOrNil(s.HalfWidth),
		Plus:      finiteOrNil(s.Plus),
		Minus:     finiteOrNil(s.Minus),
		Fixed:     s.Fixed,
		N:         s.N,
	})
}

// UnmarshalJSON reads null statistics back as NaN.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var w summaryJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Summary{
		Name:      w.Name,
		BestFit:   nanIfNil(w.BestFit),
		Mean:      nanIfNil(w.Mean),
		StdDev:    nanIfNil(w.StdDev),
		Lower:     nanIfNil(w.Lower),
		Upper:     nanIfNil(w.Upper),
		HalfWidth: nanIfNil(w.HalfWidth),
		Plus:      nanIfNil(w.Plus),
		Minus:     nanIfNil(w.Minus),
		Fixed:     w.Fixed,
		N:         w.N,
	}
	return nil
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nanIfNil(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// Summarize computes per-parameter statistics over the iterations include marks
// (nil = all). The matrix is never reordered.
func Summarize(m *SampleMatrix, bestFit []float64, limits opt.Limits, names []string, include []bool) []Summary {
	nan := math.NaN()
	out := make([]Summary, m.Params())

	for p := range out {
		s := Summary{
			Name:    paramName(names, p),
			BestFit: bestFit[p],
		}

		if limits.IsFixed(p) {
			s.Fixed = true
			s.Mean, s.StdDev = bestFit[p], 0
			s.Lower, s.Upper, s.HalfWidth, s.Plus, s.Minus = nan, nan, nan, nan, nan
			s.N = countIncluded(m.Iterations(), include)
			out[p] = s
			continue
		}

		row := m.rowWhere(p, include)
		s.N = len(row)
		s.Mean, s.StdDev = stats.MeanStdDev(row)

		s.Lower, s.Upper = stats.ConfidenceInterval(slices.Clone(row))
		s.HalfWidth = (s.Upper - s.Lower) / 2
		s.Plus = s.Upper - s.BestFit
		s.Minus = s.BestFit - s.Lower
		out[p] = s
	}
	return out
}

func paramName(names []string, p int) string {
	if p < len(names) && names[p] != "" {
		return names[p]
	}
	return "p" + strconv.Itoa(p)
}

func countIncluded(n int, include []bool) int {
	if include == nil {
		return n
	}
	count := 0
	for _, ok := range include {
		if ok {
			count++
		}
	}
	return count
}
