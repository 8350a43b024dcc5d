package fit

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"strings"

	"github.com/cwbudde/bootfit/internal/bootstrap"
	"github.com/cwbudde/bootfit/internal/opt"
	"golang.org/x/sync/errgroup"
)

// minChunk is the smallest number of samples worth handing to a separate goroutine.
const minChunk = 1024

var ErrNotBootstrapMode = errors.New("fit: model is not in bootstrap mode")

// ModelConfig holds the statistic settings of a ProfileModel.
type ModelConfig struct {
	Statistic opt.Statistic

	// ModelErrors takes chi-square sigmas from the model instead of the data
	// when the profile has no error column
	ModelErrors bool

	// MaxThreads caps the goroutines computing deviates; 0 means GOMAXPROCS
	MaxThreads int
}

// ProfileModel evaluates a fit statistic for a profile function against 1-D data.
// Outside bootstrap mode the statistic runs over every usable sample; in bootstrap
// mode it runs over the index set drawn by the last Resample call.
type ProfileModel struct {
	fn     Function
	data   *Data
	cfg    ModelConfig
	valid  []int
	active []int
	terms  []float64

	bootstrap bool
}

// NewProfileModel builds a model over the usable samples of data.
func NewProfileModel(fn Function, data *Data, cfg ModelConfig) (*ProfileModel, error) {
	if fn.Eval == nil || len(fn.Params) == 0 {
		return nil, fmt.Errorf("fit: function %q has no evaluator", fn.Name)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	valid := make([]int, 0, data.Len())
	for i := 0; i < data.Len(); i++ {
		if data.usable(i) {
			valid = append(valid, i)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNoData
	}

	return &ProfileModel{
		fn:     fn,
		data:   data,
		cfg:    cfg,
		valid:  valid,
		active: valid,
		terms:  make([]float64, len(valid)),
	}, nil
}

func (m *ProfileModel) Statistic() opt.Statistic { return m.cfg.Statistic }
func (m *ProfileModel) Function() Function       { return m.fn }
func (m *ProfileModel) ParamCount() int          { return len(m.fn.Params) }
func (m *ProfileModel) ValidSampleCount() int    { return len(m.valid) }

// ParameterName returns the function's name for parameter i.
func (m *ProfileModel) ParameterName(i int) string {
	if i < 0 || i >= len(m.fn.Params) {
		return fmt.Sprintf("p%d", i)
	}
	return m.fn.Params[i]
}

// ParamHeader returns the tab-delimited parameter names.
func (m *ProfileModel) ParamHeader() string {
	return strings.Join(m.fn.Params, "\t")
}

// Evaluate returns the fit statistic for params.
func (m *ProfileModel) Evaluate(params []float64) float64 {
	n := len(m.active)
	m.parallel(n, func(lo, hi int) {
		for k := lo; k < hi; k++ {
			i := m.active[k]
			d := m.data.Y[i]
			mv := m.fn.Eval(m.data.X[i], params)
			switch m.cfg.Statistic {
			case opt.Cash:
				m.terms[k] = cashTerm(d, mv)
			case opt.PoissonMLR:
				m.terms[k] = poissonMLRTerm(d, mv)
			default:
				dev := chiSquareDeviate(d, mv, m.sigma(i, mv))
				m.terms[k] = dev * dev
			}
		}
	})

	var sum float64
	for _, t := range m.terms[:n] {
		sum += t
	}
	return sum
}

// Deviates writes one deviate per active sample into out; their squares sum to the
// chi-square or Poisson-MLR statistic. Cash differs from Poisson-MLR only by a
// parameter-independent constant, so Cash models report Poisson-MLR deviates.
func (m *ProfileModel) Deviates(params, out []float64) {
	m.parallel(len(m.active), func(lo, hi int) {
		for k := lo; k < hi; k++ {
			i := m.active[k]
			d := m.data.Y[i]
			mv := m.fn.Eval(m.data.X[i], params)
			if m.cfg.Statistic == opt.ChiSquare {
				out[k] = chiSquareDeviate(d, mv, m.sigma(i, mv))
			} else {
				out[k] = math.Sqrt(poissonMLRTerm(d, mv))
			}
		}
	})
}

func (m *ProfileModel) sigma(i int, mv float64) float64 {
	switch {
	case m.data.Err != nil:
		return m.data.Err[i]
	case m.cfg.ModelErrors:
		return modelSigma(mv)
	default:
		return dataSigma(m.data.Y[i])
	}
}

// EnterBootstrapMode switches evaluation to a private resampled index set.
func (m *ProfileModel) EnterBootstrapMode() {
	if m.bootstrap {
		return
	}
	m.active = make([]int, len(m.valid))
	copy(m.active, m.valid)
	m.bootstrap = true
}

// InBootstrapMode reports whether EnterBootstrapMode has been called.
func (m *ProfileModel) InBootstrapMode() bool { return m.bootstrap }

// Resample draws ValidSampleCount() samples with replacement from the usable samples.
func (m *ProfileModel) Resample(rng *rand.Rand) error {
	if !m.bootstrap {
		return ErrNotBootstrapMode
	}
	if rng == nil {
		return errors.New("fit: resampling needs a random source")
	}
	for k := range m.active {
		m.active[k] = m.valid[rng.Intn(len(m.valid))]
	}
	return nil
}

// CloneModel returns an independent copy for a bootstrap worker. The profile data and
// function are shared read-only; the active index set and scratch space are private.
func (m *ProfileModel) CloneModel() bootstrap.Model {
	clone := *m
	clone.terms = make([]float64, len(m.terms))
	if m.bootstrap {
		clone.active = make([]int, len(m.active))
		copy(clone.active, m.active)
	}
	return &clone
}

// parallel splits [0, n) into chunks across at most MaxThreads goroutines.
func (m *ProfileModel) parallel(n int, fn func(lo, hi int)) {
	threads := m.cfg.MaxThreads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	chunks := min(threads, n/minChunk)
	if chunks <= 1 {
		fn(0, n)
		return
	}

	size := (n + chunks - 1) / chunks
	var g errgroup.Group
	for lo := 0; lo < n; lo += size {
		lo, hi := lo, min(lo+size, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}
