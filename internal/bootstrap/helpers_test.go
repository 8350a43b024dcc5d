package bootstrap

import (
	"math/rand"
	"sync/atomic"

	"github.com/cwbudde/bootfit/internal/opt"
)

// meanModel fits a constant mu + offset to a set of values.
type meanModel struct {
	data      []float64
	active    []int
	bootstrap bool
	resamples int
}

func newMeanModel(n int, seed int64) *meanModel {
	rng := rand.New(rand.NewSource(seed))
	m := &meanModel{data: make([]float64, n), active: make([]int, n)}
	for i := range m.data {
		m.data[i] = 10 + rng.NormFloat64()
		m.active[i] = i
	}
	return m
}

func (m *meanModel) ParamCount() int       { return 2 }
func (m *meanModel) ValidSampleCount() int { return len(m.data) }
func (m *meanModel) ParamHeader() string   { return "mu\toffset" }

func (m *meanModel) ParameterName(i int) string {
	return []string{"mu", "offset"}[i]
}

func (m *meanModel) Deviates(params, out []float64) {
	for k, i := range m.active {
		out[k] = m.data[i] - params[0] - params[1]
	}
}

func (m *meanModel) Evaluate(params []float64) float64 {
	var sum float64
	for _, i := range m.active {
		d := m.data[i] - params[0] - params[1]
		sum += d * d
	}
	return sum
}

func (m *meanModel) EnterBootstrapMode() { m.bootstrap = true }

func (m *meanModel) Resample(rng *rand.Rand) error {
	m.resamples++
	for k := range m.active {
		m.active[k] = rng.Intn(len(m.data))
	}
	return nil
}

func (m *meanModel) CloneModel() Model {
	clone := *m
	clone.active = append([]int(nil), m.active...)
	return &clone
}

// uncloneable hides CloneModel.
type uncloneable struct {
	*meanModel
}

func (u uncloneable) CloneModel() {}

// offsetFixed marks the offset parameter fixed.
func offsetFixed() opt.Limits {
	return opt.Limits{{}, opt.FixedLimit()}
}

// stubBackend records calls and reports the status fail dictates.
type stubBackend struct {
	name  string
	kind  opt.Kind
	calls atomic.Int64
	fail  func(call int64) bool
}

func (b *stubBackend) Name() string  { return b.name }
func (b *stubBackend) Kind() opt.Kind { return b.kind }

func (b *stubBackend) Minimize(params []float64, limits opt.Limits, model opt.Model, s opt.Settings) (opt.Result, error) {
	call := b.calls.Add(1)
	res := opt.Result{Backend: b.name, Status: opt.StatusStatisticConverged, FinalStatistic: model.Evaluate(params)}
	if b.fail != nil && b.fail(call) {
		res.Status = opt.StatusFailure
		params[0] = -1
	}
	return res, nil
}
