package opt

import (
	"fmt"
	"math"
)

// lineModel fits y = a + b*x with unit errors.
type lineModel struct {
	x, y  []float64
	evals int
}

func newLineModel(a, b float64, n int) *lineModel {
	m := &lineModel{x: make([]float64, n), y: make([]float64, n)}
	for i := 0; i < n; i++ {
		m.x[i] = float64(i)
		m.y[i] = a + b*float64(i)
	}
	return m
}

func (m *lineModel) ParamCount() int            { return 2 }
func (m *lineModel) ValidSampleCount() int      { return len(m.x) }
func (m *lineModel) ParameterName(i int) string { return fmt.Sprintf("p%d", i) }

func (m *lineModel) Deviates(params, out []float64) {
	for i := range m.x {
		out[i] = m.y[i] - (params[0] + params[1]*m.x[i])
	}
}

func (m *lineModel) Evaluate(params []float64) float64 {
	m.evals++
	var sum float64
	for i := range m.x {
		d := m.y[i] - (params[0] + params[1]*m.x[i])
		sum += d * d
	}
	return sum
}

// sphereModel evaluates sum((p_i - c_i)^2) over any number of parameters.
type sphereModel struct {
	center []float64
	evals  int
}

func (m *sphereModel) ParamCount() int            { return len(m.center) }
func (m *sphereModel) ValidSampleCount() int      { return len(m.center) }
func (m *sphereModel) ParameterName(i int) string { return fmt.Sprintf("x%d", i) }

func (m *sphereModel) Evaluate(params []float64) float64 {
	m.evals++
	var sum float64
	for i, c := range m.center {
		d := params[i] - c
		sum += d * d
	}
	return sum
}

func quiet() Settings {
	return Settings{Tolerance: 1e-10, Verbosity: -1}
}

// nanModel returns NaN for every statistic and deviate.
type nanModel struct {
	n     int
	evals int
}

func (m *nanModel) ParamCount() int            { return m.n }
func (m *nanModel) ValidSampleCount() int      { return 10 }
func (m *nanModel) ParameterName(i int) string { return fmt.Sprintf("p%d", i) }

func (m *nanModel) Evaluate(params []float64) float64 {
	m.evals++
	return math.NaN()
}

func (m *nanModel) Deviates(params, out []float64) {
	for i := range out {
		out[i] = math.NaN()
	}
}
