package bootstrap

// SampleMatrix stores one converged parameter vector per bootstrap iteration.
// Storage is row-major by parameter: row p holds every iteration's value of parameter p.
type SampleMatrix struct {
	params     int
	iterations int
	data       []float64
}

// NewSampleMatrix allocates a zeroed params × iterations matrix.
func NewSampleMatrix(params, iterations int) *SampleMatrix {
	return &SampleMatrix{
		params:     params,
		iterations: iterations,
		data:       make([]float64, params*iterations),
	}
}

func (m *SampleMatrix) Params() int     { return m.params }
func (m *SampleMatrix) Iterations() int { return m.iterations }

// At returns parameter p of iteration i.
func (m *SampleMatrix) At(p, i int) float64 {
	return m.data[p*m.iterations+i]
}

// Set stores parameter p of iteration i.
func (m *SampleMatrix) Set(p, i int, v float64) {
	m.data[p*m.iterations+i] = v
}

// SetColumn stores a full parameter vector as iteration i.
func (m *SampleMatrix) SetColumn(i int, values []float64) {
	for p := 0; p < m.params; p++ {
		m.Set(p, i, values[p])
	}
}

// Row returns a copy of every iteration's value of parameter p.
func (m *SampleMatrix) Row(p int) []float64 {
	row := make([]float64, m.iterations)
	copy(row, m.data[p*m.iterations:(p+1)*m.iterations])
	return row
}

// Column returns a copy of the parameter vector of iteration i.
func (m *SampleMatrix) Column(i int) []float64 {
	col := make([]float64, m.params)
	for p := range col {
		col[p] = m.At(p, i)
	}
	return col
}

// rowWhere copies the values of parameter p for the iterations include marks.
// A nil include selects every iteration.
func (m *SampleMatrix) rowWhere(p int, include []bool) []float64 {
	if include == nil {
		return m.Row(p)
	}
	row := make([]float64, 0, m.iterations)
	for i := 0; i < m.iterations; i++ {
		if include[i] {
			row = append(row, m.At(p, i))
		}
	}
	return row
}
