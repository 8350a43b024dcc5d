package opt

import (
	"errors"
	"fmt"
	"math"
)

// Limit holds the fixed/bounds metadata of one parameter.
type Limit struct {
	Fixed    bool
	HasLower bool
	HasUpper bool
	Lower    float64
	Upper    float64
}

// Bounded returns a free parameter limited to [lower, upper].
func Bounded(lower, upper float64) Limit {
	return Limit{HasLower: true, HasUpper: true, Lower: lower, Upper: upper}
}

// FixedLimit returns a limit marking the parameter as fixed at its supplied value.
func FixedLimit() Limit {
	return Limit{Fixed: true}
}

// Limits is the per-parameter limits table shared by all backends.
// A nil table means every parameter is free and unbounded.
type Limits []Limit

// IsFixed reports whether parameter i is fixed. A nil table fixes nothing.
func (l Limits) IsFixed(i int) bool {
	return l != nil && i < len(l) && l[i].Fixed
}

// FreeCount returns the number of non-fixed parameters among n.
func (l Limits) FreeCount(n int) int {
	free := n
	for i := 0; i < n; i++ {
		if l.IsFixed(i) {
			free--
		}
	}
	return free
}

// Validate checks the table against a parameter count.
func (l Limits) Validate(n int) error {
	if l == nil {
		return nil
	}
	if len(l) != n {
		return fmt.Errorf("%w: %d limits for %d parameters", ErrDimensionMismatch, len(l), n)
	}
	for i, lim := range l {
		if lim.Fixed {
			continue
		}
		if lim.HasLower && lim.HasUpper && lim.Lower > lim.Upper {
			return fmt.Errorf("%w: parameter %d has lower %g > upper %g", ErrInvalidLimits, i, lim.Lower, lim.Upper)
		}
	}
	return nil
}

// freeIndices lists the positions of the non-fixed parameters.
func (l Limits) freeIndices(n int) []int {
	idx := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if !l.IsFixed(i) {
			idx = append(idx, i)
		}
	}
	return idx
}

// clampParam clamps value to whatever bounds parameter i carries.
func (l Limits) clampParam(i int, value float64) float64 {
	if l == nil || i >= len(l) || l[i].Fixed {
		return value
	}
	lim := l[i]
	if lim.HasLower && value < lim.Lower {
		value = lim.Lower
	}
	if lim.HasUpper && value > lim.Upper {
		value = lim.Upper
	}
	return value
}

// ClampVector clamps every free parameter of params into its bounds.
func (l Limits) ClampVector(params []float64) {
	for i := range params {
		params[i] = l.clampParam(i, params[i])
	}
}

// freeSpace maps between the reduced vector of free parameters a backend searches
// and the full vector the model evaluates. Fixed entries keep their initial value.
type freeSpace struct {
	limits Limits
	free   []int
	full   []float64
}

func newFreeSpace(params []float64, limits Limits) *freeSpace {
	full := make([]float64, len(params))
	copy(full, params)
	return &freeSpace{
		limits: limits,
		free:   limits.freeIndices(len(params)),
		full:   full,
	}
}

// dim returns the number of free parameters.
func (fs *freeSpace) dim() int { return len(fs.free) }

// reduce extracts the free entries of a full vector.
func (fs *freeSpace) reduce(full []float64) []float64 {
	x := make([]float64, len(fs.free))
	for k, i := range fs.free {
		x[k] = full[i]
	}
	return x
}

// expand writes the free values x into the working full vector, clamped to bounds.
// The returned slice is reused between calls.
func (fs *freeSpace) expand(x []float64) []float64 {
	for k, i := range fs.free {
		fs.full[i] = fs.limits.clampParam(i, x[k])
	}
	return fs.full
}

// store copies the expanded x into dst.
func (fs *freeSpace) store(dst, x []float64) {
	copy(dst, fs.expand(x))
}

func checkVector(params []float64, limits Limits, model Model) error {
	if model == nil {
		return fmt.Errorf("%w: nil model", ErrDimensionMismatch)
	}
	if len(params) != model.ParamCount() {
		return fmt.Errorf("%w: %d values for %d parameters", ErrDimensionMismatch, len(params), model.ParamCount())
	}
	for i, v := range params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: parameter %d (%s) is not finite", ErrDimensionMismatch, i, model.ParameterName(i))
		}
	}
	return limits.Validate(len(params))
}

// inputStatus maps a non-nil checkVector error to its status code.
func inputStatus(err error) Status {
	if errors.Is(err, ErrLimitsRequired) || errors.Is(err, ErrInvalidLimits) {
		return StatusInvalidLimits
	}
	return StatusInvalidInput
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
