package fit

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Function is a parametric 1-D profile shape.
type Function struct {
	Name   string
	Params []string
	Eval   func(x float64, p []float64) float64
}

var functions = map[string]Function{
	"line": {
		Name:   "line",
		Params: []string{"a", "b"},
		Eval: func(x float64, p []float64) float64 {
			return p[0] + p[1]*x
		},
	},
	"quadratic": {
		Name:   "quadratic",
		Params: []string{"a", "b", "c"},
		Eval: func(x float64, p []float64) float64 {
			return p[0] + p[1]*x + p[2]*x*x
		},
	},
	"exponential": {
		Name:   "exponential",
		Params: []string{"I_0", "h", "bkg"},
		Eval: func(x float64, p []float64) float64 {
			return p[0]*math.Exp(-math.Abs(x)/p[1]) + p[2]
		},
	},
	"gaussian": {
		Name:   "gaussian",
		Params: []string{"A", "mu", "sigma", "bkg"},
		Eval: func(x float64, p []float64) float64 {
			z := (x - p[1]) / p[2]
			return p[0]*math.Exp(-0.5*z*z) + p[3]
		},
	},
}

// LookupFunction returns the profile function registered under name.
func LookupFunction(name string) (Function, error) {
	f, ok := functions[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Function{}, fmt.Errorf("unknown model function %q (available: %s)", name, strings.Join(FunctionNames(), ", "))
	}
	return f, nil
}

// FunctionNames lists the registered function names in sorted order.
func FunctionNames() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
