package opt

import (
	"fmt"
	"strings"
)

// Backend registry names.
const (
	NameLevMar    = "levmar"
	NameNMSimplex = "nmsimplex"
	NameDiffEvoln = "de"
	NameMayfly    = "mayfly"
)

// Selector routes a fit statistic to a backend. Least-squares statistics go to the
// gradient backend; everything else goes to the first derivative-free backend in
// registration order.
type Selector struct {
	gradient  Backend
	derivFree []Backend
}

// NewSelector builds a selector from the available backends, in priority order.
// A second gradient backend is ignored.
func NewSelector(backends ...Backend) *Selector {
	s := &Selector{}
	for _, b := range backends {
		if b == nil {
			continue
		}
		switch b.Kind() {
		case Gradient:
			if s.gradient == nil {
				s.gradient = b
			}
		case DerivativeFree:
			s.derivFree = append(s.derivFree, b)
		}
	}
	return s
}

// DefaultSelector registers levmar, nmsimplex and de.
func DefaultSelector() *Selector {
	return NewSelector(NewLevMar(), NewNMSimplex(), NewDiffEvolution())
}

// NewBackend constructs a backend by registry name.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameLevMar:
		return NewLevMar(), nil
	case NameNMSimplex, "simplex", "nelder-mead":
		return NewNMSimplex(), nil
	case NameDiffEvoln, "diffevoln", "differential-evolution":
		return NewDiffEvolution(), nil
	case NameMayfly:
		return NewMayfly(DefaultMayflyIterations, DefaultMayflyPopulation), nil
	default:
		return nil, fmt.Errorf("unknown optimizer backend: %q", name)
	}
}

// SelectorFromNames builds a selector from registry names; empty means the default set.
func SelectorFromNames(names []string) (*Selector, error) {
	if len(names) == 0 {
		return DefaultSelector(), nil
	}
	backends := make([]Backend, 0, len(names))
	for _, name := range names {
		b, err := NewBackend(name)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return NewSelector(backends...), nil
}

// Select returns the backend for a statistic.
func (s *Selector) Select(stat Statistic) (Backend, error) {
	if stat.LeastSquares() {
		if s.gradient == nil {
			return nil, fmt.Errorf("%w: no gradient backend for %s", ErrNoBackend, stat)
		}
		return s.gradient, nil
	}
	if len(s.derivFree) == 0 {
		return nil, fmt.Errorf("%w: no derivative-free backend for %s", ErrNoBackend, stat)
	}
	return s.derivFree[0], nil
}

// Available lists the registered backend names, gradient first.
func (s *Selector) Available() []string {
	names := make([]string, 0, len(s.derivFree)+1)
	if s.gradient != nil {
		names = append(names, s.gradient.Name())
	}
	for _, b := range s.derivFree {
		names = append(names, b.Name())
	}
	return names
}
