// Package de implements a bounded differential-evolution minimizer in the style of
// Storn and Price, with the classic exponential and binomial crossover strategies.
package de

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
)

// Strategy selects the mutation vector and crossover scheme.
type Strategy int

const (
	Best1Exp Strategy = iota
	Rand1Exp
	RandToBest1Exp
	Best2Exp
	Rand2Exp
	Best1Bin
	Rand1Bin
	RandToBest1Bin
	Best2Bin
	Rand2Bin
)

func (s Strategy) String() string {
	names := [...]string{
		"best1exp", "rand1exp", "rand-to-best1exp", "best2exp", "rand2exp",
		"best1bin", "rand1bin", "rand-to-best1bin", "best2bin", "rand2bin",
	}
	if s < 0 || int(s) >= len(names) {
		return fmt.Sprintf("strategy(%d)", int(s))
	}
	return names[s]
}

func (s Strategy) binomial() bool { return s >= Best1Bin }

// donors returns how many distinct population members besides the target a strategy draws.
func (s Strategy) donors() int {
	switch s {
	case Best2Exp, Best2Bin:
		return 4
	case Rand2Exp, Rand2Bin:
		return 5
	case Rand1Exp, Rand1Bin:
		return 3
	default:
		return 2
	}
}

const (
	// DefaultCheckInterval is the number of generations between convergence checks.
	DefaultCheckInterval = 10
	// DefaultPatience is the number of stagnant checks that stop the solver.
	DefaultPatience = 3
)

// Config describes one minimization problem and the solver controls.
type Config struct {
	Dim            int
	PopSize        int
	Lower, Upper   []float64
	Strategy       Strategy
	Scale          float64 // F, the differential weight
	Crossover      float64 // CR, the crossover probability
	Tolerance      float64
	MaxGenerations int
	CheckInterval  int
	Patience       int
	Rand           *rand.Rand
	Energy         func(trial []float64) float64
	Verbose        int
}

// Result is the outcome of Solve.
type Result struct {
	Best        []float64
	Energy      float64
	Generations int
	Evaluations int
	Converged   bool
}

var (
	ErrPopulationTooSmall = errors.New("de: population too small for strategy")
	ErrBadBounds          = errors.New("de: bounds do not match dimension")
)

// Solver holds the population state of a differential-evolution run.
type Solver struct {
	cfg        Config
	rng        *rand.Rand
	population [][]float64
	energies   []float64
	best       []float64
	bestEnergy float64
	trial      []float64
	evals      int
}

// New validates cfg and allocates the population.
func New(cfg Config) (*Solver, error) {
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("de: dimension must be positive, got %d", cfg.Dim)
	}
	if len(cfg.Lower) != cfg.Dim || len(cfg.Upper) != cfg.Dim {
		return nil, fmt.Errorf("%w: dim=%d lower=%d upper=%d", ErrBadBounds, cfg.Dim, len(cfg.Lower), len(cfg.Upper))
	}
	for i := range cfg.Lower {
		if cfg.Lower[i] > cfg.Upper[i] {
			return nil, fmt.Errorf("%w: lower[%d]=%g > upper[%d]=%g", ErrBadBounds, i, cfg.Lower[i], i, cfg.Upper[i])
		}
	}
	if cfg.PopSize < cfg.Strategy.donors()+1 {
		return nil, fmt.Errorf("%w: %s needs %d members, got %d", ErrPopulationTooSmall, cfg.Strategy, cfg.Strategy.donors()+1, cfg.PopSize)
	}
	if cfg.Energy == nil {
		return nil, errors.New("de: energy function is required")
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.Patience <= 0 {
		cfg.Patience = DefaultPatience
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	pop := make([][]float64, cfg.PopSize)
	for i := range pop {
		pop[i] = make([]float64, cfg.Dim)
	}

	return &Solver{
		cfg:        cfg,
		rng:        rng,
		population: pop,
		energies:   make([]float64, cfg.PopSize),
		best:       make([]float64, cfg.Dim),
		bestEnergy: math.Inf(1),
		trial:      make([]float64, cfg.Dim),
	}, nil
}

// Solve evolves the population until the tolerance criterion or the generation cap.
func (s *Solver) Solve() Result {
	s.initialize()

	tracker := NewConvergenceTracker(ConvergenceConfig{
		Patience:  s.cfg.Patience,
		Threshold: s.cfg.Tolerance,
	})
	tracker.verbose = s.cfg.Verbose > 0
	tracker.Update(s.bestEnergy)

	converged := false
	generation := 0
	for generation < s.cfg.MaxGenerations {
		s.generation()
		generation++

		if s.cfg.Verbose > 0 && generation%(5*s.cfg.CheckInterval) == 0 {
			slog.Debug("DE generation", "generation", generation, "best_energy", s.bestEnergy)
		}

		if s.cfg.Tolerance > 0 && generation%s.cfg.CheckInterval == 0 {
			if tracker.Update(s.bestEnergy) {
				converged = true
				break
			}
		}
	}

	best := make([]float64, s.cfg.Dim)
	copy(best, s.best)

	return Result{
		Best:        best,
		Energy:      s.bestEnergy,
		Generations: generation,
		Evaluations: s.evals,
		Converged:   converged,
	}
}

// initialize spreads the population uniformly over the bounds. Member 0 seeds
// the best vector so it stays inside the bounds even when no energy is finite.
func (s *Solver) initialize() {
	for i, member := range s.population {
		for d := range member {
			member[d] = s.uniform(d)
		}
		s.energies[i] = s.energy(member)
		if i == 0 || s.energies[i] < s.bestEnergy {
			s.bestEnergy = s.energies[i]
			copy(s.best, member)
		}
	}
}

func (s *Solver) generation() {
	for i := range s.population {
		s.buildTrial(i)
		e := s.energy(s.trial)
		if e <= s.energies[i] {
			copy(s.population[i], s.trial)
			s.energies[i] = e
			if e < s.bestEnergy {
				s.bestEnergy = e
				copy(s.best, s.trial)
			}
		}
	}
}

// buildTrial writes the mutated and crossed-over trial vector for candidate i.
func (s *Solver) buildTrial(candidate int) {
	r := s.pickDonors(candidate, s.cfg.Strategy.donors())
	pop := s.population
	f := s.cfg.Scale
	copy(s.trial, pop[candidate])

	mutate := func(d int) float64 {
		switch s.cfg.Strategy {
		case Best1Exp, Best1Bin:
			return s.best[d] + f*(pop[r[0]][d]-pop[r[1]][d])
		case Rand1Exp, Rand1Bin:
			return pop[r[0]][d] + f*(pop[r[1]][d]-pop[r[2]][d])
		case RandToBest1Exp, RandToBest1Bin:
			return s.trial[d] + f*(s.best[d]-s.trial[d]) + f*(pop[r[0]][d]-pop[r[1]][d])
		case Best2Exp, Best2Bin:
			return s.best[d] + f*(pop[r[0]][d]+pop[r[1]][d]-pop[r[2]][d]-pop[r[3]][d])
		default:
			return pop[r[4]][d] + f*(pop[r[0]][d]+pop[r[1]][d]-pop[r[2]][d]-pop[r[3]][d])
		}
	}

	dim := s.cfg.Dim
	d := s.rng.Intn(dim)
	if s.cfg.Strategy.binomial() {
		for k := 0; k < dim; k++ {
			if s.rng.Float64() < s.cfg.Crossover || k == dim-1 {
				s.trial[d] = mutate(d)
			}
			d = (d + 1) % dim
		}
	} else {
		for k := 0; k < dim; k++ {
			s.trial[d] = mutate(d)
			d = (d + 1) % dim
			if s.rng.Float64() >= s.cfg.Crossover {
				break
			}
		}
	}

	for d := range s.trial {
		if s.trial[d] < s.cfg.Lower[d] || s.trial[d] > s.cfg.Upper[d] {
			s.trial[d] = s.uniform(d)
		}
	}
}

// pickDonors draws n distinct member indices different from candidate.
func (s *Solver) pickDonors(candidate, n int) []int {
	picked := make([]int, 0, n)
	for len(picked) < n {
		r := s.rng.Intn(len(s.population))
		if r == candidate || contains(picked, r) {
			continue
		}
		picked = append(picked, r)
	}
	return picked
}

func (s *Solver) uniform(d int) float64 {
	lo, hi := s.cfg.Lower[d], s.cfg.Upper[d]
	return lo + s.rng.Float64()*(hi-lo)
}

func (s *Solver) energy(x []float64) float64 {
	s.evals++
	e := s.cfg.Energy(x)
	if math.IsNaN(e) {
		return math.Inf(1)
	}
	return e
}

func contains(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
