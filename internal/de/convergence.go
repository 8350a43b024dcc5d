package de

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines when a run of best-energy values counts as converged
type ConvergenceConfig struct {
	// Patience is the number of consecutive checks with no significant improvement
	// before the solver stops
	Patience int

	// Threshold is the minimum relative improvement that counts as progress.
	// Relative improvement = (lastSignificant - energy) / |lastSignificant|
	Threshold float64
}

// ConvergenceTracker follows the best energy of a population and detects stagnation
type ConvergenceTracker struct {
	config          ConvergenceConfig
	checks          int
	bestEnergy      float64 // Best energy ever seen
	lastSignificant float64 // Last energy that was a significant improvement
	staleCount      int     // Checks without significant improvement
	verbose         bool
}

// NewConvergenceTracker creates a tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		bestEnergy:      math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records the current best energy and returns true once the tracker
// has seen Patience consecutive checks without significant improvement
func (c *ConvergenceTracker) Update(energy float64) bool {
	c.checks++

	if energy < c.bestEnergy {
		c.bestEnergy = energy
	}

	// First value only establishes the reference point
	if c.checks == 1 {
		c.lastSignificant = energy
		return false
	}

	improvement := relativeImprovement(c.lastSignificant, energy)

	if improvement >= c.config.Threshold {
		c.lastSignificant = energy
		c.staleCount = 0
		if c.verbose {
			slog.Debug("DE energy improvement",
				"energy", energy,
				"relative_improvement", improvement,
			)
		}
		return false
	}

	c.staleCount++
	if c.verbose {
		slog.Debug("No significant DE energy improvement",
			"energy", energy,
			"last_significant", c.lastSignificant,
			"relative_improvement", improvement,
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
		)
	}

	return c.staleCount >= c.config.Patience
}

// BestEnergy returns the best energy seen so far
func (c *ConvergenceTracker) BestEnergy() float64 {
	return c.bestEnergy
}

// StaleCount returns the current number of checks without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

func relativeImprovement(reference, energy float64) float64 {
	denom := math.Abs(reference)
	if denom == 0 {
		if energy < reference {
			return math.Inf(1)
		}
		return 0
	}
	return (reference - energy) / denom
}
