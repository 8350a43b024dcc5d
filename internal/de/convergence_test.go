package de

import (
	"math"
	"testing"
)

func TestConvergenceTrackerImprovement(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Patience: 3, Threshold: 0.01})

	energies := []float64{100, 90, 80, 70, 60}
	for i, e := range energies {
		if tracker.Update(e) {
			t.Fatalf("Should not converge at check %d with steady improvement", i)
		}
	}

	if tracker.BestEnergy() != 60 {
		t.Errorf("Expected best energy 60, got %f", tracker.BestEnergy())
	}
	if tracker.StaleCount() != 0 {
		t.Errorf("Expected stale count 0, got %d", tracker.StaleCount())
	}
}

func TestConvergenceTrackerStagnation(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Patience: 3, Threshold: 0.01})

	tracker.Update(100)
	tracker.Update(50)

	if tracker.Update(49.9) {
		t.Fatal("Converged after 1 stale check")
	}
	if tracker.Update(49.8) {
		t.Fatal("Converged after 2 stale checks")
	}
	if !tracker.Update(49.7) {
		t.Fatal("Expected convergence after 3 stale checks")
	}
}

func TestConvergenceTrackerResetOnSignificant(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Patience: 2, Threshold: 0.1})

	tracker.Update(100)
	tracker.Update(99)
	if tracker.StaleCount() != 1 {
		t.Fatalf("Expected stale count 1, got %d", tracker.StaleCount())
	}
	tracker.Update(50)
	if tracker.StaleCount() != 0 {
		t.Errorf("Significant improvement should reset stale count, got %d", tracker.StaleCount())
	}
}

func TestRelativeImprovementZeroReference(t *testing.T) {
	if got := relativeImprovement(0, 0); got != 0 {
		t.Errorf("Expected 0 for 0 -> 0, got %f", got)
	}
	if got := relativeImprovement(0, -1); !math.IsInf(got, 1) {
		t.Errorf("Expected +Inf for 0 -> -1, got %f", got)
	}
	if got := relativeImprovement(-10, -15); got != 0.5 {
		t.Errorf("Expected 0.5 for -10 -> -15, got %f", got)
	}
}
