package bootstrap

import (
	"time"

	"github.com/cwbudde/bootfit/internal/opt"
)

// IterationRecord describes one completed bootstrap refit.
type IterationRecord struct {
	Index     int           `json:"index"`
	Seed      int64         `json:"seed"`
	Backend   string        `json:"backend"`
	Status    opt.Status    `json:"status"`
	Statistic float64       `json:"statistic"`
	Params    []float64     `json:"params"`
	Duration  time.Duration `json:"duration_ns"`
	Retries   int           `json:"retries"`
}

// Observer receives iteration records as they complete. With several workers records
// arrive in completion order, one at a time.
type Observer interface {
	OnIteration(rec IterationRecord)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(rec IterationRecord)

func (f ObserverFunc) OnIteration(rec IterationRecord) { f(rec) }
