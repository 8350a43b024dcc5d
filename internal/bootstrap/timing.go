package bootstrap

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	timingMinMicros = 1
	timingMaxMicros = int64(time.Hour / time.Microsecond)
	timingSigFigs   = 3
)

// TimingSummary reports the distribution of refit durations.
type TimingSummary struct {
	Count int64         `json:"count"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	Max   time.Duration `json:"max"`
}

// timing records refit durations in microseconds.
// HDR histogram RecordValue is NOT thread-safe, so we must hold a lock.
type timing struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

func newTiming() *timing {
	return &timing{hist: hdrhistogram.New(timingMinMicros, timingMaxMicros, timingSigFigs)}
}

func (t *timing) record(d time.Duration) {
	us := d.Microseconds()
	if us < timingMinMicros {
		us = timingMinMicros
	}
	if us > timingMaxMicros {
		us = timingMaxMicros
	}
	t.mu.Lock()
	_ = t.hist.RecordValue(us)
	t.mu.Unlock()
}

func (t *timing) summary() TimingSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hist.TotalCount() == 0 {
		return TimingSummary{}
	}
	return TimingSummary{
		Count: t.hist.TotalCount(),
		Mean:  time.Duration(t.hist.Mean()) * time.Microsecond,
		P50:   time.Duration(t.hist.ValueAtQuantile(50)) * time.Microsecond,
		P95:   time.Duration(t.hist.ValueAtQuantile(95)) * time.Microsecond,
		Max:   time.Duration(t.hist.Max()) * time.Microsecond,
	}
}
