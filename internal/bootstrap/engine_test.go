package bootstrap

import (
	"context"
	"math"
	"testing"

	"github.com/cwbudde/bootfit/internal/opt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func levmarEngine(cfg Config, observers ...Observer) *Engine {
	return NewEngine(opt.NewSelector(opt.NewLevMar()), cfg, observers...)
}

func TestRunFixedRowsConstant(t *testing.T) {
	model := newMeanModel(40, 1)
	best := []float64{10, 0.25}

	res, err := levmarEngine(Config{Iterations: 25, Tolerance: 1e-8, Seed: 7}).
		Run(context.Background(), model, best, offsetFixed())
	require.NoError(t, err)

	require.Equal(t, 25, res.Samples.Iterations())
	for i := 0; i < res.Samples.Iterations(); i++ {
		assert.Equal(t, 0.25, res.Samples.At(1, i))
	}

	fixed := res.Summaries[1]
	assert.True(t, fixed.Fixed)
	assert.Equal(t, 0.25, fixed.BestFit)
	assert.True(t, math.IsNaN(fixed.HalfWidth))
	assert.False(t, fixed.Defined())

	free := res.Summaries[0]
	assert.Equal(t, "mu", free.Name)
	assert.Greater(t, free.HalfWidth, 0.0)
	assert.Greater(t, free.StdDev, 0.0)
	assert.Equal(t, 25, free.N)
	assert.Equal(t, 25, model.resamples)
	assert.True(t, model.bootstrap)
}

func TestRunZeroIterations(t *testing.T) {
	res, err := levmarEngine(Config{Iterations: 0, Seed: 3}).
		Run(context.Background(), newMeanModel(10, 1), []float64{10, 0}, offsetFixed())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Samples.Iterations())
	s := res.Summaries[0]
	assert.Equal(t, 0, s.N)
	assert.True(t, math.IsNaN(s.Mean))
	assert.True(t, math.IsNaN(s.StdDev))
	assert.True(t, math.IsNaN(s.Lower))
	assert.True(t, math.IsNaN(s.Upper))
	assert.False(t, s.Defined())
}

func TestRunReproducibleWithSeed(t *testing.T) {
	cfg := Config{Iterations: 30, Tolerance: 1e-8, Seed: 1234}

	r1, err := levmarEngine(cfg).Run(context.Background(), newMeanModel(50, 2), []float64{10, 0}, offsetFixed())
	require.NoError(t, err)
	r2, err := levmarEngine(cfg).Run(context.Background(), newMeanModel(50, 2), []float64{10, 0}, offsetFixed())
	require.NoError(t, err)
	assert.Equal(t, r1.Samples.Row(0), r2.Samples.Row(0))

	cfg.Seed = 4321
	r3, err := levmarEngine(cfg).Run(context.Background(), newMeanModel(50, 2), []float64{10, 0}, offsetFixed())
	require.NoError(t, err)
	assert.NotEqual(t, r1.Samples.Row(0), r3.Samples.Row(0))
}

func TestRunParallelMatchesSequential(t *testing.T) {
	cfg := Config{Iterations: 40, Tolerance: 1e-8, Seed: 99}
	seq, err := levmarEngine(cfg).Run(context.Background(), newMeanModel(60, 5), []float64{10, 0}, offsetFixed())
	require.NoError(t, err)

	cfg.Workers = 4
	par, err := levmarEngine(cfg).Run(context.Background(), newMeanModel(60, 5), []float64{10, 0}, offsetFixed())
	require.NoError(t, err)

	assert.Equal(t, seq.Samples.Row(0), par.Samples.Row(0))
	assert.Equal(t, seq.Statuses, par.Statuses)
	assert.Equal(t, seq.Summaries[0], par.Summaries[0])
}

func TestRunParallelRequiresCloner(t *testing.T) {
	_, err := levmarEngine(Config{Iterations: 5, Workers: 2, Seed: 1}).
		Run(context.Background(), uncloneable{newMeanModel(10, 1)}, []float64{10, 0}, offsetFixed())
	assert.ErrorIs(t, err, ErrCloneRequired)
}

func TestRunRoutesByStatistic(t *testing.T) {
	tests := []struct {
		stat     opt.Statistic
		gradient int64
		simplex  int64
	}{
		{opt.ChiSquare, 6, 0},
		{opt.PoissonMLR, 6, 0},
		{opt.Cash, 0, 6},
	}

	for _, tt := range tests {
		t.Run(tt.stat.String(), func(t *testing.T) {
			grad := &stubBackend{name: "grad", kind: opt.Gradient}
			simplex := &stubBackend{name: "simplex", kind: opt.DerivativeFree}
			de := &stubBackend{name: "de", kind: opt.DerivativeFree}
			engine := NewEngine(opt.NewSelector(grad, simplex, de), Config{Iterations: 6, Statistic: tt.stat, Seed: 1})

			_, err := engine.Run(context.Background(), newMeanModel(10, 1), []float64{10, 0}, offsetFixed())
			require.NoError(t, err)
			assert.Equal(t, tt.gradient, grad.calls.Load())
			assert.Equal(t, tt.simplex, simplex.calls.Load())
			assert.Zero(t, de.calls.Load())
		})
	}
}

func TestRunFailurePolicies(t *testing.T) {
	everyOther := func(call int64) bool { return call%2 == 0 }

	t.Run("keep", func(t *testing.T) {
		b := &stubBackend{name: "grad", kind: opt.Gradient, fail: everyOther}
		res, err := NewEngine(opt.NewSelector(b), Config{Iterations: 10, Seed: 1}).
			Run(context.Background(), newMeanModel(10, 1), []float64{10, 0}, offsetFixed())
		require.NoError(t, err)
		assert.Equal(t, 5, res.Failed)
		assert.Equal(t, 10, res.Summaries[0].N)
		assert.Nil(t, res.Included())
	})

	t.Run("exclude", func(t *testing.T) {
		b := &stubBackend{name: "grad", kind: opt.Gradient, fail: everyOther}
		res, err := NewEngine(opt.NewSelector(b), Config{Iterations: 10, Seed: 1, FailurePolicy: ExcludeFailed}).
			Run(context.Background(), newMeanModel(10, 1), []float64{10, 0}, offsetFixed())
		require.NoError(t, err)
		assert.Equal(t, 5, res.Failed)
		assert.Equal(t, 5, res.Summaries[0].N)
		assert.Equal(t, 10.0, res.Summaries[0].Mean)
		// failed columns stay in the matrix
		assert.Equal(t, -1.0, res.Samples.At(0, 1))
	})

	t.Run("retry", func(t *testing.T) {
		b := &stubBackend{name: "grad", kind: opt.Gradient, fail: func(call int64) bool { return call <= 2 }}
		model := newMeanModel(10, 1)
		res, err := NewEngine(opt.NewSelector(b), Config{Iterations: 3, Seed: 1, FailurePolicy: RetryFailed, MaxRetries: 2}).
			Run(context.Background(), model, []float64{10, 0}, offsetFixed())
		require.NoError(t, err)
		assert.Equal(t, 0, res.Failed)
		assert.Equal(t, []int{2, 0, 0}, res.Retries)
		assert.Equal(t, int64(5), b.calls.Load())
		assert.Equal(t, 5, model.resamples)
	})

	t.Run("retry gives up", func(t *testing.T) {
		b := &stubBackend{name: "grad", kind: opt.Gradient, fail: func(int64) bool { return true }}
		res, err := NewEngine(opt.NewSelector(b), Config{Iterations: 2, Seed: 1, FailurePolicy: RetryFailed, MaxRetries: 1}).
			Run(context.Background(), newMeanModel(10, 1), []float64{10, 0}, offsetFixed())
		require.NoError(t, err)
		assert.Equal(t, 2, res.Failed)
		assert.Equal(t, []int{1, 1}, res.Retries)
	})
}

func TestRunStructuralErrorAborts(t *testing.T) {
	model := newMeanModel(10, 1)
	engine := NewEngine(opt.NewSelector(opt.NewDiffEvolution()), Config{Iterations: 5, Statistic: opt.Cash, Seed: 1})

	_, err := engine.Run(context.Background(), model, []float64{10, 0}, offsetFixed())
	assert.ErrorIs(t, err, opt.ErrLimitsRequired)
	assert.Zero(t, model.resamples)
	assert.False(t, model.bootstrap, "model must stay out of bootstrap mode")
}

func TestRunInvalidInput(t *testing.T) {
	_, err := levmarEngine(Config{Iterations: 1}).Run(context.Background(), newMeanModel(5, 1), []float64{1}, nil)
	assert.ErrorIs(t, err, ErrVectorMismatch)

	_, err = levmarEngine(Config{Iterations: -1}).Run(context.Background(), newMeanModel(5, 1), []float64{1, 0}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewEngine(opt.NewSelector(), Config{Iterations: 1}).Run(context.Background(), newMeanModel(5, 1), []float64{1, 0}, nil)
	assert.ErrorIs(t, err, opt.ErrNoBackend)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := newMeanModel(10, 1)
	_, err := levmarEngine(Config{Iterations: 5, Seed: 1}).Run(ctx, model, []float64{10, 0}, offsetFixed())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, model.resamples)

	_, err = levmarEngine(Config{Iterations: 5, Seed: 1, Workers: 2}).Run(ctx, newMeanModel(10, 1), []float64{10, 0}, offsetFixed())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunNotifiesObservers(t *testing.T) {
	var records []IterationRecord
	obs := ObserverFunc(func(rec IterationRecord) { records = append(records, rec) })

	res, err := levmarEngine(Config{Iterations: 8, Tolerance: 1e-8, Seed: 5}, obs).
		Run(context.Background(), newMeanModel(20, 1), []float64{10, 0}, offsetFixed())
	require.NoError(t, err)

	require.Len(t, records, 8)
	for i, rec := range records {
		assert.Equal(t, i, rec.Index)
		assert.Equal(t, opt.NameLevMar, rec.Backend)
		assert.Equal(t, res.Samples.Column(i), rec.Params)
	}
	assert.Equal(t, int64(8), res.Timing.Count)
}

func TestParseFailurePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want FailurePolicy
	}{
		{"", KeepFailed},
		{"keep", KeepFailed},
		{"Exclude", ExcludeFailed},
		{" retry ", RetryFailed},
	}
	for _, tt := range tests {
		got, err := ParseFailurePolicy(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseFailurePolicy("drop")
	assert.Error(t, err)
}
