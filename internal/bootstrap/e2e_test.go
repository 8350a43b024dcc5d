package bootstrap_test

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/bootfit/internal/bootstrap"
	"github.com/cwbudde/bootfit/internal/fit"
	"github.com/cwbudde/bootfit/internal/opt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadraticProfile builds noisy samples of 2 + 0.5x + 0.01x² with unit-half errors.
func quadraticProfile(t *testing.T) *fit.ProfileModel {
	t.Helper()
	rng := rand.New(rand.NewSource(2013))
	data := &fit.Data{}
	for i := 0; i < 40; i++ {
		x := float64(i)
		data.X = append(data.X, x)
		data.Y = append(data.Y, 2+0.5*x+0.01*x*x+0.5*rng.NormFloat64())
		data.Err = append(data.Err, 0.5)
	}
	fn, err := fit.LookupFunction("quadratic")
	require.NoError(t, err)
	model, err := fit.NewProfileModel(fn, data, fit.ModelConfig{Statistic: opt.ChiSquare})
	require.NoError(t, err)
	return model
}

func TestBootstrapLinearModelEndToEnd(t *testing.T) {
	limits := opt.Limits{opt.Bounded(-10, 10), opt.Bounded(-5, 5), opt.FixedLimit()}
	selector := opt.DefaultSelector()
	settings := opt.Settings{Tolerance: 1e-6, Verbosity: -1}

	runOnce := func(workers int) *bootstrap.Result {
		model := quadraticProfile(t)
		best, err := fit.Fit(model, []float64{1, 1, 0.01}, limits, selector, settings)
		require.NoError(t, err)
		require.True(t, best.Status.OK())

		engine := bootstrap.NewEngine(selector, bootstrap.Config{
			Iterations: 50,
			Tolerance:  1e-6,
			Statistic:  opt.ChiSquare,
			Seed:       20130111,
			Workers:    workers,
		})
		res, err := engine.Run(context.Background(), model, best.Params, limits)
		require.NoError(t, err)
		return res
	}

	r1 := runOnce(1)
	r2 := runOnce(1)
	r3 := runOnce(3)

	for p := 0; p < 3; p++ {
		assert.Equal(t, r1.Samples.Row(p), r2.Samples.Row(p), "row %d differs between runs", p)
		assert.Equal(t, r1.Samples.Row(p), r3.Samples.Row(p), "row %d differs with workers", p)
	}

	assert.Equal(t, "a\tb\tc", r1.Header)
	for _, s := range r1.Summaries[:2] {
		assert.False(t, s.Fixed)
		assert.Greater(t, s.HalfWidth, 0.0, "half-width of %s", s.Name)
	}
	fixed := r1.Summaries[2]
	assert.True(t, fixed.Fixed)
	assert.True(t, math.IsNaN(fixed.HalfWidth))
	for i := 0; i < r1.Samples.Iterations(); i++ {
		assert.Equal(t, 0.01, r1.Samples.At(2, i))
	}
}
