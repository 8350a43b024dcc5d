package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSelectorRouting(t *testing.T) {
	s := DefaultSelector()

	tests := []struct {
		stat Statistic
		want string
	}{
		{ChiSquare, NameLevMar},
		{PoissonMLR, NameLevMar},
		{Cash, NameNMSimplex},
	}
	for _, tt := range tests {
		t.Run(tt.stat.String(), func(t *testing.T) {
			b, err := s.Select(tt.stat)
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Name())
		})
	}
	assert.Equal(t, []string{NameLevMar, NameNMSimplex, NameDiffEvoln}, s.Available())
}

func TestSelectorFallsBackToDE(t *testing.T) {
	s := NewSelector(NewLevMar(), NewDiffEvolution())

	b, err := s.Select(Cash)
	require.NoError(t, err)
	assert.Equal(t, NameDiffEvoln, b.Name())
}

func TestSelectorMissingBackend(t *testing.T) {
	s := NewSelector(NewDiffEvolution())
	_, err := s.Select(ChiSquare)
	assert.ErrorIs(t, err, ErrNoBackend)

	s = NewSelector(NewLevMar())
	_, err = s.Select(Cash)
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestSelectorFromNames(t *testing.T) {
	s, err := SelectorFromNames([]string{"levmar", "mayfly", "de"})
	require.NoError(t, err)

	b, err := s.Select(Cash)
	require.NoError(t, err)
	assert.Equal(t, NameMayfly, b.Name())

	_, err = SelectorFromNames([]string{"bogus"})
	assert.Error(t, err)

	s, err = SelectorFromNames(nil)
	require.NoError(t, err)
	assert.Len(t, s.Available(), 3)
}
