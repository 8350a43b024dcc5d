package bootstrap

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSamplesLayout(t *testing.T) {
	m := NewSampleMatrix(2, 3)
	m.SetColumn(0, []float64{1.5, 0.1})
	m.SetColumn(1, []float64{2, 1e-12})
	m.SetColumn(2, []float64{-3.25, 123456.789})

	var buf bytes.Buffer
	require.NoError(t, WriteSamples(&buf, "a\tb", m))

	want := "a\tb\n1.5\t0.1\n2\t1e-12\n-3.25\t123456.789\n"
	assert.Equal(t, want, buf.String())

	names, back, err := ReadSamples(strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Equal(t, m.Row(0), back.Row(0))
	assert.Equal(t, m.Row(1), back.Row(1))
}

func TestWriteSamplesHeaderMismatch(t *testing.T) {
	err := WriteSamples(&bytes.Buffer{}, "a", NewSampleMatrix(2, 1))
	assert.Error(t, err)
}

func TestSaveSamplesBadPath(t *testing.T) {
	err := SaveSamples(filepath.Join(t.TempDir(), "missing", "out.tsv"), "a", NewSampleMatrix(1, 1))
	assert.Error(t, err)
}

func TestSaveAndLoadSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.tsv")
	m := NewSampleMatrix(1, 2)
	m.Set(0, 0, 0.5)
	m.Set(0, 1, 0.75)

	require.NoError(t, SaveSamples(path, "x", m))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x\n0.5\n0.75\n", string(data))

	names, back, err := LoadSamples(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, names)
	assert.Equal(t, 2, back.Iterations())
}

func TestReadSamplesErrors(t *testing.T) {
	_, _, err := ReadSamples(strings.NewReader(""))
	assert.Error(t, err)

	_, _, err = ReadSamples(strings.NewReader("a\tb\n1\tx\n"))
	assert.Error(t, err)

	_, _, err = ReadSamples(strings.NewReader("a\tb\n1\n"))
	assert.Error(t, err)
}
