package bootstrap

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// WriteSamples writes the matrix as tab-separated text: the header line with the
// parameter names, then one line per iteration with one column per parameter.
func WriteSamples(w io.Writer, header string, m *SampleMatrix) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	names := strings.Split(header, "\t")
	if len(names) != m.Params() {
		return fmt.Errorf("bootstrap: header has %d names for %d parameters", len(names), m.Params())
	}
	if err := cw.Write(names); err != nil {
		return err
	}

	record := make([]string, m.Params())
	for i := 0; i < m.Iterations(); i++ {
		for p := range record {
			record[p] = strconv.FormatFloat(m.At(p, i), 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveSamples writes the matrix to path, replacing any existing file.
func SaveSamples(path, header string, m *SampleMatrix) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create samples file: %w", err)
	}
	if err := WriteSamples(f, header, m); err != nil {
		f.Close()
		return fmt.Errorf("failed to write samples file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close samples file: %w", err)
	}
	return nil
}

// ReadSamples parses a file written by WriteSamples and returns the parameter names
// and the sample matrix.
func ReadSamples(r io.Reader) ([]string, *SampleMatrix, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("bootstrap: samples file is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: failed to read header: %w", err)
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: failed to read samples: %w", err)
	}

	m := NewSampleMatrix(len(header), len(records))
	for i, rec := range records {
		for p, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("bootstrap: line %d column %d: %w", i+2, p+1, err)
			}
			m.Set(p, i, v)
		}
	}
	return header, m, nil
}

// LoadSamples reads a samples file from disk.
func LoadSamples(path string) ([]string, *SampleMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open samples file: %w", err)
	}
	defer f.Close()
	return ReadSamples(f)
}
