package fit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Data is a 1-D profile: sample positions, values and optional per-sample errors.
// Err is nil when the input carried no error column.
type Data struct {
	X   []float64
	Y   []float64
	Err []float64
}

// ErrNoData is returned when a profile contains no usable samples.
var ErrNoData = errors.New("fit: profile contains no samples")

// Len returns the number of samples.
func (d *Data) Len() int { return len(d.X) }

// HasErrors reports whether per-sample errors were supplied.
func (d *Data) HasErrors() bool { return d.Err != nil }

// Validate checks the columns have matching lengths.
func (d *Data) Validate() error {
	if len(d.X) == 0 {
		return ErrNoData
	}
	if len(d.Y) != len(d.X) {
		return fmt.Errorf("fit: %d x values but %d y values", len(d.X), len(d.Y))
	}
	if d.Err != nil && len(d.Err) != len(d.X) {
		return fmt.Errorf("fit: %d x values but %d errors", len(d.X), len(d.Err))
	}
	return nil
}

// usable reports whether sample i can enter the fit statistic.
func (d *Data) usable(i int) bool {
	if !finite(d.X[i]) || !finite(d.Y[i]) {
		return false
	}
	if d.Err != nil {
		return finite(d.Err[i]) && d.Err[i] > 0
	}
	return true
}

// ReadData parses whitespace-delimited "x y [err]" lines. Blank lines and lines
// starting with '#' are skipped. Either every data line has an error column or none does.
func ReadData(r io.Reader) (*Data, error) {
	d := &Data{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	columns := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("fit: line %d: expected 2 or 3 columns, got %d", lineNo, len(fields))
		}
		if columns == 0 {
			columns = len(fields)
		} else if len(fields) != columns {
			return nil, fmt.Errorf("fit: line %d: expected %d columns, got %d", lineNo, columns, len(fields))
		}

		values := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("fit: line %d: %w", lineNo, err)
			}
			values[i] = v
		}

		d.X = append(d.X, values[0])
		d.Y = append(d.Y, values[1])
		if columns == 3 {
			d.Err = append(d.Err, values[2])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("fit: failed to read profile: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadData reads a profile file from disk.
func LoadData(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile: %w", err)
	}
	defer f.Close()

	d, err := ReadData(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
