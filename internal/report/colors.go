// Package report prints fit and bootstrap results for the console.
package report

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Header    *color.Color
	Name      *color.Color
	Value     *color.Color
	Fixed     *color.Color
	Success   *color.Color
	Warn      *color.Color
	Error     *color.Color
	Undefined *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Header:    color.New(color.FgCyan, color.Bold),
		Name:      color.New(color.FgBlue, color.Bold),
		Value:     color.New(color.FgWhite),
		Fixed:     color.New(color.FgYellow),
		Success:   color.New(color.FgGreen),
		Warn:      color.New(color.FgYellow, color.Bold),
		Error:     color.New(color.FgRed, color.Bold),
		Undefined: color.New(color.FgMagenta),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range []*color.Color{
		scheme.Header, scheme.Name, scheme.Value, scheme.Fixed,
		scheme.Success, scheme.Warn, scheme.Error, scheme.Undefined,
	} {
		c.DisableColor()
	}
	return scheme
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SchemeFor picks the color scheme for f, honoring an explicit --no-color.
func SchemeFor(f *os.File, noColor bool) *ColorScheme {
	if noColor || !IsTerminal(f) {
		return NoColorScheme()
	}
	return DefaultColorScheme()
}
