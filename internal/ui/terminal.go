package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// IsTerminal reports whether f is an interactive terminal
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ConfigureColor picks the colour profile for out. Colours are dropped for
// --no-color, NO_COLOR and non-terminal output.
func ConfigureColor(out *os.File, noColor bool) {
	// Warp stalls on termenv's terminal queries
	if os.Getenv("TERM_PROGRAM") == "WarpTerminal" {
		os.Setenv("TERM", "dumb")
		os.Setenv("COLORTERM", "truecolor")
	}
	if noColor || termenv.EnvNoColor() || !IsTerminal(out) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}
