// Package ui provides terminal output for the deck-evaluator CLI.
package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Init applies global output settings.
func Init(noColor bool) {
	if noColor {
		color.NoColor = true
	}
}

// Success prints a success message.
func Success(w io.Writer, format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(w, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Error prints an error message.
func Error(w io.Writer, format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(w, "✗ %s\n", fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func Warning(w io.Writer, format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(w, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info prints an informational message.
func Info(w io.Writer, format string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(w, "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Section prints a section header.
func Section(w io.Writer, title string) {
	color.New(color.FgMagenta, color.Bold).Fprintf(w, "━━━ %s ━━━\n", title)
}
