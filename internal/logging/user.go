package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// User-facing output functions with status glyphs.
// These write to stdout/stderr directly for CLI output,
// separate from the structured debug logging.

var (
	userOut io.Writer = os.Stdout
	userErr io.Writer = os.Stderr

	infoGlyph    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Render("ℹ")
	successGlyph = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("✓")
	warningGlyph = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Render("⚠")
	errorGlyph   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Render("✗")
	hintStyle    = lipgloss.NewStyle().Faint(true)
)

// SetUserOutput redirects user-facing output (used by tests).
// A nil writer restores the default.
func SetUserOutput(out, errOut io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	userOut, userErr = out, errOut
}

// UserInfo prints an info message to stdout.
func UserInfo(format string, args ...interface{}) {
	fmt.Fprintf(userOut, infoGlyph+" "+format+"\n", args...)
}

// UserSuccess prints a success message to stdout.
func UserSuccess(format string, args ...interface{}) {
	fmt.Fprintf(userOut, successGlyph+" "+format+"\n", args...)
}

// UserWarning prints a warning message to stderr.
func UserWarning(format string, args ...interface{}) {
	fmt.Fprintf(userErr, warningGlyph+" "+format+"\n", args...)
}

// UserError prints an error message to stderr.
func UserError(format string, args ...interface{}) {
	fmt.Fprintf(userErr, errorGlyph+" "+format+"\n", args...)
}

// UserHint prints indented remediation lines to stderr.
func UserHint(lines ...string) {
	for _, l := range lines {
		fmt.Fprintln(userErr, "    "+hintStyle.Render(l))
	}
}
