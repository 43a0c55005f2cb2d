// Package output prints the status lines of CLI commands.
package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Writer prints marked status lines.
type Writer struct {
	out     io.Writer
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	detail  lipgloss.Style
}

// New creates a Writer. Colors are dropped when noColor is set.
func New(out io.Writer, noColor bool) *Writer {
	w := &Writer{out: out}
	if !noColor {
		w.success = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))
		w.warning = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
		w.failure = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		w.detail = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	}
	return w
}

// Status prints msg after mark. An empty mark indents msg under the
// previous line.
func (w *Writer) Status(mark, msg string) {
	if mark != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", mark, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "  %s\n", w.detail.Render(msg))
	}
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(mark, format string, args ...any) {
	w.Status(mark, fmt.Sprintf(format, args...))
}

// Success prints a line marked ✓.
func (w *Writer) Success(msg string) {
	w.Status(w.success.Render("✓"), msg)
}

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a line marked ⚠.
func (w *Writer) Warning(msg string) {
	w.Status(w.warning.Render("⚠"), msg)
}

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints a line marked ✗.
func (w *Writer) Error(msg string) {
	w.Status(w.failure.Render("✗"), msg)
}

// Errorf is Error with formatting.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Detail prints an indented secondary line.
func (w *Writer) Detail(msg string) {
	w.Status("", msg)
}

// Detailf is Detail with formatting.
func (w *Writer) Detailf(format string, args ...any) {
	w.Detail(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
