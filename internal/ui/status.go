package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/constellation-sdi/constellation/internal/ows"
)

// IndexStatus describes the index of one catalog service.
type IndexStatus struct {
	Service    string    `json:"service"`
	Path       string    `json:"path"`
	Documents  uint64    `json:"documents"`
	Generation uint64    `json:"generation"`
	Size       int64     `json:"size"`
	Modified   time.Time `json:"modified"`
}

// StatusRenderer prints service and index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor || DetectNoColor())}
}

// RenderServices prints one line per worker.
func (r *StatusRenderer) RenderServices(workers []ows.WorkerStatus) error {
	if len(workers) == 0 {
		_, _ = fmt.Fprintln(r.out, "No services configured.")
		return nil
	}

	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Services"))
	for _, w := range workers {
		_, _ = fmt.Fprintf(r.out, "  %-6s %-20s %s  %s\n",
			string(w.Specification), w.ID, r.renderState(w.State),
			r.styles.Label.Render(strings.Join(w.Versions, ", ")))
		if w.Error != "" {
			_, _ = fmt.Fprintf(r.out, "         %s\n", r.styles.Error.Render(w.Error))
		}
	}
	return nil
}

// RenderIndex prints the status of one index.
func (r *StatusRenderer) RenderIndex(info IndexStatus) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index: "+info.Service))
	_, _ = fmt.Fprintf(r.out, "  Path:       %s\n", info.Path)
	_, _ = fmt.Fprintf(r.out, "  Documents:  %d\n", info.Documents)
	_, _ = fmt.Fprintf(r.out, "  Generation: %d\n", info.Generation)
	_, _ = fmt.Fprintf(r.out, "  Size:       %s\n", FormatBytes(info.Size))
	if !info.Modified.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Modified:   %s\n", formatTime(info.Modified))
	}
	return nil
}

// RenderJSON outputs v as indented JSON.
func (r *StatusRenderer) RenderJSON(v any) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (r *StatusRenderer) renderState(state string) string {
	padded := fmt.Sprintf("%-11s", state)
	switch state {
	case ows.StateStarted.String():
		return r.styles.Success.Render(padded)
	case ows.StateNotStarted.String():
		return r.styles.Warning.Render(padded)
	case ows.StateError.String():
		return r.styles.Error.Render(padded)
	default:
		return padded
	}
}

// formatTime formats a time relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
