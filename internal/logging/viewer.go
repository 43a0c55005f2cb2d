package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Entry is one parsed JSON log line.
type Entry struct {
	Time  time.Time
	Level string
	Event string
	// Service is the "service" attribute, empty when absent.
	Service string
	Attrs   map[string]interface{}
	Raw     string
	// Valid is false when the line is not JSON; Raw is printed as is.
	Valid bool
}

// ViewerConfig filters and styles viewed entries.
type ViewerConfig struct {
	// Level is the minimum level shown.
	Level string
	// Service keeps only entries of one service.
	Service string
	// Pattern keeps only lines matching it.
	Pattern *regexp.Regexp
	NoColor bool
}

// Viewer reads, filters and prints log files.
type Viewer struct {
	config ViewerConfig
	out    io.Writer
	styles map[string]lipgloss.Style
	dim    lipgloss.Style
}

// NewViewer creates a viewer printing to out.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	v := &Viewer{config: cfg, out: out, styles: map[string]lipgloss.Style{}}
	if !cfg.NoColor {
		v.styles["DEBUG"] = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		v.styles["INFO"] = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
		v.styles["WARN"] = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
		v.styles["ERROR"] = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
		v.dim = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	}
	return v
}

// Tail returns the matching entries among the last n lines of path.
func (v *Viewer) Tail(path string, n int) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	lines := make([]string, 0, n)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(lines) == n {
			lines = lines[1:]
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	var entries []Entry
	for _, line := range lines {
		if e := ParseLine(line); v.matches(e) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Follow sends entries appended to path until ctx is done.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- Entry) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	reader := bufio.NewReader(file)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var partial string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for {
			chunk, err := reader.ReadString('\n')
			partial += chunk
			if err != nil {
				// incomplete line, wait for the rest
				break
			}
			line := strings.TrimSuffix(partial, "\n")
			partial = ""
			if line == "" {
				continue
			}
			if e := ParseLine(line); v.matches(e) {
				select {
				case entries <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// ParseLine parses a slog JSON line.
func ParseLine(line string) Entry {
	e := Entry{Raw: line}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return e
	}
	e.Valid = true

	if t, ok := data["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			e.Time = parsed
		}
	}
	e.Level, _ = data["level"].(string)
	e.Event, _ = data["msg"].(string)
	e.Service, _ = data["service"].(string)

	e.Attrs = make(map[string]interface{}, len(data))
	for k, val := range data {
		switch k {
		case "time", "level", "msg":
		default:
			e.Attrs[k] = val
		}
	}
	return e
}

func (v *Viewer) matches(e Entry) bool {
	if v.config.Level != "" && ParseLevel(e.Level) < ParseLevel(v.config.Level) {
		return false
	}
	if v.config.Service != "" && e.Service != v.config.Service {
		return false
	}
	if v.config.Pattern != nil && !v.config.Pattern.MatchString(e.Raw) {
		return false
	}
	return true
}

// Format renders an entry as "15:04:05.000 LEVEL event key=value ...".
// Attributes are sorted by key.
func (v *Viewer) Format(e Entry) string {
	if !e.Valid {
		return e.Raw
	}

	level := fmt.Sprintf("%-5s", strings.ToUpper(e.Level))
	if style, ok := v.styles[strings.TrimSpace(level)]; ok {
		level = style.Render(level)
	}

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(e.Time.Format("15:04:05.000"))
	sb.WriteString(" ")
	sb.WriteString(level)
	sb.WriteString(" ")
	sb.WriteString(e.Event)
	for _, k := range keys {
		attr := fmt.Sprintf("%s=%v", k, e.Attrs[k])
		if !v.config.NoColor {
			attr = v.dim.Render(attr)
		}
		sb.WriteString(" ")
		sb.WriteString(attr)
	}
	return sb.String()
}

// Print writes entries to the output.
func (v *Viewer) Print(entries []Entry) {
	for _, e := range entries {
		_, _ = fmt.Fprintln(v.out, v.Format(e))
	}
}
