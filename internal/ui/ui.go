// Package ui renders index build progress and service status on the
// terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/constellation-sdi/constellation/internal/index"
)

// Stage is a step of an index build as shown to the user.
type Stage int

const (
	// StageCatalogs lists the catalogs of the source.
	StageCatalogs Stage = iota
	// StageRecords indexes records catalog by catalog.
	StageRecords
	// StagePromote swaps the new index in.
	StagePromote
	// StageComplete indicates the build finished.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageCatalogs:
		return "Catalogs"
	case StageRecords:
		return "Records"
	case StagePromote:
		return "Promote"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageCatalogs:
		return "CATALOG"
	case StageRecords:
		return "INDEX"
	case StagePromote:
		return "SWAP"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage   Stage
	Catalog string
	// CatalogIndex and Catalogs place Catalog among all catalogs.
	CatalogIndex int
	Catalogs     int
	Current      int
	Total        int
	// Key is the record just processed.
	Key     string
	Message string
}

// ErrorEvent represents a record that failed to index.
type ErrorEvent struct {
	Key    string
	Err    error
	IsWarn bool
}

// CompletionStats summarizes a finished build.
type CompletionStats struct {
	Service  string
	Catalogs int
	Indexed  int
	Failed   int
	Duration time.Duration
}

// Renderer displays build progress.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// Service is shown in the TUI header.
	Service string
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithService sets the service id shown in the header.
func WithService(id string) ConfigOption {
	return func(c *Config) {
		c.Service = id
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI renderer on interactive terminals and the
// plain renderer for CI, pipes and --no-tui.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// ProgressFunc adapts a renderer to the indexer's progress callback.
func ProgressFunc(r Renderer) index.ProgressFunc {
	return func(p index.Progress) {
		event := ProgressEvent{
			Catalog:      p.Catalog,
			CatalogIndex: p.CatalogIndex,
			Catalogs:     p.Catalogs,
			Current:      p.Current,
			Total:        p.Total,
			Key:          p.Key,
		}
		switch p.Phase {
		case index.PhaseCatalogs:
			event.Stage = StageCatalogs
			event.Total = p.Catalogs
		case index.PhaseRecords:
			event.Stage = StageRecords
		case index.PhasePromote:
			event.Stage = StagePromote
		}
		r.UpdateProgress(event)

		if p.Err != nil {
			r.AddError(ErrorEvent{Key: p.Key, Err: p.Err, IsWarn: true})
		}
	}
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
