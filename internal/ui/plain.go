package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	stage  Stage
	errors []ErrorEvent
	// every prints one record line per this many records.
	every int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, every: 100}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer. Record progress is printed for the
// first and last record of a catalog and every 100 records between.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stage = event.Stage

	switch event.Stage {
	case StageCatalogs:
		_, _ = fmt.Fprintf(r.out, "[%s] %d catalogs\n", event.Stage.Icon(), event.Catalogs)
	case StageRecords:
		if event.Current != 1 && event.Current != event.Total && event.Current%r.every != 0 {
			return
		}
		_, _ = fmt.Fprintf(r.out, "[%s] %s (%d/%d) %d/%d - %s\n", event.Stage.Icon(),
			event.Catalog, event.CatalogIndex, event.Catalogs, event.Current, event.Total, event.Key)
	default:
		if event.Message != "" {
			_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
		} else {
			_, _ = fmt.Fprintf(r.out, "[%s]\n", event.Stage.Icon())
		}
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.Key != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Key, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %s: %d records from %d catalogs indexed in %s",
		stats.Service, stats.Indexed, stats.Catalogs, stats.Duration.Round(100*time.Millisecond))
	if stats.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed)", stats.Failed)
	}
	_, _ = fmt.Fprintln(r.out)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
