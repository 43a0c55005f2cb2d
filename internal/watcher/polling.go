package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning the tree on an interval.
type PollingWatcher struct {
	interval  time.Duration
	fileState map[string]fileSnapshot
	events    chan FileEvent
	errors    chan error
	stopCh    chan struct{}
	mu        sync.Mutex
	stopped   bool
	rootPath  string
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher with the given interval.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval:  interval,
		fileState: make(map[string]fileSnapshot),
		events:    make(chan FileEvent, 100),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
}

// Start scans path once and then polls until Stop or ctx ends.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	p.mu.Lock()
	p.rootPath = absPath
	p.mu.Unlock()

	state, err := p.snapshot()
	if err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.mu.Lock()
	p.fileState = state
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.detectChanges(); err != nil {
				select {
				case p.errors <- err:
				default:
				}
			}
		}
	}
}

// Stop stops the polling watcher. Safe to call multiple times.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// snapshot walks the tree, skipping hidden entries.
func (p *PollingWatcher) snapshot() (map[string]fileSnapshot, error) {
	state := make(map[string]fileSnapshot)
	err := filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == p.rootPath {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[path] = fileSnapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return state, err
}

func (p *PollingWatcher) detectChanges() error {
	current, err := p.snapshot()
	if err != nil {
		return fmt.Errorf("walk directory for changes: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for path, snap := range current {
		prev, existed := p.fileState[path]
		switch {
		case !existed:
			p.emitEvent(FileEvent{Path: path, Operation: OpCreate, IsDir: snap.isDir, Timestamp: now})
		case !snap.isDir && (prev.modTime != snap.modTime || prev.size != snap.size):
			p.emitEvent(FileEvent{Path: path, Operation: OpModify, Timestamp: now})
		}
	}
	for path, snap := range p.fileState {
		if _, ok := current[path]; !ok {
			p.emitEvent(FileEvent{Path: path, Operation: OpDelete, IsDir: snap.isDir, Timestamp: now})
		}
	}
	p.fileState = current
	return nil
}

// emitEvent must be called with the lock held.
func (p *PollingWatcher) emitEvent(event FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
		slog.Warn("polling_watcher_buffer_full",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))
	}
}
