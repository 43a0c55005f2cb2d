package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HybridWatcher watches a directory tree with fsnotify, falling back to
// polling when fsnotify cannot be initialized.
type HybridWatcher struct {
	fsWatcher      *fsnotify.Watcher
	pollWatcher    *PollingWatcher
	useFsnotify    bool
	debouncer      *Debouncer
	events         chan []FileEvent
	errors         chan error
	stopCh         chan struct{}
	rootPath       string
	opts           Options
	mu             sync.RWMutex
	stopped        bool
	droppedBatches atomic.Uint64
}

// NewHybridWatcher creates a watcher. It never fails on fsnotify errors;
// those select polling instead.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()

	h := &HybridWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		h.fsWatcher = fsw
		h.useFsnotify = true
	} else {
		slog.Warn("fsnotify_unavailable_polling",
			slog.String("error", err.Error()),
			slog.Duration("interval", opts.PollInterval))
		h.pollWatcher = NewPollingWatcher(opts.PollInterval)
	}
	return h, nil
}

// Start watches path until Stop is called or ctx ends. It blocks.
func (h *HybridWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	h.mu.Lock()
	h.rootPath = absPath
	h.mu.Unlock()

	go h.forwardDebouncedEvents(ctx)

	if h.useFsnotify {
		return h.startFsnotify(ctx)
	}
	return h.startPolling(ctx)
}

func (h *HybridWatcher) startFsnotify(ctx context.Context) error {
	if err := h.addRecursive(h.rootPath); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handleFsnotifyEvent(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) startPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case event, ok := <-h.pollWatcher.Events():
				if !ok {
					return
				}
				if event.IsDir {
					continue
				}
				h.dispatch(event)
			case err, ok := <-h.pollWatcher.Errors():
				if !ok {
					return
				}
				h.emitError(err)
			}
		}
	}()

	return h.pollWatcher.Start(ctx, h.rootPath)
}

func (h *HybridWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		if isDir {
			// A new catalog directory: watch it and report files already
			// written into it.
			if err := h.addRecursive(event.Name); err != nil {
				h.emitError(err)
			}
			h.reportExisting(event.Name)
			return
		}
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}
	if isDir {
		return
	}

	h.dispatch(FileEvent{Path: event.Name, Operation: op, Timestamp: time.Now()})
}

// dispatch classifies and filters a file event before debouncing.
func (h *HybridWatcher) dispatch(event FileEvent) {
	if h.opts.CodeListFile != "" && filepath.Base(event.Path) == h.opts.CodeListFile {
		event.Operation = OpCodeListChange
		h.debouncer.Add(event)
		return
	}
	if h.opts.Accept != nil && !h.opts.Accept(event.Path) {
		return
	}
	h.debouncer.Add(event)
}

func (h *HybridWatcher) reportExisting(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		h.dispatch(FileEvent{Path: path, Operation: OpCreate, Timestamp: time.Now()})
		return nil
	})
}

func (h *HybridWatcher) forwardDebouncedEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case events, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			if len(events) > 0 {
				h.emitEvents(events)
			}
		}
	}
}

// addRecursive watches root and every non-hidden directory below it.
func (h *HybridWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return h.fsWatcher.Add(path)
	})
}

func (h *HybridWatcher) emitEvents(events []FileEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}

	select {
	case h.events <- events:
	default:
		count := h.droppedBatches.Add(1)
		slog.Warn("watcher_event_buffer_full",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped_batches", count))
	}
}

// DroppedBatches returns the number of batches dropped on a full buffer.
func (h *HybridWatcher) DroppedBatches() uint64 {
	return h.droppedBatches.Load()
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}

	select {
	case h.errors <- err:
	default:
	}
}

// Stop stops the watcher and closes its channels. Safe to call multiple
// times.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true
	close(h.stopCh)

	h.debouncer.Stop()
	if h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.pollWatcher != nil {
		_ = h.pollWatcher.Stop()
	}

	close(h.events)
	close(h.errors)
	return nil
}

// Events returns the channel of debounced batches.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// Errors returns the channel of non-fatal watcher errors.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// WatcherType returns "fsnotify" or "polling".
func (h *HybridWatcher) WatcherType() string {
	if h.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}

// RootPath returns the watched directory.
func (h *HybridWatcher) RootPath() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rootPath
}
