package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces rapid events for the same path. Within one window:
//   - CREATE then MODIFY stays CREATE
//   - CREATE then DELETE disappears
//   - MODIFY then DELETE becomes DELETE
//   - DELETE then CREATE becomes MODIFY
type Debouncer struct {
	window  time.Duration
	pending map[string]*pendingEvent
	mu      sync.Mutex
	output  chan []FileEvent
	timer   *time.Timer
	stopped bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer emitting batches after window of quiet.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []FileEvent, 10),
	}
}

// Add queues an event and restarts the window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged := coalesce(existing, event)
		if merged == nil {
			delete(d.pending, event.Path)
		} else {
			existing.event = *merged
		}
	} else {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Operation}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges next into existing. nil means the events cancel out.
func coalesce(existing *pendingEvent, next FileEvent) *FileEvent {
	switch existing.firstOp {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			return &existing.event
		case OpDelete, OpRename:
			return nil
		}
	case OpDelete:
		if next.Operation == OpCreate {
			replaced := next
			replaced.Operation = OpModify
			return &replaced
		}
	}
	return &next
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.output <- events:
	default:
		slog.Warn("debouncer_output_full",
			slog.Int("batch_size", len(events)))
	}
}

// Output returns the channel of debounced batches, sorted by path.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop stops the debouncer and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
