package watcher

import (
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted.
	OpDelete
	// OpRename indicates a file was renamed away. The new name arrives as
	// a separate OpCreate.
	OpRename
	// OpCodeListChange indicates the codelist file changed. Every record
	// may resolve differently, so the index must be rebuilt.
	OpCodeListChange
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpCodeListChange:
		return "CODELIST_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is the absolute path of the file.
	Path string

	// Operation is the type of file system operation.
	Operation Operation

	// IsDir indicates if the event is for a directory.
	IsDir bool

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the time to wait before emitting coalesced events.
	// Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is the interval for polling mode (fallback).
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the size of the event channel buffer.
	// Default: 100
	EventBufferSize int

	// Accept selects the files worth reporting. Nil accepts every file.
	Accept func(path string) bool

	// CodeListFile is the base name reported as OpCodeListChange.
	CodeListFile string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 100,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
