package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// RotatingWriter is an io.Writer over a file that rotates by size:
// server.log -> server.log.1 -> server.log.2 -> ... up to maxFiles.
type RotatingWriter struct {
	path     string
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	written int64
	// syncEach flushes after every write so `constellation logs -f` sees
	// records immediately.
	syncEach bool
}

// NewRotatingWriter opens path for appending, creating its directory.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxFiles <= 0 {
		maxFiles = 5
	}
	w := &RotatingWriter{
		path:     path,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxFiles: maxFiles,
		syncEach: true,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// SetSyncEachWrite toggles flushing after every write.
func (w *RotatingWriter) SetSyncEachWrite(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.syncEach = enabled
}

// Write implements io.Writer. A failed rotation keeps writing to the
// current file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}
	if w.file == nil {
		return 0, fmt.Errorf("log file %s is closed", w.path)
	}

	n, err := w.file.Write(p)
	w.written += int64(n)
	if w.syncEach && err == nil {
		_ = w.file.Sync()
	}
	return n, err
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Sync flushes the file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return w.file.Sync()
	}
	return nil
}

func (w *RotatingWriter) openFile() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.written = info.Size()
	return nil
}

type rotatedFile struct {
	path string
	num  int
}

// rotated lists <path>.N files, highest N first.
func (w *RotatingWriter) rotated() ([]rotatedFile, error) {
	base := filepath.Base(w.path)
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(w.path), base+".*"))
	if err != nil {
		return nil, fmt.Errorf("failed to find rotated files: %w", err)
	}

	var files []rotatedFile
	for _, m := range matches {
		num, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(m), base+"."))
		if err != nil {
			continue
		}
		files = append(files, rotatedFile{path: m, num: num})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].num > files[j].num })
	return files, nil
}

func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		w.file = nil
	}

	files, err := w.rotated()
	if err != nil {
		return err
	}
	// highest first so no rename overwrites a file still to be moved
	for _, f := range files {
		if f.num >= w.maxFiles {
			_ = os.Remove(f.path)
			continue
		}
		_ = os.Rename(f.path, fmt.Sprintf("%s.%d", w.path, f.num+1))
	}

	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, w.path+".1"); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	w.written = 0
	return w.openFile()
}
