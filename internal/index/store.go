package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("index is closed")

// Store owns the open handle on a service's current index directory. The
// indexer writes through it and searchers read through it, so the handle is
// opened once per process.
type Store struct {
	mu      sync.RWMutex
	index   bleve.Index
	path    string
	mapping mapping.IndexMapping
	closed  bool

	// cleared is set when the last open found the directory corrupt and
	// replaced it with an empty index.
	cleared bool

	// generation changes on every write and reopen.
	generation atomic.Uint64
}

// validateIndexIntegrity checks the index metadata before opening.
// Returns nil if valid or absent.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError checks if an error indicates bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		errors.Is(err, bleve.ErrorIndexMetaCorrupt)
}

// OpenStore opens the index at path, creating an empty one if absent.
// A corrupted index is cleared and reported by Cleared so the caller can
// rebuild it.
// If path is empty, an in-memory index is created.
func OpenStore(path string, m mapping.IndexMapping) (*Store, error) {
	s := &Store{path: path, mapping: m}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) open() error {
	s.cleared = false
	if s.path == "" {
		idx, err := bleve.NewMemOnly(s.mapping)
		if err != nil {
			return fmt.Errorf("failed to create in-memory index: %w", err)
		}
		s.index = idx
		s.closed = false
		s.generation.Add(1)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(s.path), err)
	}

	if validErr := validateIndexIntegrity(s.path); validErr != nil {
		slog.Warn("index_corrupted",
			slog.String("path", s.path),
			slog.String("error", validErr.Error()))
		if err := os.RemoveAll(s.path); err != nil {
			return fmt.Errorf("index corrupted at %s and cannot remove: %w (original error: %v)", s.path, err, validErr)
		}
		s.cleared = true
		slog.Info("index_cleared",
			slog.String("path", s.path),
			slog.String("reason", "corruption detected, rebuild required"))
	}

	idx, err := bleve.Open(s.path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(s.path, s.mapping)
	} else if err != nil && isCorruptionError(err) {
		slog.Warn("index_open_failed",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		if removeErr := os.RemoveAll(s.path); removeErr != nil {
			return fmt.Errorf("index corrupted, cannot clear: %w (original: %v)", removeErr, err)
		}
		s.cleared = true
		idx, err = bleve.New(s.path, s.mapping)
	}
	if err != nil {
		return fmt.Errorf("failed to create/open index: %w", err)
	}

	s.index = idx
	s.closed = false
	s.generation.Add(1)
	return nil
}

// Path returns the index directory.
func (s *Store) Path() string {
	return s.path
}

// Cleared reports whether the last open discarded a corrupt index. The
// store then holds an empty index until it is rebuilt.
func (s *Store) Cleared() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cleared
}

// Generation identifies the current content of the store. It changes on
// every write and reopen.
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}

// Apply executes a batch against the open index.
func (s *Store) Apply(b *bleve.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if b.Size() == 0 {
		return nil
	}
	if err := s.index.Batch(b); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	s.generation.Add(1)
	return nil
}

// NewBatch returns an empty batch for the open index.
func (s *Store) NewBatch() (*bleve.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	return s.index.NewBatch(), nil
}

// Search runs req against the open index.
func (s *Store) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return res, nil
}

// DocCount returns the number of documents in the index.
func (s *Store) DocCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}
	return s.index.DocCount()
}

// Replace closes the index, runs swap while no reader holds the handle, and
// reopens the directory. The store is reopened even when swap fails so the
// previous content stays readable.
func (s *Store) Replace(swap func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed && s.index != nil {
		if err := s.index.Close(); err != nil {
			slog.Warn("index_close_failed",
				slog.String("path", s.path),
				slog.String("error", err.Error()))
		}
		s.closed = true
	}

	swapErr := swap()
	if err := s.open(); err != nil {
		if swapErr != nil {
			return fmt.Errorf("%w (reopen: %v)", swapErr, err)
		}
		return err
	}
	return swapErr
}

// Close closes the index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.index != nil {
		return s.index.Close()
	}
	return nil
}
