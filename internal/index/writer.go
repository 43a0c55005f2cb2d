package index

import (
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// DefaultBatchSize is the number of documents buffered before a flush.
const DefaultBatchSize = 500

// Writer buffers document writes into batches. A writer opened in create
// mode owns a fresh index directory; one opened in append mode writes
// through the shared Store.
type Writer struct {
	batch     *bleve.Batch
	apply     func(*bleve.Batch) error
	release   func() error
	batchSize int
	written   int
	closed    bool
}

// createWriter truncates path and opens a new index there.
func createWriter(path string, m mapping.IndexMapping) (*Writer, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("failed to clear %s: %w", path, err)
	}
	idx, err := bleve.New(path, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create index at %s: %w", path, err)
	}
	return &Writer{
		batch:     idx.NewBatch(),
		apply:     idx.Batch,
		release:   idx.Close,
		batchSize: DefaultBatchSize,
	}, nil
}

// appendWriter writes into the store's open index.
func appendWriter(s *Store) (*Writer, error) {
	b, err := s.NewBatch()
	if err != nil {
		return nil, err
	}
	return &Writer{
		batch:     b,
		apply:     s.Apply,
		release:   func() error { return nil },
		batchSize: DefaultBatchSize,
	}, nil
}

// Add stages doc under id, replacing any document with the same id.
func (w *Writer) Add(id string, doc map[string]interface{}) error {
	if w.closed {
		return ErrClosed
	}
	if err := w.batch.Index(id, doc); err != nil {
		return fmt.Errorf("failed to stage document %s: %w", id, err)
	}
	w.written++
	if w.batch.Size() >= w.batchSize {
		return w.Flush()
	}
	return nil
}

// Delete stages the removal of id.
func (w *Writer) Delete(id string) {
	if w.closed {
		return
	}
	w.batch.Delete(id)
}

// Written returns the number of documents staged so far.
func (w *Writer) Written() int {
	return w.written
}

// Flush applies the staged batch.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	if w.batch.Size() == 0 {
		return nil
	}
	if err := w.apply(w.batch); err != nil {
		return err
	}
	w.batch.Reset()
	return nil
}

// Close flushes pending writes and releases the index if the writer owns it.
// The index is released even when the flush fails.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	flushErr := w.Flush()
	w.closed = true
	if err := w.release(); err != nil {
		if flushErr != nil {
			return fmt.Errorf("%w (close: %v)", flushErr, err)
		}
		return fmt.Errorf("failed to close index writer: %w", err)
	}
	return flushErr
}
