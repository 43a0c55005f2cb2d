package record

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Catalog is a named collection of records within a source.
type Catalog struct {
	Code string `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

// Source yields catalogs and their records. It is implemented by the
// metadata stores (SQL, filesystem) and by MemorySource.
type Source interface {
	// Catalogs lists the catalogs available in the source.
	Catalogs(ctx context.Context) ([]Catalog, error)

	// Records returns every record of a catalog.
	Records(ctx context.Context, catalog string) ([]*Record, error)

	// CodeLists returns the codelist classes known to the source.
	CodeLists(ctx context.Context) (CodeLists, error)

	// Close releases the source connection.
	Close() error
}

// Getter is implemented by sources able to load a single record.
type Getter interface {
	Record(ctx context.Context, catalog, id string) (*Record, error)
}

// ErrNotFound is returned by Getter when a record does not exist.
var ErrNotFound = fmt.Errorf("record not found")

// MemorySource is an in-process Source, mostly useful for tests and for
// records pushed through the API before they reach a persistent store.
type MemorySource struct {
	mu        sync.RWMutex
	catalogs  map[string][]*Record
	codelists CodeLists
	closed    bool
}

// NewMemorySource creates an empty source holding DefaultCodeLists.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		catalogs:  make(map[string][]*Record),
		codelists: DefaultCodeLists(),
	}
}

// Put adds or replaces records, keyed by catalog and id.
func (m *MemorySource) Put(records ...*Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		list := m.catalogs[rec.Catalog]
		replaced := false
		for i, existing := range list {
			if existing.ID == rec.ID {
				list[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, rec)
		}
		m.catalogs[rec.Catalog] = list
	}
}

// SetCodeLists replaces the codelist classes.
func (m *MemorySource) SetCodeLists(cl CodeLists) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codelists = cl
}

// Catalogs implements Source.
func (m *MemorySource) Catalogs(ctx context.Context) ([]Catalog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("source is closed")
	}
	out := make([]Catalog, 0, len(m.catalogs))
	for code := range m.catalogs {
		out = append(out, Catalog{Code: code, Name: code})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Records implements Source.
func (m *MemorySource) Records(ctx context.Context, catalog string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("source is closed")
	}
	list := m.catalogs[catalog]
	out := make([]*Record, len(list))
	copy(out, list)
	return out, nil
}

// Record implements Getter.
func (m *MemorySource) Record(ctx context.Context, catalog, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.catalogs[catalog] {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

// CodeLists implements Source.
func (m *MemorySource) CodeLists(ctx context.Context) (CodeLists, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.codelists, nil
}

// Close implements Source.
func (m *MemorySource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var (
	_ Source = (*MemorySource)(nil)
	_ Getter = (*MemorySource)(nil)
)
