// Package fsstore reads metadata records from a directory tree.
//
// Layout:
//
//	<root>/codelists.yaml          optional list of codelist classes
//	<root>/<catalog>/<record>.yaml one record.Document per file
//
// Each subdirectory of the root is a catalog. A document without a catalog
// takes the name of its directory.
package fsstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/constellation-sdi/constellation/internal/record"
)

// CodeListsFile is the name of the optional codelist file at the root.
const CodeListsFile = "codelists.yaml"

// Store is a record.Source over a directory of YAML documents.
type Store struct {
	root        string
	parallelism int

	mu sync.Mutex
	// keys remembers the record key of every file read, so a deleted file
	// can still be removed from the index.
	keys map[string]string
}

var (
	_ record.Source = (*Store)(nil)
	_ record.Getter = (*Store)(nil)
)

// Open returns a store over root, which must be a directory.
func Open(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("record directory %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("record directory %s is not a directory", abs)
	}
	return &Store{
		root:        abs,
		parallelism: runtime.NumCPU(),
		keys:        make(map[string]string),
	}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

// IsRecordFile reports whether path names a record document.
func IsRecordFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || base == CodeListsFile {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".yaml" || ext == ".yml"
}

// Catalogs implements record.Source.
func (s *Store) Catalogs(ctx context.Context) ([]record.Catalog, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.root, err)
	}
	var out []record.Catalog
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, record.Catalog{Code: e.Name(), Name: e.Name()})
	}
	return out, nil
}

// Records implements record.Source. Files are decoded in parallel; a file
// that fails to decode is logged and skipped.
func (s *Store) Records(ctx context.Context, catalog string) ([]*record.Record, error) {
	dir := filepath.Join(s.root, catalog)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog %s: %w", catalog, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && IsRecordFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	results := make([]*record.Record, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := s.LoadFile(path)
			if err != nil {
				slog.Warn("record_decode_failed",
					slog.String("path", path),
					slog.String("catalog", catalog),
					slog.String("error", err.Error()))
				return nil
			}
			results[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := results[:0]
	for _, rec := range results {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Record implements record.Getter. The file named after the id is tried
// first, then every file of the catalog.
func (s *Store) Record(ctx context.Context, catalog, id string) (*record.Record, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(s.root, catalog, FileName(id, ext))
		if _, err := os.Stat(path); err == nil {
			rec, err := s.LoadFile(path)
			if err == nil && rec.ID == id {
				return rec, nil
			}
		}
	}

	records, err := s.Records(ctx, catalog)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, record.ErrNotFound
}

// LoadFile decodes one record document.
func (s *Store) LoadFile(path string) (*record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rec, err := Decode(data, filepath.Base(filepath.Dir(path)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	s.mu.Lock()
	s.keys[path] = rec.Key()
	s.mu.Unlock()
	return rec, nil
}

// Decode parses one YAML record document. A document without a catalog
// gets catalog.
func Decode(data []byte, catalog string) (*record.Record, error) {
	var doc record.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Catalog == "" {
		doc.Catalog = catalog
	}
	return doc.Record()
}

// Forget returns and drops the record key last read from path.
func (s *Store) Forget(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[path]
	delete(s.keys, path)
	return key, ok
}

// Write stores rec as <root>/<catalog>/<id>.yaml and returns the path.
func (s *Store) Write(rec *record.Record) (string, error) {
	if rec.Catalog == "" {
		return "", fmt.Errorf("record %s has no catalog", rec.ID)
	}
	dir := filepath.Join(s.root, rec.Catalog)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create catalog directory: %w", err)
	}
	data, err := yaml.Marshal(rec.Document())
	if err != nil {
		return "", fmt.Errorf("failed to encode record %s: %w", rec.Key(), err)
	}
	path := filepath.Join(dir, FileName(rec.ID, ".yaml"))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write record %s: %w", rec.Key(), err)
	}

	s.mu.Lock()
	s.keys[path] = rec.Key()
	s.mu.Unlock()
	return path, nil
}

// Put writes every record to its file.
func (s *Store) Put(_ context.Context, records ...*record.Record) error {
	for _, rec := range records {
		if _, err := s.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// FileName maps a record id to a file name.
func FileName(id, ext string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_")
	return r.Replace(id) + ext
}

// CodeLists implements record.Source.
func (s *Store) CodeLists(ctx context.Context) (record.CodeLists, error) {
	data, err := os.ReadFile(filepath.Join(s.root, CodeListsFile))
	if os.IsNotExist(err) {
		return record.CodeLists{}, nil
	}
	if err != nil {
		return nil, err
	}
	var lists []*record.CodeList
	if err := yaml.Unmarshal(data, &lists); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", CodeListsFile, err)
	}
	out := make(record.CodeLists, len(lists))
	for _, cl := range lists {
		if cl != nil && cl.Name != "" {
			out[cl.Name] = cl
		}
	}
	return out, nil
}

// Close implements record.Source.
func (s *Store) Close() error {
	return nil
}
