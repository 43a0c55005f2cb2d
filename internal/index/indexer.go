// Package index builds and maintains the search index of a catalog service.
//
// Each service id owns two directories under the configuration directory:
// <id>index holds the current index and <id>nextIndex a pre-generated one.
// A full build writes a private <id>nextIndex.tmp, renames it to
// <id>nextIndex once the writer has committed, and then promotes it over
// <id>index. Only a complete index ever carries the <id>nextIndex name, so
// a pre-generated directory found at construction is promoted the same way
// and a leftover staging directory is discarded.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2/mapping"

	sdierrors "github.com/constellation-sdi/constellation/internal/errors"
	"github.com/constellation-sdi/constellation/internal/metrics"
	"github.com/constellation-sdi/constellation/internal/queryable"
	"github.com/constellation-sdi/constellation/internal/record"
)

const (
	currentSuffix = "index"
	nextSuffix    = "nextIndex"
	stagingSuffix = "nextIndex.tmp"
)

// Phase is a step of a full build.
type Phase int

const (
	// PhaseCatalogs lists the source's catalogs.
	PhaseCatalogs Phase = iota
	// PhaseRecords indexes the records of one catalog.
	PhaseRecords
	// PhasePromote swaps the new index in.
	PhasePromote
)

// Progress reports the advance of a full build.
type Progress struct {
	Phase Phase
	// CatalogIndex is the 1-based position of Catalog among Catalogs.
	CatalogIndex int
	Catalogs     int
	Catalog      string
	// Current and Total count records of Catalog.
	Current int
	Total   int
	// Key is the document id just processed; Err is set when it failed.
	Key string
	Err error
}

// ProgressFunc receives build progress. It is called from the building
// goroutine.
type ProgressFunc func(Progress)

// Options configures an Indexer.
type Options struct {
	// ID is the service identifier naming the index directories.
	ID string
	// ConfigDir holds the index directories and the writer lock.
	ConfigDir string
	// Source provides the catalogs and records to index.
	Source record.Source
	// Queryables defaults to the built-in term maps.
	Queryables *queryable.Set
	// CodeLists are merged over the defaults and the source's own lists.
	CodeLists record.CodeLists
	// LockTimeout bounds the wait for the cross-process writer lock.
	LockTimeout time.Duration
	// Progress is called during full builds. Optional.
	Progress ProgressFunc
}

// BuildStats summarizes a full build.
type BuildStats struct {
	Catalogs int
	Indexed  int
	Failed   int
	Duration time.Duration
}

// Info describes the current index.
type Info struct {
	ID         string
	Path       string
	Documents  uint64
	Generation uint64
}

// Indexer builds, extends and replaces the index of one service.
type Indexer struct {
	id         string
	currentDir string
	nextDir    string
	stagingDir string

	source   record.Source
	builder  *Builder
	mapping  mapping.IndexMapping
	progress ProgressFunc

	// extraLists are the configured codelists layered over the source's.
	extraLists record.CodeLists

	// mu serializes writers in this process; lock does it across processes.
	mu    sync.Mutex
	lock  *writerLock
	store *Store

	// created is set when construction had to build the index.
	created bool

	swapMu    sync.Mutex
	listeners []func()
}

// New resolves the index directories of opts.ID, promotes a pre-generated
// index if one exists and opens the current index. When no index exists at
// all the full build runs inline before New returns, so the first start of
// a service costs a complete pass over its source.
func New(ctx context.Context, opts Options) (*Indexer, error) {
	if opts.ID == "" {
		return nil, sdierrors.ValidationError("indexer requires a service id", nil)
	}
	if opts.ConfigDir == "" {
		return nil, sdierrors.ValidationError("indexer requires a configuration directory", nil)
	}
	if opts.Source == nil {
		return nil, sdierrors.ValidationError("indexer requires a record source", nil)
	}

	set := opts.Queryables
	if set == nil {
		var err error
		if set, err = queryable.Builtin(); err != nil {
			return nil, sdierrors.ConfigError("failed to load queryable term maps", err)
		}
	}
	m, err := NewMapping(set)
	if err != nil {
		return nil, sdierrors.ConfigError("failed to build index mapping", err)
	}

	lists := mergeCodeLists(ctx, opts.ID, opts.Source, opts.CodeLists)

	ix := &Indexer{
		id:         opts.ID,
		currentDir: filepath.Join(opts.ConfigDir, opts.ID+currentSuffix),
		nextDir:    filepath.Join(opts.ConfigDir, opts.ID+nextSuffix),
		stagingDir: filepath.Join(opts.ConfigDir, opts.ID+stagingSuffix),
		source:     opts.Source,
		builder:    NewBuilder(set, lists),
		mapping:    m,
		progress:   opts.Progress,
		extraLists: opts.CodeLists,
		lock:       newWriterLock(opts.ConfigDir, opts.ID, opts.LockTimeout),
	}

	if exists(ix.stagingDir) {
		slog.Warn("index_staging_discarded",
			slog.String("service", ix.id),
			slog.String("path", ix.stagingDir))
		if err := os.RemoveAll(ix.stagingDir); err != nil {
			return nil, sdierrors.New(sdierrors.ErrCodeIndexSwap, "failed to remove unfinished index build", err).
				WithDetail("path", ix.stagingDir)
		}
	}

	if exists(ix.nextDir) {
		if err := promoteDir(ix.nextDir, ix.currentDir); err != nil {
			return nil, err
		}
		slog.Info("index_promoted",
			slog.String("service", ix.id),
			slog.String("path", ix.currentDir))
	}

	if !exists(ix.currentDir) {
		ix.created = true
		slog.Info("index_missing_building",
			slog.String("service", ix.id),
			slog.String("path", ix.currentDir))
		if _, err := ix.CreateIndex(ctx); err != nil {
			return nil, err
		}
		return ix, nil
	}

	store, err := OpenStore(ix.currentDir, ix.mapping)
	if err != nil {
		return nil, sdierrors.New(sdierrors.ErrCodeCorruptIndex, "failed to open index", err).
			WithDetail("path", ix.currentDir)
	}
	ix.store = store

	if store.Cleared() {
		ix.created = true
		slog.Warn("index_corrupt_rebuilding",
			slog.String("service", ix.id),
			slog.String("path", ix.currentDir))
		if _, err := ix.CreateIndex(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return ix, nil
}

// ID returns the service identifier.
func (ix *Indexer) ID() string {
	return ix.id
}

// Created reports whether construction built the index from scratch,
// either because none existed or because the existing one was corrupt.
func (ix *Indexer) Created() bool {
	return ix.created
}

// Store returns the shared handle on the current index.
func (ix *Indexer) Store() *Store {
	return ix.store
}

// Builder returns the document builder.
func (ix *Indexer) Builder() *Builder {
	return ix.builder
}

// OnSwap registers fn to run after every promotion of a new index.
func (ix *Indexer) OnSwap(fn func()) {
	ix.swapMu.Lock()
	defer ix.swapMu.Unlock()
	ix.listeners = append(ix.listeners, fn)
}

// Dirs returns the current and pre-generated index directories.
func (ix *Indexer) Dirs() (current, next string) {
	return ix.currentDir, ix.nextDir
}

// CreateIndex indexes every record of every catalog into a fresh staging
// index, moves it to the pre-generated directory and promotes it. Record and catalog failures
// are logged and skipped. Writer failures abort the build and leave the
// current index untouched.
func (ix *Indexer) CreateIndex(ctx context.Context) (BuildStats, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.lock.Lock(ctx); err != nil {
		return BuildStats{}, err
	}
	defer func() {
		if err := ix.lock.Unlock(); err != nil {
			slog.Warn("index_unlock_failed",
				slog.String("service", ix.id),
				slog.String("error", err.Error()))
		}
	}()

	start := time.Now()
	stats, err := ix.build(ctx)
	if err != nil {
		if rmErr := os.RemoveAll(ix.stagingDir); rmErr != nil {
			slog.Warn("index_shadow_cleanup_failed",
				slog.String("service", ix.id),
				slog.String("path", ix.stagingDir),
				slog.String("error", rmErr.Error()))
		}
		slog.Error("index_build_failed",
			slog.String("service", ix.id),
			slog.String("error", err.Error()))
		return stats, err
	}

	ix.report(Progress{Phase: PhasePromote, Catalogs: stats.Catalogs})
	if err := ix.promote(); err != nil {
		return stats, err
	}
	stats.Duration = time.Since(start)
	metrics.IndexRebuildDuration.WithLabelValues(ix.id).Observe(stats.Duration.Seconds())

	slog.Info("index_built",
		slog.String("service", ix.id),
		slog.Int("catalogs", stats.Catalogs),
		slog.Int("indexed", stats.Indexed),
		slog.Int("failed", stats.Failed),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// ReloadCodeLists reads the source's codelists again. Documents indexed
// afterwards resolve codes against the new lists; call Rebuild to apply
// them to the whole index.
func (ix *Indexer) ReloadCodeLists(ctx context.Context) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.builder.Resolver().SetCodeLists(mergeCodeLists(ctx, ix.id, ix.source, ix.extraLists))
}

func mergeCodeLists(ctx context.Context, id string, src record.Source, extra record.CodeLists) record.CodeLists {
	lists := record.DefaultCodeLists()
	sourceLists, err := src.CodeLists(ctx)
	if err != nil {
		slog.Warn("codelists_unavailable",
			slog.String("service", id),
			slog.String("error", err.Error()))
	} else {
		lists = lists.Merge(sourceLists)
	}
	return lists.Merge(extra)
}

// Rebuild is CreateIndex for an indexer that is already serving: readers
// keep the previous index until the promotion.
func (ix *Indexer) Rebuild(ctx context.Context) (BuildStats, error) {
	return ix.CreateIndex(ctx)
}

func (ix *Indexer) build(ctx context.Context) (BuildStats, error) {
	var stats BuildStats

	w, err := createWriter(ix.stagingDir, ix.mapping)
	if err != nil {
		return stats, sdierrors.New(sdierrors.ErrCodeIndexWriter, "failed to open index writer", err)
	}

	catalogs, err := ix.source.Catalogs(ctx)
	if err != nil {
		_ = w.Close()
		return stats, sdierrors.New(sdierrors.ErrCodeSourceFailed, "failed to list catalogs", err)
	}

	ix.report(Progress{Phase: PhaseCatalogs, Catalogs: len(catalogs)})

	for n, c := range catalogs {
		if err := ctx.Err(); err != nil {
			_ = w.Close()
			return stats, err
		}

		records, err := ix.source.Records(ctx, c.Code)
		if err != nil {
			slog.Error("catalog_read_failed",
				slog.String("service", ix.id),
				slog.String("catalog", c.Code),
				slog.String("error", err.Error()))
			continue
		}
		stats.Catalogs++

		for i, rec := range records {
			err := ix.IndexDocumentWith(w, rec)
			if err != nil {
				stats.Failed++
				metrics.IndexDocumentsTotal.WithLabelValues(ix.id, "failed").Inc()
				slog.Warn("document_index_failed",
					slog.String("service", ix.id),
					slog.String("record_id", rec.ID),
					slog.String("catalog", c.Code),
					slog.String("error", err.Error()))
			} else {
				stats.Indexed++
				metrics.IndexDocumentsTotal.WithLabelValues(ix.id, "indexed").Inc()
			}
			ix.report(Progress{
				Phase:        PhaseRecords,
				CatalogIndex: n + 1,
				Catalogs:     len(catalogs),
				Catalog:      c.Code,
				Current:      i + 1,
				Total:        len(records),
				Key:          rec.Key(),
				Err:          err,
			})
		}
	}

	if err := w.Close(); err != nil {
		return stats, sdierrors.New(sdierrors.ErrCodeIndexWriter, "failed to close index writer", err)
	}
	if err := promoteDir(ix.stagingDir, ix.nextDir); err != nil {
		return stats, err
	}
	return stats, nil
}

func (ix *Indexer) report(p Progress) {
	if ix.progress != nil {
		ix.progress(p)
	}
}

// promote moves the pre-generated index over the current one and reopens
// the store on it.
func (ix *Indexer) promote() error {
	swap := func() error { return promoteDir(ix.nextDir, ix.currentDir) }

	if ix.store == nil {
		if err := swap(); err != nil {
			return err
		}
		store, err := OpenStore(ix.currentDir, ix.mapping)
		if err != nil {
			return sdierrors.New(sdierrors.ErrCodeCorruptIndex, "failed to open promoted index", err)
		}
		ix.store = store
	} else if err := ix.store.Replace(swap); err != nil {
		return err
	}

	ix.swapMu.Lock()
	listeners := append([]func(){}, ix.listeners...)
	ix.swapMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
	return nil
}

// IndexDocument adds rec to the current index with a writer of its own.
func (ix *Indexer) IndexDocument(ctx context.Context, rec *record.Record) error {
	return ix.withAppendWriter(ctx, func(w *Writer) error {
		if err := ix.IndexDocumentWith(w, rec); err != nil {
			metrics.IndexDocumentsTotal.WithLabelValues(ix.id, "failed").Inc()
			return err
		}
		metrics.IndexDocumentsTotal.WithLabelValues(ix.id, "indexed").Inc()
		return nil
	})
}

// IndexDocumentWith stages rec on an externally managed writer.
func (ix *Indexer) IndexDocumentWith(w *Writer, rec *record.Record) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}
	return w.Add(rec.Key(), ix.CreateDocument(rec))
}

// CreateDocument builds the index document of rec.
func (ix *Indexer) CreateDocument(rec *record.Record) map[string]interface{} {
	return ix.builder.Build(rec)
}

// RemoveDocument deletes the document indexed under key (<id>:<catalog>).
func (ix *Indexer) RemoveDocument(ctx context.Context, key string) error {
	return ix.withAppendWriter(ctx, func(w *Writer) error {
		w.Delete(key)
		metrics.IndexDocumentsTotal.WithLabelValues(ix.id, "removed").Inc()
		return nil
	})
}

func (ix *Indexer) withAppendWriter(ctx context.Context, fn func(*Writer) error) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.lock.Lock(ctx); err != nil {
		return err
	}
	defer func() {
		if err := ix.lock.Unlock(); err != nil {
			slog.Warn("index_unlock_failed",
				slog.String("service", ix.id),
				slog.String("error", err.Error()))
		}
	}()

	w, err := appendWriter(ix.store)
	if err != nil {
		return sdierrors.New(sdierrors.ErrCodeIndexWriter, "failed to open index writer", err)
	}
	if err := fn(w); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return sdierrors.New(sdierrors.ErrCodeIndexWriter, "failed to commit index writer", err)
	}
	return nil
}

// Info describes the current index.
func (ix *Indexer) Info() (Info, error) {
	count, err := ix.store.DocCount()
	if err != nil {
		return Info{}, err
	}
	return Info{
		ID:         ix.id,
		Path:       ix.currentDir,
		Documents:  count,
		Generation: ix.store.Generation(),
	}, nil
}

// Destroy closes the index and the record source. Failures are logged.
func (ix *Indexer) Destroy() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.store != nil {
		if err := ix.store.Close(); err != nil {
			slog.Warn("index_close_failed",
				slog.String("service", ix.id),
				slog.String("error", err.Error()))
		}
	}
	if err := ix.source.Close(); err != nil {
		slog.Warn("source_close_failed",
			slog.String("service", ix.id),
			slog.String("error", err.Error()))
	}
}

// promoteDir replaces current with next. The current directory is removed
// first because a directory cannot be renamed over a non-empty one.
func promoteDir(next, current string) error {
	if err := os.RemoveAll(current); err != nil {
		return sdierrors.New(sdierrors.ErrCodeIndexSwap, "failed to remove current index", err).
			WithDetail("path", current)
	}
	if err := os.Rename(next, current); err != nil {
		return sdierrors.New(sdierrors.ErrCodeIndexSwap, "failed to promote pre-generated index", err).
			WithDetail("path", next)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
