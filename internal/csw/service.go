// Package csw binds a catalog service worker to its record source, its
// index and its searcher.
//
// A Service is the unit the server and the CLI operate on: the worker
// answers capabilities and version negotiation, the indexer keeps the index
// of the source current, and the searcher answers record queries. Index
// promotions refresh the searcher and move the worker's update sequence.
package csw

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	sdierrors "github.com/constellation-sdi/constellation/internal/errors"
	"github.com/constellation-sdi/constellation/internal/index"
	"github.com/constellation-sdi/constellation/internal/ows"
	"github.com/constellation-sdi/constellation/internal/queryable"
	"github.com/constellation-sdi/constellation/internal/record"
	"github.com/constellation-sdi/constellation/internal/search"
)

// Config configures one catalog service instance.
type Config struct {
	ID                string
	Versions          []string
	CacheCapabilities bool
	ContextFile       string
	Languages         []string

	// ConfigDir holds the index directories of the service.
	ConfigDir string
	Source    record.Source
	// Queryables defaults to the built-in term maps.
	Queryables       *queryable.Set
	CodeLists        record.CodeLists
	LockTimeout      time.Duration
	MaxCachedQueries int
	Progress         index.ProgressFunc
	// Clock is passed to the worker. Optional.
	Clock func() time.Time
}

// RecordWriter is implemented by sources records can be stored into.
type RecordWriter interface {
	Put(ctx context.Context, records ...*record.Record) error
}

// Service is a running catalog service.
type Service struct {
	worker     *ows.Worker
	indexer    *index.Indexer
	searcher   *search.Searcher
	source     record.Source
	queryables *queryable.Set
}

// New starts a catalog service and registers its worker with engine. When
// the index cannot be opened or built the worker is registered in the error
// state and the cause is returned along with the service, so the failure is
// visible through the worker status. Building a missing index happens here,
// before New returns.
func New(ctx context.Context, engine *ows.Engine, cfg Config) (*Service, error) {
	s := &Service{source: cfg.Source, queryables: cfg.Queryables}

	s.worker = ows.NewWorker(ows.WorkerConfig{
		Specification:     ows.CSW,
		ID:                cfg.ID,
		Versions:          cfg.Versions,
		CacheCapabilities: cfg.CacheCapabilities,
		ContextFile:       cfg.ContextFile,
		Languages:         cfg.Languages,
		Renderer:          s.render,
		Clock:             cfg.Clock,
	}, engine.Cache())
	engine.Register(s.worker)

	if err := s.worker.StartError(); err != nil {
		return s, err
	}

	if s.queryables == nil {
		set, err := queryable.Builtin()
		if err != nil {
			err = sdierrors.ConfigError("failed to load queryable term maps", err)
			s.worker.Fail(err)
			return s, err
		}
		s.queryables = set
	}

	ix, err := index.New(ctx, index.Options{
		ID:          cfg.ID,
		ConfigDir:   cfg.ConfigDir,
		Source:      cfg.Source,
		Queryables:  s.queryables,
		CodeLists:   cfg.CodeLists,
		LockTimeout: cfg.LockTimeout,
		Progress:    cfg.Progress,
	})
	if err != nil {
		s.worker.Fail(err)
		return s, err
	}
	s.indexer = ix
	s.searcher = search.New(cfg.ID, ix.Store(), cfg.MaxCachedQueries)

	ix.OnSwap(s.contentChanged)
	return s, nil
}

// ID returns the service identifier.
func (s *Service) ID() string {
	return s.worker.ID()
}

// Worker returns the protocol worker.
func (s *Service) Worker() *ows.Worker {
	return s.worker
}

// Indexer returns the index of the service, nil when the service failed.
func (s *Service) Indexer() *index.Indexer {
	return s.indexer
}

// Queryables returns the term maps the index was built with.
func (s *Service) Queryables() *queryable.Set {
	return s.queryables
}

func (s *Service) contentChanged() {
	s.searcher.Refresh()
	seq := s.worker.RefreshUpdateSequence()
	slog.Debug("catalog_content_changed",
		slog.String("service", s.worker.ID()),
		slog.Int64("update_sequence", seq))
}

// Search runs a record query.
func (s *Service) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	if err := s.worker.CheckStarted(); err != nil {
		return nil, err
	}
	return s.searcher.Search(ctx, q)
}

// Rebuild builds a new index from the source and swaps it in. Searches are
// served from the previous index until the swap.
func (s *Service) Rebuild(ctx context.Context) (index.BuildStats, error) {
	if err := s.worker.CheckStarted(); err != nil {
		return index.BuildStats{}, err
	}
	return s.indexer.Rebuild(ctx)
}

// Add stores records in the source when it accepts writes, then indexes
// them. Records are indexed one by one; the first failure stops the call.
func (s *Service) Add(ctx context.Context, records ...*record.Record) error {
	if err := s.worker.CheckStarted(); err != nil {
		return err
	}
	if w, ok := s.source.(RecordWriter); ok {
		if err := w.Put(ctx, records...); err != nil {
			return sdierrors.New(sdierrors.ErrCodeSourceFailed, "failed to store records", err)
		}
	}
	for _, rec := range records {
		if err := s.indexer.IndexDocument(ctx, rec); err != nil {
			return err
		}
	}
	s.contentChanged()
	return nil
}

// Remove drops the document indexed under key (<record id>:<catalog>).
func (s *Service) Remove(ctx context.Context, key string) error {
	if err := s.worker.CheckStarted(); err != nil {
		return err
	}
	if err := s.indexer.RemoveDocument(ctx, key); err != nil {
		return err
	}
	s.contentChanged()
	return nil
}

// Info describes the index of the service.
func (s *Service) Info() (index.Info, error) {
	if err := s.worker.CheckStarted(); err != nil {
		return index.Info{}, err
	}
	return s.indexer.Info()
}

// Close releases the index and the record source. The worker itself is
// destroyed by the engine.
func (s *Service) Close() {
	if s.indexer != nil {
		s.indexer.Destroy()
		return
	}
	if s.source != nil {
		if err := s.source.Close(); err != nil {
			slog.Warn("source_close_failed",
				slog.String("service", s.worker.ID()),
				slog.String("error", err.Error()))
		}
	}
}

// render extends the default capabilities document with the catalog's
// queryables and index state.
func (s *Service) render(ctx context.Context, w *ows.Worker, version ows.Version, language string) (*ows.Capabilities, error) {
	caps, err := ows.DefaultRenderer(ctx, w, version, language)
	if err != nil {
		return nil, err
	}
	caps.Extensions = map[string]string{}

	if s.queryables != nil {
		for _, name := range []string{queryable.ISO19115, queryable.DublinCore} {
			if m, ok := s.queryables.Get(name); ok {
				caps.Extensions["queryables."+name] = strings.Join(m.Names(), ",")
			}
		}
	}
	if s.indexer != nil {
		info, err := s.indexer.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to read index state: %w", err)
		}
		caps.Extensions["documents"] = strconv.FormatUint(info.Documents, 10)
	}
	return caps, nil
}
