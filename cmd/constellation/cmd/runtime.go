package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/constellation-sdi/constellation/internal/config"
	"github.com/constellation-sdi/constellation/internal/csw"
	sdierrors "github.com/constellation-sdi/constellation/internal/errors"
	"github.com/constellation-sdi/constellation/internal/index"
	"github.com/constellation-sdi/constellation/internal/ows"
	"github.com/constellation-sdi/constellation/internal/queryable"
	"github.com/constellation-sdi/constellation/internal/record"
	"github.com/constellation-sdi/constellation/internal/record/fsstore"
	"github.com/constellation-sdi/constellation/internal/record/sqlstore"
)

// loadConfig reads the configuration selected by --config. Load validates
// it.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// loadQueryables returns the term maps configured for every catalog.
func loadQueryables(cfg *config.Config) (*queryable.Set, error) {
	if cfg.Queryables == "" {
		return queryable.Builtin()
	}
	return queryable.LoadSet(cfg.Queryables)
}

// openSource opens the record store declared by sc.
func openSource(sc config.SourceConfig) (record.Source, error) {
	switch sc.Type {
	case config.SourceSQLite:
		return sqlstore.Open(sc.Path)
	case config.SourceFilesystem:
		return fsstore.Open(sc.Path)
	default:
		return nil, fmt.Errorf("source %s: unknown type %q", sc.Name, sc.Type)
	}
}

// runtime holds the services started from one configuration.
type runtime struct {
	cfg      *config.Config
	engine   *ows.Engine
	catalogs []*csw.Service
	// watched maps catalog ids to the filesystem stores to follow.
	watched map[string]*fsstore.Store
}

// runtimeOptions selects what startRuntime brings up.
type runtimeOptions struct {
	// Only restricts the start to the catalog service with this id.
	Only string
	// Progress receives full build progress of catalog indexes.
	Progress index.ProgressFunc
}

// startRuntime registers a worker for every configured service on engine
// and opens the catalog indexes. A service that fails to start stays
// registered in the error state; only configuration problems fail the call.
func startRuntime(ctx context.Context, cfg *config.Config, engine *ows.Engine, opts runtimeOptions) (*runtime, error) {
	rt := &runtime{cfg: cfg, engine: engine, watched: make(map[string]*fsstore.Store)}

	var queryables *queryable.Set
	for _, sc := range cfg.Services {
		spec, err := ows.ParseSpecification(sc.Specification)
		if err != nil {
			rt.close()
			return nil, sdierrors.ConfigError("invalid service specification", err)
		}
		if opts.Only != "" && (spec != ows.CSW || sc.ID != opts.Only) {
			continue
		}

		if spec != ows.CSW {
			w := engine.NewWorker(ows.WorkerConfig{
				Specification:     spec,
				ID:                sc.ID,
				Versions:          sc.Versions,
				CacheCapabilities: sc.CacheCapabilities,
				ContextFile:       sc.ContextFile,
				Languages:         sc.Languages,
			})
			logWorker(w)
			continue
		}

		if queryables == nil {
			if queryables, err = loadQueryables(cfg); err != nil {
				rt.close()
				return nil, sdierrors.ConfigError("failed to load queryable term maps", err)
			}
		}
		svc, err := rt.startCatalog(ctx, sc, queryables, opts.Progress)
		if svc != nil {
			rt.catalogs = append(rt.catalogs, svc)
			logWorker(svc.Worker())
		}
		if err != nil && opts.Only != "" {
			rt.close()
			return nil, err
		}
	}

	if opts.Only != "" && len(rt.catalogs) == 0 {
		return nil, sdierrors.ConfigError(fmt.Sprintf("no catalog service %q configured", opts.Only), nil)
	}
	return rt, nil
}

func (rt *runtime) startCatalog(ctx context.Context, sc config.ServiceConfig, queryables *queryable.Set, progress index.ProgressFunc) (*csw.Service, error) {
	srcCfg, _ := rt.cfg.Source(sc.Source)
	src, err := openSource(srcCfg)
	if err != nil {
		err = sdierrors.New(sdierrors.ErrCodeSourceFailed, "failed to open record source "+srcCfg.Name, err)
		// register the failure so it shows in the service status
		w := rt.engine.NewWorker(ows.WorkerConfig{Specification: ows.CSW, ID: sc.ID, Versions: sc.Versions})
		w.Fail(err)
		logWorker(w)
		return nil, err
	}

	svc, err := csw.New(ctx, rt.engine, csw.Config{
		ID:                sc.ID,
		Versions:          sc.Versions,
		CacheCapabilities: sc.CacheCapabilities,
		ContextFile:       sc.ContextFile,
		Languages:         sc.Languages,
		ConfigDir:         rt.cfg.ConfigDir,
		Source:            src,
		Queryables:        queryables,
		LockTimeout:       rt.cfg.LockTimeout(),
		MaxCachedQueries:  rt.cfg.Index.MaxCachedQueries,
		Progress:          progress,
	})
	if err == nil && srcCfg.Watch {
		if store, ok := src.(*fsstore.Store); ok {
			rt.watched[sc.ID] = store
		}
	}
	return svc, err
}

// catalog returns the started catalog service with id.
func (rt *runtime) catalog(id string) (*csw.Service, bool) {
	for _, c := range rt.catalogs {
		if c.ID() == id {
			return c, true
		}
	}
	return nil, false
}

// close releases the catalog indexes and sources, then destroys every
// worker of the engine.
func (rt *runtime) close() {
	for _, c := range rt.catalogs {
		c.Close()
	}
	rt.catalogs = nil
	rt.engine.Close()
}

func logWorker(w *ows.Worker) {
	if err := w.StartError(); err != nil {
		slog.Error("service_start_failed",
			slog.String("specification", string(w.Specification())),
			slog.String("service", w.ID()),
			slog.String("error", err.Error()))
		return
	}
	slog.Info("service_started",
		slog.String("specification", string(w.Specification())),
		slog.String("service", w.ID()),
		slog.Int("versions", len(w.Versions())))
}
