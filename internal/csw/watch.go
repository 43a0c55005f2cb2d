package csw

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/constellation-sdi/constellation/internal/record/fsstore"
	"github.com/constellation-sdi/constellation/internal/watcher"
)

// HandleEvents applies a batch of file events from a record directory to
// the index. Created and modified files are (re)indexed, deleted or renamed
// files are removed, and a codelist change reloads the codelists and
// rebuilds the whole index. Failures are logged; the batch continues.
func (s *Service) HandleEvents(ctx context.Context, store *fsstore.Store, batch []watcher.FileEvent) {
	if err := s.worker.CheckStarted(); err != nil {
		slog.Warn("watch_events_ignored",
			slog.String("service", s.ID()),
			slog.Int("events", len(batch)),
			slog.String("error", err.Error()))
		return
	}

	changed := false
	for _, ev := range batch {
		if ev.IsDir {
			continue
		}
		switch ev.Operation {
		case watcher.OpCodeListChange:
			s.indexer.ReloadCodeLists(ctx)
			if _, err := s.indexer.Rebuild(ctx); err != nil {
				slog.Error("watch_rebuild_failed",
					slog.String("service", s.ID()),
					slog.String("error", err.Error()))
			}
			// the rebuild indexed every file of the batch already
			return

		case watcher.OpCreate, watcher.OpModify:
			rec, err := store.LoadFile(ev.Path)
			if err != nil {
				slog.Warn("record_decode_failed",
					slog.String("service", s.ID()),
					slog.String("path", ev.Path),
					slog.String("error", err.Error()))
				continue
			}
			if err := s.indexer.IndexDocument(ctx, rec); err != nil {
				slog.Warn("document_index_failed",
					slog.String("service", s.ID()),
					slog.String("path", ev.Path),
					slog.String("error", err.Error()))
				continue
			}
			changed = true

		case watcher.OpDelete, watcher.OpRename:
			key, ok := store.Forget(ev.Path)
			if !ok {
				continue
			}
			if err := s.indexer.RemoveDocument(ctx, key); err != nil {
				slog.Warn("document_remove_failed",
					slog.String("service", s.ID()),
					slog.String("key", key),
					slog.String("error", err.Error()))
				continue
			}
			changed = true
		}
	}

	if changed {
		s.contentChanged()
	}
}

// Watch follows the record directory of store until ctx is done and keeps
// the index in step with it.
func (s *Service) Watch(ctx context.Context, store *fsstore.Store, opts watcher.Options) error {
	opts.Accept = fsstore.IsRecordFile
	opts.CodeListFile = fsstore.CodeListsFile

	w, err := watcher.NewHybridWatcher(opts)
	if err != nil {
		return err
	}
	go func() {
		if err := w.Start(ctx, store.Root()); err != nil && ctx.Err() == nil {
			slog.Error("watcher_failed",
				slog.String("service", s.ID()),
				slog.String("error", err.Error()))
			_ = w.Stop()
		}
	}()
	defer func() {
		if err := w.Stop(); err != nil {
			slog.Warn("watcher_stop_failed",
				slog.String("service", s.ID()),
				slog.String("error", err.Error()))
		}
	}()

	slog.Info("watch_started",
		slog.String("service", s.ID()),
		slog.String("root", filepath.Clean(store.Root())),
		slog.String("watcher", w.WatcherType()))

	errs := w.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			s.HandleEvents(ctx, store, batch)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watch_error",
				slog.String("service", s.ID()),
				slog.String("error", err.Error()))
		}
	}
}
