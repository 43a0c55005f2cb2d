// Package watcher follows changes to a filesystem metadata store so its
// records can be reindexed incrementally.
//
// fsnotify is the primary mechanism; polling takes over where fsnotify is
// unavailable (network mounts, some container volumes). Events are debounced
// so an editor's save sequence produces one change per file.
//
// Usage:
//
//	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go w.Start(ctx, root)
//
//	for batch := range w.Events() {
//	    for _, ev := range batch {
//	        // ev.Path is absolute
//	    }
//	}
package watcher
