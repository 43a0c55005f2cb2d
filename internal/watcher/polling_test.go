package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPolling(t *testing.T, root string) *PollingWatcher {
	t.Helper()
	w := NewPollingWatcher(30 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Start(ctx, root) }()
	// let the initial scan finish
	time.Sleep(80 * time.Millisecond)
	return w
}

func nextPolled(t *testing.T, w *PollingWatcher, path string) FileEvent {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Path == path {
				return ev
			}
		case <-deadline:
			t.Fatalf("no event for %s", path)
			return FileEvent{}
		}
	}
}

func TestPollingWatcher_CreateModifyDelete(t *testing.T) {
	// Given a catalog directory with one record
	root := t.TempDir()
	catalog := filepath.Join(root, "marine")
	require.NoError(t, os.MkdirAll(catalog, 0o755))
	existing := filepath.Join(catalog, "r1.yaml")
	require.NoError(t, os.WriteFile(existing, []byte("id: r1"), 0o644))

	w := startPolling(t, root)
	defer w.Stop()

	// When a record is added
	added := filepath.Join(catalog, "r2.yaml")
	require.NoError(t, os.WriteFile(added, []byte("id: r2"), 0o644))
	assert.Equal(t, OpCreate, nextPolled(t, w, added).Operation)

	// And an existing one grows
	require.NoError(t, os.WriteFile(existing, []byte("id: r1\ntitle: longer"), 0o644))
	assert.Equal(t, OpModify, nextPolled(t, w, existing).Operation)

	// And one is removed
	require.NoError(t, os.Remove(added))
	assert.Equal(t, OpDelete, nextPolled(t, w, added).Operation)
}

func TestPollingWatcher_SkipsHiddenEntries(t *testing.T) {
	root := t.TempDir()
	w := startPolling(t, root)
	defer w.Stop()

	hidden := filepath.Join(root, ".r1.yaml.swp")
	require.NoError(t, os.WriteFile(hidden, []byte("x"), 0o644))
	visible := filepath.Join(root, "r1.yaml")
	require.NoError(t, os.WriteFile(visible, []byte("x"), 0o644))

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-w.Events():
			require.NotEqual(t, hidden, ev.Path)
			if ev.Path == visible {
				return
			}
		case <-deadline:
			t.Fatal("no event for the visible file")
		}
	}
}

func TestPollingWatcher_StopClosesChannels(t *testing.T) {
	w := NewPollingWatcher(time.Second)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
}
