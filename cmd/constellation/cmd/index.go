package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/constellation-sdi/constellation/internal/csw"
	sdierrors "github.com/constellation-sdi/constellation/internal/errors"
	"github.com/constellation-sdi/constellation/internal/index"
	"github.com/constellation-sdi/constellation/internal/ows"
	"github.com/constellation-sdi/constellation/internal/record"
	"github.com/constellation-sdi/constellation/internal/record/fsstore"
	"github.com/constellation-sdi/constellation/internal/ui"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build and maintain catalog indexes",
		Long: `Build and maintain the full-text index of a catalog service.

An index lives in <config_dir>/<id>index. Full builds write to
<config_dir>/<id>nextIndex and replace the current index only once every
record has been processed.`,
	}

	cmd.AddCommand(newIndexBuildCmd())
	cmd.AddCommand(newIndexRebuildCmd())
	cmd.AddCommand(newIndexAddCmd())
	cmd.AddCommand(newIndexRemoveCmd())
	cmd.AddCommand(newIndexInfoCmd())

	return cmd
}

func newIndexBuildCmd() *cobra.Command {
	var noTUI bool

	cmd := &cobra.Command{
		Use:   "build <service-id>",
		Short: "Build the index of a catalog service if it is missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndexBuild(ctx, cmd, args[0], noTUI, false)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")

	return cmd
}

func newIndexRebuildCmd() *cobra.Command {
	var noTUI bool

	cmd := &cobra.Command{
		Use:   "rebuild <service-id>",
		Short: "Rebuild the index of a catalog service from its source",
		Long: `Rebuild the index of a catalog service from its record source.

The new index is built beside the current one and swapped in when complete.
A running server keeps answering from the previous index until then.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndexBuild(ctx, cmd, args[0], noTUI, true)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")

	return cmd
}

// buildCounter tallies build progress for the completion summary.
type buildCounter struct {
	mu       sync.Mutex
	catalogs int
	indexed  int
	failed   int
}

func (c *buildCounter) observe(next index.ProgressFunc) index.ProgressFunc {
	return func(p index.Progress) {
		c.mu.Lock()
		switch p.Phase {
		case index.PhaseCatalogs:
			c.catalogs = p.Catalogs
		case index.PhaseRecords:
			if p.Err != nil {
				c.failed++
			} else {
				c.indexed++
			}
		}
		c.mu.Unlock()
		next(p)
	}
}

func (c *buildCounter) stats(service string, d time.Duration) ui.CompletionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ui.CompletionStats{
		Service:  service,
		Catalogs: c.catalogs,
		Indexed:  c.indexed,
		Failed:   c.failed,
		Duration: d,
	}
}

func runIndexBuild(ctx context.Context, cmd *cobra.Command, id string, noTUI, rebuild bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	renderer := ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(noTUI),
		ui.WithNoColor(noColor),
		ui.WithService(id)))
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start renderer: %w", err)
	}
	defer func() { _ = renderer.Stop() }()

	counter := &buildCounter{}
	start := time.Now()

	rt, err := startRuntime(ctx, cfg, ows.NewEngine(), runtimeOptions{
		Only:     id,
		Progress: counter.observe(ui.ProgressFunc(renderer)),
	})
	if err != nil {
		renderer.AddError(ui.ErrorEvent{Err: err})
		return err
	}
	defer rt.close()

	svc, _ := rt.catalog(id)
	switch {
	case svc.Indexer().Created():
		renderer.Complete(counter.stats(id, time.Since(start)))
	case rebuild:
		if _, err := svc.Rebuild(ctx); err != nil {
			renderer.AddError(ui.ErrorEvent{Err: err})
			return err
		}
		renderer.Complete(counter.stats(id, time.Since(start)))
	default:
		_ = renderer.Stop()
		current, _ := svc.Indexer().Dirs()
		w := newOutput(cmd)
		w.Warningf("Index of %s already exists", id)
		w.Detailf("Location: %s", current)
		w.Detailf("Run 'constellation index rebuild %s' to rebuild it", id)
	}
	return nil
}

func newIndexAddCmd() *cobra.Command {
	var catalog string

	cmd := &cobra.Command{
		Use:   "add <service-id> <record-file>...",
		Short: "Store and index record documents",
		Long: `Add YAML record documents to a catalog service.

Records are stored in the service's source when it accepts writes, then
indexed into the current index without a rebuild. A document without a
catalog is added to --catalog.`,
		Example: `  # Index two records into the "main" catalog
  constellation index add main north-sea.yaml dogger.yaml --catalog main`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexAdd(cmd.Context(), cmd, args[0], args[1:], catalog)
		},
	}

	cmd.Flags().StringVar(&catalog, "catalog", "", "Catalog of documents that do not name one")

	return cmd
}

func runIndexAdd(ctx context.Context, cmd *cobra.Command, id string, files []string, catalog string) error {
	records := make([]*record.Record, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return sdierrors.New(sdierrors.ErrCodeFileNotFound, "failed to read record document", err).
				WithDetail("file", file)
		}
		rec, err := fsstore.Decode(data, catalog)
		if err != nil {
			return sdierrors.ValidationError("invalid record document "+file, err)
		}
		if rec.Catalog == "" {
			return sdierrors.ValidationError(fmt.Sprintf("record %s names no catalog; use --catalog", rec.ID), nil)
		}
		records = append(records, rec)
	}

	svc, closeFn, err := openCatalog(ctx, id)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := svc.Add(ctx, records...); err != nil {
		return err
	}
	out := newOutput(cmd)
	for _, rec := range records {
		out.Successf("Indexed %s", rec.Key())
	}
	return nil
}

func newIndexRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <service-id> <key>...",
		Short: "Remove documents from an index",
		Long: `Remove documents from the current index of a catalog service. A key is
<record id>:<catalog>. The record source is left untouched, so the next
rebuild indexes the records again.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openCatalog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			out := newOutput(cmd)
			for _, key := range args[1:] {
				if err := svc.Remove(cmd.Context(), key); err != nil {
					return err
				}
				out.Successf("Removed %s", key)
			}
			return nil
		},
	}
}

func newIndexInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info <service-id>",
		Short: "Show index information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := openCatalog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			status, err := indexStatus(svc)
			if err != nil {
				return err
			}
			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)
			if jsonOutput {
				return renderer.RenderJSON(status)
			}
			return renderer.RenderIndex(status)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// openCatalog starts the catalog service id alone. The returned function
// releases it.
func openCatalog(ctx context.Context, id string) (*csw.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	rt, err := startRuntime(ctx, cfg, ows.NewEngine(), runtimeOptions{Only: id})
	if err != nil {
		return nil, nil, err
	}
	svc, _ := rt.catalog(id)
	return svc, rt.close, nil
}

func indexStatus(svc *csw.Service) (ui.IndexStatus, error) {
	info, err := svc.Info()
	if err != nil {
		return ui.IndexStatus{}, err
	}
	status := ui.IndexStatus{
		Service:    svc.ID(),
		Path:       info.Path,
		Documents:  info.Documents,
		Generation: info.Generation,
	}
	status.Size, status.Modified = dirUsage(info.Path)
	return status, nil
}

// dirUsage sums the file sizes under dir and returns the latest
// modification time.
func dirUsage(dir string) (int64, time.Time) {
	var size int64
	var modified time.Time
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size += info.Size()
		if info.ModTime().After(modified) {
			modified = info.ModTime()
		}
		return nil
	})
	return size, modified
}
