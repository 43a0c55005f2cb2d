package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/constellation-sdi/constellation/internal/logging"
	"github.com/constellation-sdi/constellation/internal/ui"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	service string
	filter  string
	logFile string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View server logs",
		Long: `View and tail the server log (~/.constellation/logs/server.log).

By default, shows the last 50 lines. Use -f to follow new entries in
real-time (like 'tail -f').`,
		Example: `  constellation logs                  # Show last 50 lines
  constellation logs -n 200           # Show last 200 lines
  constellation logs -f               # Follow logs in real-time
  constellation logs --level warn     # Show warnings and errors
  constellation logs --service main   # Show entries of one service
  constellation logs --filter rebuild # Filter by pattern`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.service, "service", "", "Show only entries of one service")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Filter by keyword/pattern (regex)")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to log file")

	return cmd
}

func runLogs(ctx context.Context, out, errOut io.Writer, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Service: opts.service,
		Pattern: pattern,
		NoColor: noColor || ui.DetectNoColor() || !ui.IsTTY(out),
	}, out)

	_, _ = fmt.Fprintf(errOut, "Log file: %s\n", path)
	if !opts.follow {
		entries, err := viewer.Tail(path, opts.lines)
		if err != nil {
			return err
		}
		viewer.Print(entries)
		return nil
	}

	_, _ = fmt.Fprintln(errOut, "Following... (Ctrl+C to stop)")
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	entries := make(chan logging.Entry, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case e := <-entries:
			_, _ = fmt.Fprintln(out, viewer.Format(e))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			_, _ = fmt.Fprintln(errOut, "Stopped.")
			return nil
		}
	}
}
