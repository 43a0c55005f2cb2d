package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/constellation-sdi/constellation/internal/config"
	"github.com/constellation-sdi/constellation/internal/logging"
	"github.com/constellation-sdi/constellation/internal/metrics"
	"github.com/constellation-sdi/constellation/internal/ows"
	"github.com/constellation-sdi/constellation/internal/server"
	"github.com/constellation-sdi/constellation/internal/watcher"
	"github.com/constellation-sdi/constellation/pkg/version"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start every configured service and serve them over HTTP.

Catalog indexes missing on disk are built before the server accepts
requests. Filesystem sources marked with 'watch: true' are followed and
their changes indexed as they happen.

Signals:
  SIGHUP           reload the configuration and restart the services
  SIGINT, SIGTERM  shut down gracefully`,
		Example: `  # Serve with the user configuration
  constellation serve

  # Override the listen address
  constellation serve --address :9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), address)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Listen address (default: server.address from the configuration)")

	return cmd
}

func runServe(ctx context.Context, address string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if address != "" {
		cfg.Server.Address = address
	}

	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Server.LogLevel
		cleanup, err := logging.SetupDefault(logCfg)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		defer cleanup()
	}

	slog.Info("server_starting",
		slog.String("version", version.Version),
		slog.String("config", cfg.Path()),
		slog.String("address", cfg.Server.Address))

	metrics.Register()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := ows.NewEngine()
	rt, err := startRuntime(ctx, cfg, engine, runtimeOptions{})
	if err != nil {
		return err
	}
	srv := server.New(engine, rt.catalogs...)
	watchers := rt.watch(ctx)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server_listening", slog.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			slog.Info("server_stopping")
			break loop
		case err, ok := <-serveErr:
			if ok {
				runErr = fmt.Errorf("server failed: %w", err)
			}
			break loop
		case <-hup:
			next, err := loadConfig()
			if err != nil {
				slog.Error("config_reload_failed", slog.String("error", err.Error()))
				continue
			}
			watchers.stop()
			rt.close()
			rt, err = startRuntime(ctx, next, engine, runtimeOptions{})
			if err != nil {
				// the previous services are gone; keep serving an empty engine
				slog.Error("config_reload_failed", slog.String("error", err.Error()))
				rt = &runtime{cfg: next, engine: engine}
			}
			srv.SetCatalogs(rt.catalogs...)
			watchers = rt.watch(ctx)
			slog.Info("config_reloaded",
				slog.String("config", next.Path()),
				slog.Int("services", len(engine.Status())))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("server_shutdown_failed", slog.String("error", err.Error()))
	}
	watchers.stop()
	rt.close()
	slog.Info("server_stopped")
	return runErr
}

// watchGroup is the set of running directory watchers.
type watchGroup struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// watch follows every watched filesystem source until ctx is done or the
// group is stopped.
func (rt *runtime) watch(ctx context.Context) *watchGroup {
	ctx, cancel := context.WithCancel(ctx)
	g := &watchGroup{cancel: cancel}
	if rt.cfg == nil {
		return g
	}

	opts := watcher.Options{
		DebounceWindow: rt.cfg.Debounce(),
		PollInterval:   rt.cfg.PollInterval(),
	}
	for id, store := range rt.watched {
		svc, ok := rt.catalog(id)
		if !ok {
			continue
		}
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			if err := svc.Watch(ctx, store, opts); err != nil {
				slog.Error("watch_failed",
					slog.String("service", id),
					slog.String("error", err.Error()))
			}
		}()
	}
	return g
}

func (g *watchGroup) stop() {
	g.cancel()
	g.wg.Wait()
}

// configFile is the file serve and the other commands read.
func configFile() string {
	if configPath != "" {
		return configPath
	}
	return config.GetUserConfigPath()
}
