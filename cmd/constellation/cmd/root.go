// Package cmd provides the CLI commands for Constellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	sdierrors "github.com/constellation-sdi/constellation/internal/errors"
	"github.com/constellation-sdi/constellation/internal/logging"
	"github.com/constellation-sdi/constellation/internal/profiling"
	"github.com/constellation-sdi/constellation/pkg/version"
)

// Global flags
var (
	configPath     string
	debugMode      bool
	noColor        bool
	loggingCleanup func()
)

// Profiling flags
var (
	profileOpts profiling.Options
	profile     *profiling.Session
)

// NewRootCmd creates the root command for the constellation CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "constellation",
		Short: "Spatial data infrastructure metadata catalog",
		Long: `Constellation indexes geographic metadata records (ISO 19115, Dublin Core,
ebRIM) into per-service full-text indexes and serves them through OGC
web service front ends.

Run 'constellation config init' to create a configuration, then
'constellation serve' to start the server.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("constellation version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default: user config)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.constellation/logs/")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServicesCmd())
	cmd.AddCommand(newQueryablesCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts the requested profiles and installs the
// debug file logger when --debug is set. Without it commands only log
// warnings to stderr; serve sets up its own logger.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if profileOpts.Enabled() {
		session, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profile = session
	}

	if !debugMode {
		logger, _, _ := logging.Setup(logging.Config{Level: "warn"})
		slog.SetDefault(logger)
		return nil
	}

	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug_logging_enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profile != nil {
		err = profile.Stop()
		profile = nil
	}

	if loggingCleanup != nil {
		slog.Info("debug_logging_stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints a failure the way the error
// carries it.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		msg := sdierrors.FormatForUser(err, debugMode)
		if _, ok := sdierrors.As(err); !ok {
			msg = "Error: " + msg
		}
		_, _ = fmt.Fprintln(os.Stderr, msg)
	}
	return err
}
