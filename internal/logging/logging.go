package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Empty means stderr only.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation.
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep.
	MaxFiles int
	// WriteToStderr also writes every record to stderr.
	WriteToStderr bool
}

// DefaultConfig logs at info level to the default file and stderr.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig is DefaultConfig at debug level.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup builds a JSON logger from cfg. The returned cleanup closes the log
// file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	if cfg.FilePath == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), func() {}, nil
	}

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = writer
	if cfg.WriteToStderr {
		output = io.MultiWriter(writer, os.Stderr)
	}

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return slog.New(slog.NewJSONHandler(output, opts)), cleanup, nil
}

// SetupDefault installs a logger built from cfg as the slog default.
func SetupDefault(cfg Config) (func(), error) {
	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	slog.Debug("logging_initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level),
		slog.Bool("stderr", cfg.WriteToStderr))
	return cleanup, nil
}

// ParseLevel converts a level name to slog.Level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
