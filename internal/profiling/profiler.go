// Package profiling writes CPU, heap and execution trace profiles of one
// command run.
package profiling

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Options names the profile files to write. Empty paths are skipped.
type Options struct {
	CPU   string
	Heap  string
	Trace string
}

// Enabled reports whether any profile is requested.
func (o Options) Enabled() bool {
	return o.CPU != "" || o.Heap != "" || o.Trace != ""
}

// Session is a running set of profiles.
type Session struct {
	opts      Options
	cpuFile   *os.File
	traceFile *os.File
}

// Start begins CPU profiling and tracing as requested. On failure nothing
// is left running.
func Start(opts Options) (*Session, error) {
	s := &Session{opts: opts}

	if opts.CPU != "" {
		f, err := os.Create(opts.CPU)
		if err != nil {
			return nil, fmt.Errorf("failed to create CPU profile file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to start CPU profile: %w", err)
		}
		s.cpuFile = f
	}

	if opts.Trace != "" {
		f, err := os.Create(opts.Trace)
		if err != nil {
			_ = s.stopCPU()
			return nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			_ = s.stopCPU()
			return nil, fmt.Errorf("failed to start trace: %w", err)
		}
		s.traceFile = f
	}
	return s, nil
}

// Stop ends CPU profiling and tracing, then writes the heap profile.
func (s *Session) Stop() error {
	var errs []error
	if err := s.stopCPU(); err != nil {
		errs = append(errs, err)
	}
	if s.traceFile != nil {
		trace.Stop()
		if err := s.traceFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close trace file: %w", err))
		}
		s.traceFile = nil
		slog.Debug("profile_written", slog.String("kind", "trace"), slog.String("path", s.opts.Trace))
	}
	if s.opts.Heap != "" {
		if err := WriteHeap(s.opts.Heap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) stopCPU() error {
	if s.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := s.cpuFile.Close()
	s.cpuFile = nil
	if err != nil {
		return fmt.Errorf("failed to close CPU profile: %w", err)
	}
	slog.Debug("profile_written", slog.String("kind", "cpu"), slog.String("path", s.opts.CPU))
	return nil
}

// WriteHeap writes a heap profile after a garbage collection.
func WriteHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create heap profile file: %w", err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	slog.Debug("profile_written", slog.String("kind", "heap"), slog.String("path", path))
	return nil
}
