package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/constellation-sdi/constellation/internal/config"
	"github.com/constellation-sdi/constellation/internal/output"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by name.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	noColor bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints the details of each result.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithNoColor disables colored output.
func WithNoColor(noColor bool) Option {
	return func(c *Checker) {
		c.noColor = noColor
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against cfg.
func (c *Checker) RunAll(ctx context.Context, cfg *config.Config) []CheckResult {
	catalogs := 0
	for _, s := range cfg.Services {
		if s.Source != "" {
			catalogs++
		}
	}
	results := []CheckResult{
		c.CheckWritePermissions(cfg.ConfigDir),
		c.CheckDiskSpace(cfg.ConfigDir),
		c.CheckFileDescriptors(catalogs),
	}
	for _, s := range cfg.Sources {
		if ctx.Err() != nil {
			break
		}
		results = append(results, c.CheckSource(s))
	}
	for _, s := range cfg.Services {
		if s.ContextFile != "" {
			results = append(results, c.CheckContextFile(s))
		}
	}
	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "failed", "ready_with_warnings" or "ready".
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status == StatusWarn || r.Status == StatusFail {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	out := output.New(c.output, c.noColor)

	_, _ = fmt.Fprintln(c.output, "Constellation System Check")
	out.Newline()
	for _, r := range results {
		line := fmt.Sprintf("%s: %s", r.Name, r.Message)
		switch {
		case r.Status == StatusPass:
			out.Success(line)
		case r.IsCritical():
			out.Error(line)
		default:
			out.Warning(line)
		}
		if c.verbose && r.Details != "" {
			out.Detail(r.Details)
		}
	}

	out.Newline()
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))
}

// CheckWritePermissions checks that the index directory can be created and
// written.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{Name: "write_permissions", Required: true}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}
	f, err := os.CreateTemp(dir, ".constellation-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	result.Status = StatusPass
	result.Message = "OK"
	result.Details = dir
	return result
}

// CheckSource checks that a record source can be reached. A missing
// filesystem directory fails; a missing sqlite file is created on open.
func (c *Checker) CheckSource(s config.SourceConfig) CheckResult {
	result := CheckResult{Name: "source_" + s.Name, Required: false, Details: s.Path}

	switch s.Type {
	case config.SourceFilesystem:
		info, err := os.Stat(s.Path)
		switch {
		case err != nil:
			result.Status = StatusFail
			result.Message = fmt.Sprintf("record directory unavailable: %v", err)
		case !info.IsDir():
			result.Status = StatusFail
			result.Message = "record path is not a directory"
		default:
			result.Status = StatusPass
			result.Message = "filesystem OK"
		}
	case config.SourceSQLite:
		if s.Path == "" {
			result.Status = StatusWarn
			result.Message = "in-memory database, records are lost on exit"
			return result
		}
		if _, err := os.Stat(s.Path); err != nil {
			if _, dirErr := os.Stat(filepath.Dir(s.Path)); dirErr != nil {
				result.Status = StatusFail
				result.Message = fmt.Sprintf("database directory unavailable: %v", dirErr)
				return result
			}
			result.Status = StatusWarn
			result.Message = "database does not exist yet and will be created empty"
			return result
		}
		result.Status = StatusPass
		result.Message = "sqlite OK"
	default:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("unknown source type %q", s.Type)
	}
	return result
}

// CheckContextFile checks that a service context file exists.
func (c *Checker) CheckContextFile(s config.ServiceConfig) CheckResult {
	result := CheckResult{
		Name:    fmt.Sprintf("context_%s_%s", strings.ToLower(s.Specification), s.ID),
		Details: s.ContextFile,
	}
	if _, err := os.Stat(s.ContextFile); err != nil {
		result.Status = StatusFail
		result.Message = "context file missing; the service will not start"
		return result
	}
	result.Status = StatusPass
	result.Message = "OK"
	return result
}
