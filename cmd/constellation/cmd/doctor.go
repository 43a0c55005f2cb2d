package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	sdierrors "github.com/constellation-sdi/constellation/internal/errors"
	"github.com/constellation-sdi/constellation/internal/preflight"
	"github.com/constellation-sdi/constellation/internal/ui"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run system diagnostics against the configuration.

Checks:
  - Write permissions in the index directory
  - Disk space (100MB minimum)
  - File descriptor limits (1024 minimum)
  - Reachability of every record source
  - Presence of every service context file

Source and context file checks are non-critical: the affected services
fail to start while the others run.`,
		Example: `  # Run diagnostics
  constellation doctor

  # JSON output for scripting
  constellation doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithNoColor(noColor || ui.DetectNoColor() || !ui.IsTTY(out)),
		preflight.WithOutput(out),
	)
	results := checker.RunAll(cmd.Context(), cfg)

	if jsonOutput {
		if err := writeDoctorJSON(cmd, checker, results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return sdierrors.New(sdierrors.ErrCodeInternal, "system check failed", nil)
	}
	return nil
}

// doctorReport is the JSON form of a doctor run.
type doctorReport struct {
	Status   string                  `json:"status"`
	Checks   []preflight.CheckResult `json:"checks"`
	Warnings []string                `json:"warnings,omitempty"`
	Errors   []string                `json:"errors,omitempty"`
}

func writeDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	report := doctorReport{
		Status: checker.SummaryStatus(results),
		Checks: results,
	}
	for _, r := range results {
		switch {
		case r.IsCritical():
			report.Errors = append(report.Errors, r.Name+": "+r.Message)
		case r.Status != preflight.StatusPass:
			report.Warnings = append(report.Warnings, r.Name+": "+r.Message)
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
