package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/constellation-sdi/constellation/internal/ows"
	"github.com/constellation-sdi/constellation/pkg/version"
)

// versionInfo is the JSON form of the version command.
type versionInfo struct {
	version.BuildInfo
	Protocols map[ows.Specification][]string `json:"protocols"`
}

func supportedProtocols() map[ows.Specification][]string {
	out := make(map[ows.Specification][]string)
	for _, spec := range ows.Specifications() {
		for _, v := range spec.Versions() {
			out[spec] = append(out[spec], v.String())
		}
	}
	return out
}

func newVersionCmd() *cobra.Command {
	var jsonOutput bool
	var shortOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the build version, git commit and Go version, followed by the OWS
specifications and protocol versions this build negotiates.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if shortOutput {
				_, err := fmt.Fprintln(out, version.Short())
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(versionInfo{BuildInfo: version.GetInfo(), Protocols: supportedProtocols()})
			}

			_, _ = fmt.Fprintln(out, version.String())
			protocols := supportedProtocols()
			for _, spec := range ows.Specifications() {
				_, _ = fmt.Fprintf(out, "  %-5s %s\n", spec, strings.Join(protocols[spec], ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "Output only the version number")

	return cmd
}
