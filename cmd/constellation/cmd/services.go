package cmd

import (
	"github.com/spf13/cobra"

	"github.com/constellation-sdi/constellation/internal/ows"
	"github.com/constellation-sdi/constellation/internal/ui"
)

func newServicesCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "services",
		Short: "Start every configured service and report its state",
		Long: `Start every configured service the way serve does and print the state
of each worker: started, or error with the cause. Missing catalog indexes
are built.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			engine := ows.NewEngine()
			rt, err := startRuntime(cmd.Context(), cfg, engine, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.close()

			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)
			status := engine.Status()
			if jsonOutput {
				if status == nil {
					status = []ows.WorkerStatus{}
				}
				return renderer.RenderJSON(status)
			}
			return renderer.RenderServices(status)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
