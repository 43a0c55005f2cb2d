package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	sdierrors "github.com/constellation-sdi/constellation/internal/errors"
	"github.com/constellation-sdi/constellation/internal/queryable"
	"github.com/constellation-sdi/constellation/internal/ui"
)

type termJSON struct {
	Name  string   `json:"name"`
	Paths []string `json:"paths"`
}

type termMapJSON struct {
	Name  string     `json:"name"`
	Terms []termJSON `json:"terms"`
}

func newQueryablesCmd() *cobra.Command {
	var (
		jsonOutput bool
		showPaths  bool
	)

	cmd := &cobra.Command{
		Use:   "queryables [term-map]",
		Short: "List queryable term maps",
		Long: `List the queryable term maps used to index records, with the overrides
of the configured queryables file applied. Given a map name, list its terms
and, with --paths, the record paths each term reads.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			set, err := loadQueryables(cfg)
			if err != nil {
				return sdierrors.ConfigError("failed to load queryable term maps", err)
			}

			names := set.Names()
			if len(args) == 1 {
				if _, ok := set.Get(args[0]); !ok {
					return sdierrors.ValidationError(fmt.Sprintf("unknown term map %q", args[0]), nil)
				}
				names = []string{args[0]}
			}

			if jsonOutput {
				maps := make([]termMapJSON, 0, len(names))
				for _, name := range names {
					maps = append(maps, termMapToJSON(set.MustGet(name)))
				}
				return ui.NewStatusRenderer(cmd.OutOrStdout(), noColor).RenderJSON(maps)
			}

			out := cmd.OutOrStdout()
			styles := ui.GetStyles(noColor || ui.DetectNoColor())
			for _, name := range names {
				m := set.MustGet(name)
				_, _ = fmt.Fprintf(out, "%s %s\n", styles.Header.Render(m.Name),
					styles.Label.Render(fmt.Sprintf("(%d terms)", m.Len())))
				if len(args) == 0 {
					continue
				}
				for _, t := range m.Terms() {
					_, _ = fmt.Fprintf(out, "  %s\n", t.Name)
					if !showPaths {
						continue
					}
					for _, p := range t.Paths {
						_, _ = fmt.Fprintf(out, "    %s\n", styles.Dim.Render(p.String()))
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&showPaths, "paths", false, "Show the record paths of each term")

	return cmd
}

func termMapToJSON(m *queryable.TermMap) termMapJSON {
	out := termMapJSON{Name: m.Name, Terms: make([]termJSON, 0, m.Len())}
	for _, t := range m.Terms() {
		paths := make([]string, 0, len(t.Paths))
		for _, p := range t.Paths {
			paths = append(paths, p.String())
		}
		out.Terms = append(out.Terms, termJSON{Name: t.Name, Paths: paths})
	}
	return out
}
