package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	sdierrors "github.com/constellation-sdi/constellation/internal/errors"
	"github.com/constellation-sdi/constellation/internal/search"
	"github.com/constellation-sdi/constellation/internal/ui"
)

type searchOptions struct {
	bbox   string
	terms  []string
	sort   []string
	limit  int
	offset int
	json   bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <service-id> [text]",
		Short: "Search the index of a catalog service",
		Long: `Search the current index of a catalog service.

Free text matches the aggregated AnyText of the records; every word must
appear. Queryable terms, a bounding box and a sort order narrow and order
the hits.`,
		Example: `  # Free text
  constellation search main "sea salinity"

  # Terms and a bounding box (west,south,east,north)
  constellation search main --term Type=dataset --bbox -10,40,10,60

  # Sort by title descending, JSON output
  constellation search main sea --sort -Title --json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) > 1 {
				text = args[1]
			}
			return runSearch(cmd, args[0], text, opts)
		},
	}

	cmd.Flags().StringVar(&opts.bbox, "bbox", "", "Bounding box west,south,east,north")
	cmd.Flags().StringArrayVarP(&opts.terms, "term", "t", nil, "Queryable term filter name=value (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.sort, "sort", "s", nil, "Sort terms, '-' prefix for descending")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", search.DefaultLimit, "Maximum number of hits")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Number of hits to skip")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")

	return cmd
}

// buildQuery turns the command line into a search query.
func buildQuery(text string, opts searchOptions) (search.Query, error) {
	q := search.Query{
		AnyText: text,
		Sort:    opts.sort,
		Limit:   opts.limit,
		Offset:  opts.offset,
	}
	if opts.bbox != "" {
		box, err := search.ParseBBox(opts.bbox)
		if err != nil {
			return q, sdierrors.New(sdierrors.ErrCodeInvalidQuery, "invalid bounding box", err)
		}
		q.BBox = box
	}
	for _, t := range opts.terms {
		name, value, ok := strings.Cut(t, "=")
		if !ok || name == "" {
			return q, sdierrors.New(sdierrors.ErrCodeInvalidQuery,
				fmt.Sprintf("term filter %q must be name=value", t), nil)
		}
		if q.Terms == nil {
			q.Terms = make(map[string]string, len(opts.terms))
		}
		q.Terms[name] = value
	}
	return q, nil
}

func runSearch(cmd *cobra.Command, id, text string, opts searchOptions) error {
	q, err := buildQuery(text, opts)
	if err != nil {
		return err
	}

	svc, closeFn, err := openCatalog(cmd.Context(), id)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := svc.Search(cmd.Context(), q)
	if err != nil {
		return err
	}

	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(cmd.OutOrStdout(), res, q.Offset)
	return nil
}

func printResult(out io.Writer, res *search.Result, offset int) {
	styles := ui.GetStyles(noColor || ui.DetectNoColor())

	if len(res.Hits) == 0 {
		_, _ = fmt.Fprintf(out, "No records found (%d total).\n", res.Total)
		return
	}

	_, _ = fmt.Fprintf(out, "%s\n\n", styles.Header.Render(
		fmt.Sprintf("%d-%d of %d records", offset+1, offset+len(res.Hits), res.Total)))
	for i, h := range res.Hits {
		title := h.Title
		if title == "" {
			title = h.RecordID
		}
		_, _ = fmt.Fprintf(out, "%3d. %s\n", offset+i+1, styles.Active.Render(title))
		_, _ = fmt.Fprintf(out, "     %s  %s\n",
			styles.Label.Render(h.Key),
			styles.Dim.Render(fmt.Sprintf("score %.3f", h.Score)))
	}
	_, _ = fmt.Fprintf(out, "\n%s\n", styles.Dim.Render(fmt.Sprintf("took %s", res.Took)))
}
