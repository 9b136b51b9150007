package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/cruciblehq/cruxci/internal/catalog"
)

// Represents the 'cruxci list' command.
type ListCmd struct{}

// Executes the list command.
func (c *ListCmd) Run(ctx context.Context) error {
	return listJobs(os.Stdout, catalog.Default())
}

// Prints every job with its stage and description. Jobs in the default
// sequence are marked with their position in it.
func listJobs(w io.Writer, cat *catalog.Catalog) error {
	defaults := cat.DefaultSequence()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTAGE\tDEFAULT\tDESCRIPTION")
	for _, def := range cat.Definitions() {
		order := "-"
		if i := slices.Index(defaults, def.Name); i >= 0 {
			order = fmt.Sprint(i + 1)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", def.Name, def.Stage, order, def.Description)
	}
	return tw.Flush()
}
