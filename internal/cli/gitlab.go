package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cruciblehq/cruxci/internal/catalog"
	"github.com/cruciblehq/cruxci/internal/gitlab"
	"github.com/cruciblehq/cruxci/internal/paths"
)

// Represents the 'cruxci gitlab' command.
type GitlabCmd struct {
	Jobs   []string `arg:"" optional:"" help:"Jobs to include. Includes every job when omitted." placeholder:"JOB"`
	Output string   `short:"o" help:"Output file, or - for standard output." default:".gitlab-ci.yml" placeholder:"PATH"`
}

// Executes the gitlab command.
func (c *GitlabCmd) Run(ctx context.Context) error {
	cat := catalog.Default()

	if c.Output == "-" {
		return writeDocument(os.Stdout, cat, c.Jobs)
	}

	f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, paths.DefaultFileMode)
	if err != nil {
		return err
	}
	if err := writeDocument(f, cat, c.Jobs); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	slog.Info("gitlab ci document written", "path", c.Output)
	return nil
}

// Builds the document for the named jobs, or for every job.
func document(cat *catalog.Catalog, names []string) (*gitlab.Document, error) {
	if len(names) == 0 {
		return gitlab.FromDefinitions(cat.Definitions()), nil
	}
	defs, err := cat.Resolve(names)
	if err != nil {
		return nil, err
	}
	return gitlab.FromDefinitions(defs), nil
}

// Writes the document for names to w.
func writeDocument(w io.Writer, cat *catalog.Catalog, names []string) error {
	doc, err := document(cat, names)
	if err != nil {
		return fmt.Errorf("gitlab document: %w", err)
	}
	return doc.Write(w)
}
