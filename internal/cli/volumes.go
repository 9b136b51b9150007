package cli

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/cruciblehq/cruxci/internal/cache"
	"github.com/cruciblehq/cruxci/internal/catalog"
)

// Represents the 'cruxci volumes' command.
type VolumesCmd struct{}

// Executes the volumes command.
func (c *VolumesCmd) Run(ctx context.Context) error {
	reg, err := volumeRegistry(RootCmd.Volumes)
	if err != nil {
		return err
	}
	return listVolumes(os.Stdout, reg, catalog.Default())
}

// Resolves every volume the catalog mounts and prints its mode, size and
// host directory.
func listVolumes(w io.Writer, reg *cache.Registry, cat *catalog.Catalog) error {
	var names []string
	for _, def := range cat.Definitions() {
		for _, m := range def.Caches {
			if !slices.Contains(names, m.Volume) {
				names = append(names, m.Volume)
			}
		}
	}
	for _, name := range names {
		if _, err := reg.Volume(name); err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VOLUME\tMODE\tSIZE\tPATH")
	for _, v := range reg.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Name, v.Mode, humanSize(dirSize(v.Handle)), v.Handle)
	}
	return tw.Flush()
}

// Returns the total size of regular files under dir, ignoring unreadable
// entries.
func dirSize(dir string) int64 {
	var total int64
	filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}

// Formats a byte count with a binary unit.
func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
