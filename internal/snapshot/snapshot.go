package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/gobwas/glob"
)

// Paths never copied into a job, relative to the project root.
var DefaultExcludes = []string{
	".git",
	"vendor",
	"node_modules",
	".fluentci",
	".devbox",
	".cruxci",
}

// A project tree that can be streamed as a tar archive.
type Snapshot interface {
	// Writes the tree to w as a tar stream with paths relative to the root.
	Archive(ctx context.Context, w io.Writer) error

	// Describes where the tree comes from, for logging.
	String() string
}

// A snapshot of a local directory.
type Directory struct {
	root     string
	patterns []string
	excludes []glob.Glob
}

// Creates a snapshot of the directory at root.
//
// The extra patterns are added to [DefaultExcludes]. The directory is read
// when the snapshot is archived, not here, so each archive reflects the tree
// at that moment.
func Dir(root string, excludes ...string) (*Directory, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSnapshot, abs)
	}

	d := &Directory{
		root:     abs,
		patterns: append(slices.Clone(DefaultExcludes), excludes...),
	}
	for _, p := range d.patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrPattern, p, err)
		}
		d.excludes = append(d.excludes, g)
	}

	return d, nil
}

// Returns the absolute path of the snapshot root.
func (d *Directory) Root() string {
	return d.root
}

// Returns the exclusion patterns in effect.
func (d *Directory) Excludes() []string {
	return slices.Clone(d.patterns)
}

func (d *Directory) String() string {
	return d.root
}

// Reports whether a slash-separated relative path is excluded.
func (d *Directory) excluded(rel string) bool {
	for _, g := range d.excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Streams a snapshot through a pipe.
//
// The archive is produced in a separate goroutine; a write error surfaces as
// the read error of the returned reader. Closing the reader early stops the
// producer.
func Open(ctx context.Context, s Snapshot) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		pw.CloseWithError(s.Archive(ctx, pw))
	}()

	return pr
}
