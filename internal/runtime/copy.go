package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Creates a directory inside the container, including parents.
func (c *Container) MkdirAll(ctx context.Context, path string) error {
	return c.mustExec(ctx, "mkdir", nil, nil, "mkdir", "-p", path)
}

// Copies a tar stream into the container's filesystem.
//
// The contents of r are extracted into destDir by piping them to "tar xf - -C
// destDir" inside the container. Project snapshots land here; existing files
// under destDir (such as bind-mounted cache volumes) are merged, not replaced.
func (c *Container) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	return c.mustExec(ctx, "tar extract", r, nil, "tar", "xf", "-", "-C", destDir)
}

// Runs a housekeeping command inside the container. A non-zero exit becomes
// an [ErrRuntime] naming desc and carrying the command's last stderr line.
func (c *Container) mustExec(ctx context.Context, desc string, stdin io.Reader, stdout io.Writer, args ...string) error {
	exitCode, stderr, err := c.execCommand(ctx, stdin, stdout, args...)
	if err != nil {
		return err
	}
	if exitCode == 0 {
		return nil
	}

	msg := strings.TrimSpace(stderr)
	if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
		msg = msg[i+1:]
	}
	return fmt.Errorf("%w: %s in %s: exit code %d: %s", ErrRuntime, desc, c.id, exitCode, msg)
}
