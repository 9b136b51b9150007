package pipeline

import (
	"context"
	"io"

	"github.com/cruciblehq/cruxci/internal/snapshot"
)

// Creates isolated execution environments.
type Provider interface {

	// Starts an environment from spec. Mounts are part of the spec because
	// they must exist for the whole lifetime of the environment.
	Start(ctx context.Context, spec EnvironmentSpec) (Environment, error)
}

// A running, disposable sandbox for one job.
type Environment interface {

	// Runs a command and waits for it. A non-zero exit code is reported in
	// the output, not as an error; errors mean the provider itself failed.
	Exec(ctx context.Context, cmd Command) (*Output, error)

	// Extracts snap into dest, creating dest if needed.
	CopyTree(ctx context.Context, dest string, snap snapshot.Snapshot) error

	// Releases the environment. Mounted volumes are left untouched.
	Destroy(ctx context.Context)
}

// Describes an environment to start.
type EnvironmentSpec struct {
	ID      string            // Unique environment identifier.
	Image   string            // Base image reference.
	Mounts  []Mount           // Persistent volumes, in mount order.
	Workdir string            // Default working directory.
	Env     map[string]string // Default environment.
}

// A host directory mounted into an environment.
type Mount struct {
	Source string // Host directory backing the volume.
	Path   string // Absolute path inside the environment.
}

// A shell command to run inside an environment.
type Command struct {
	Shell   string    // Shell binary invoked as "shell -c line".
	Line    string    // Command line.
	Env     []string  // Environment in "key=value" form.
	Workdir string    // Working directory.
	Live    io.Writer // Optional sink mirroring output while the command runs.
}

// Result of a command.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
}
