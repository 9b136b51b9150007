package pipeline

import (
	"errors"
	"fmt"

	"github.com/cruciblehq/cruxci/internal/catalog"
)

var (
	ErrEnvironmentBuild = errors.New("environment build failed")
	ErrCommand          = errors.New("command failed")
	ErrProvider         = errors.New("execution environment provider failed")
)

// Reports that a job's environment could not be constructed. No job command
// ran.
type EnvironmentBuildError struct {
	Job    catalog.Name // Job whose environment failed.
	Step   string       // Construction step: "volumes", "start", "bootstrap" or "copy".
	Output string       // Output of a failing bootstrap command, if any.
	Err    error        // Underlying cause.
}

func (e *EnvironmentBuildError) Error() string {
	return fmt.Sprintf("%s: %s: %s: %v", ErrEnvironmentBuild, e.Job, e.Step, e.Err)
}

func (e *EnvironmentBuildError) Unwrap() []error {
	return []error{ErrEnvironmentBuild, e.Err}
}

// Reports a command that exited with a non-zero code.
type CommandError struct {
	Job      catalog.Name // Job the command belongs to.
	Command  string       // Command line as declared.
	ExitCode int          // Exit code of the command.
	Output   string       // Standard output and error of the failing command.
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("job %s: command %q exited with code %d", e.Job, e.Command, e.ExitCode)
}

func (e *CommandError) Unwrap() error {
	return ErrCommand
}
