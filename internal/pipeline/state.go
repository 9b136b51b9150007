package pipeline

import (
	"maps"

	"github.com/cruciblehq/cruxci/internal/catalog"
)

// Default shell for job and bootstrap commands.
const defaultShell = "/bin/sh"

// Execution settings shared by the commands of one job.
//
// Bootstrap commands run before the project is copied in, so they use an
// overlay with a different working directory; the job's own state is never
// modified once created.
type execState struct {
	shell   string
	workdir string
	env     map[string]string
}

// Creates the state for a job definition.
func newExecState(shell string, def *catalog.Definition) *execState {
	if shell == "" {
		shell = defaultShell
	}
	return &execState{
		shell:   shell,
		workdir: def.Workdir,
		env:     maps.Clone(def.Env),
	}
}

// Returns a copy of the state with the working directory replaced. An empty
// workdir keeps the current one.
func (s *execState) withWorkdir(workdir string) *execState {
	resolved := &execState{
		shell:   s.shell,
		workdir: s.workdir,
		env:     maps.Clone(s.env),
	}
	if workdir != "" {
		resolved.workdir = workdir
	}
	return resolved
}

// Builds the command for line under this state.
func (s *execState) command(line string) Command {
	return Command{
		Shell:   s.shell,
		Line:    line,
		Env:     s.environ(),
		Workdir: s.workdir,
	}
}

// Formats the environment as a sorted list of "key=value" strings.
func (s *execState) environ() []string {
	return environ(s.env)
}
