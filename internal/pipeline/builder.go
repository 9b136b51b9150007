package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cruciblehq/cruxci/internal/cache"
	"github.com/cruciblehq/cruxci/internal/catalog"
	"github.com/cruciblehq/cruxci/internal/snapshot"
)

// Working directory of bootstrap commands, which run before the project
// exists in the environment.
const bootstrapWorkdir = "/"

// Builds and runs job environments.
type Builder struct {
	provider Provider
	volumes  *cache.Registry
	shell    string
	live     io.Writer
}

// Configures a [Builder].
type BuilderOption func(*Builder)

// Sets the shell used for every command. Defaults to /bin/sh.
func WithShell(shell string) BuilderOption {
	return func(b *Builder) { b.shell = shell }
}

// Mirrors command output to w while commands run.
func WithLiveOutput(w io.Writer) BuilderOption {
	return func(b *Builder) { b.live = w }
}

// Creates a builder that starts environments from provider and resolves
// cache mounts through volumes.
func NewBuilder(provider Provider, volumes *cache.Registry, opts ...BuilderOption) *Builder {
	b := &Builder{
		provider: provider,
		volumes:  volumes,
		shell:    defaultShell,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// A constructed environment ready to run its job.
//
// A handle owns the environment and the locks on the job's exclusive
// volumes until [Builder.Run] or [Handle.Release] is called.
type Handle struct {
	def    *catalog.Definition
	env    Environment
	state  *execState
	locked []*cache.Volume
}

// Returns the job the environment was built for.
func (h *Handle) Job() catalog.Name {
	return h.def.Name
}

// Destroys the environment and releases its volumes. Safe to call more than
// once.
func (h *Handle) Release(ctx context.Context) {
	if h.env != nil {
		h.env.Destroy(context.WithoutCancel(ctx))
		h.env = nil
	}
	for _, v := range h.locked {
		v.Unlock()
	}
	h.locked = nil
}

// Constructs the environment for def.
//
// Cache volumes are resolved and exclusive ones locked, the environment is
// started from the base image with every volume mounted, bootstrap commands
// run, and snap is copied into the working directory. Any failure yields an
// [EnvironmentBuildError] and leaves nothing running.
func (b *Builder) Build(ctx context.Context, def *catalog.Definition, snap snapshot.Snapshot) (*Handle, error) {
	h := &Handle{def: def, state: newExecState(b.shell, def)}

	mounts, err := b.acquireVolumes(h)
	if err != nil {
		return nil, &EnvironmentBuildError{Job: def.Name, Step: "volumes", Err: err}
	}

	env, err := b.provider.Start(ctx, EnvironmentSpec{
		ID:      environmentID(def.Name),
		Image:   def.Image,
		Mounts:  mounts,
		Workdir: def.Workdir,
		Env:     def.Env,
	})
	if err != nil {
		h.Release(ctx)
		return nil, &EnvironmentBuildError{Job: def.Name, Step: "start", Err: err}
	}
	h.env = env

	bootstrap := h.state.withWorkdir(bootstrapWorkdir)
	for _, line := range def.Bootstrap {
		out, err := b.exec(ctx, env, bootstrap.command(line))
		if err != nil {
			h.Release(ctx)
			return nil, &EnvironmentBuildError{Job: def.Name, Step: "bootstrap", Err: err}
		}
		if out.ExitCode != 0 {
			h.Release(ctx)
			cmdErr := &CommandError{Job: def.Name, Command: line, ExitCode: out.ExitCode, Output: out.Stdout + out.Stderr}
			return nil, &EnvironmentBuildError{Job: def.Name, Step: "bootstrap", Output: cmdErr.Output, Err: cmdErr}
		}
	}

	if snap != nil {
		if err := env.CopyTree(ctx, def.Workdir, snap); err != nil {
			h.Release(ctx)
			return nil, &EnvironmentBuildError{Job: def.Name, Step: "copy", Err: err}
		}
	}

	slog.Debug("environment ready", "job", def.Name, "image", def.Image, "volumes", len(mounts))

	return h, nil
}

// Runs the job's commands in the environment and releases it.
//
// Commands run strictly in order and the first non-zero exit stops the job.
// The result's output holds the standard output of every command that ran,
// followed by the standard error of the failing one.
func (b *Builder) Run(ctx context.Context, h *Handle) JobResult {
	defer h.Release(ctx)

	res := JobResult{Name: h.def.Name}
	var output strings.Builder

	for _, line := range h.def.Commands {
		slog.Debug("run", "job", h.def.Name, "command", line)

		out, err := b.exec(ctx, h.env, h.state.command(line))
		res.Commands++
		if err != nil {
			res.Output = output.String()
			res.Err = err
			return res
		}

		output.WriteString(out.Stdout)
		if out.ExitCode != 0 {
			output.WriteString(out.Stderr)
			res.Output = output.String()
			res.Err = &CommandError{
				Job:      h.def.Name,
				Command:  line,
				ExitCode: out.ExitCode,
				Output:   out.Stdout + out.Stderr,
			}
			return res
		}
	}

	res.Output = output.String()
	return res
}

// Builds the environment for def and runs it.
//
// A build failure is reported in the result like a command failure, with no
// commands run.
func (b *Builder) Execute(ctx context.Context, def *catalog.Definition, snap snapshot.Snapshot) JobResult {
	start := time.Now()

	h, err := b.Build(ctx, def, snap)
	if err != nil {
		res := JobResult{Name: def.Name, Err: err, Duration: time.Since(start)}
		var buildErr *EnvironmentBuildError
		if errors.As(err, &buildErr) {
			res.Output = buildErr.Output
		}
		return res
	}

	res := b.Run(ctx, h)
	res.Duration = time.Since(start)
	return res
}

// Runs one command, turning provider errors into [ErrProvider].
func (b *Builder) exec(ctx context.Context, env Environment, cmd Command) (*Output, error) {
	cmd.Live = b.live
	out, err := env.Exec(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrProvider, cmd.Line, err)
	}
	return out, nil
}

// Resolves the job's volumes and locks the exclusive ones.
//
// Locks are taken in name order so that jobs sharing several exclusive
// volumes cannot deadlock if they ever run concurrently.
func (b *Builder) acquireVolumes(h *Handle) ([]Mount, error) {
	mounts := make([]Mount, 0, len(h.def.Caches))
	byName := make(map[string]*cache.Volume)

	for _, c := range h.def.Caches {
		vol, err := b.volumes.Volume(c.Volume)
		if err != nil {
			return nil, err
		}
		byName[vol.Name] = vol
		mounts = append(mounts, Mount{Source: vol.Handle, Path: c.Path})
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		vol := byName[name]
		vol.Lock()
		h.locked = append(h.locked, vol)
	}

	return mounts, nil
}

// Returns a unique environment ID for a job.
func environmentID(job catalog.Name) string {
	return fmt.Sprintf("cruxci-%s-%s", job, uuid.NewString()[:8])
}
