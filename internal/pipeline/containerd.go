package pipeline

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/cruciblehq/cruxci/internal/runtime"
	"github.com/cruciblehq/cruxci/internal/snapshot"
)

// Adapts the containerd runtime to [Provider].
type containerdProvider struct {
	rt *runtime.Runtime
}

// Returns a provider that runs environments as containerd containers.
func Containerd(rt *runtime.Runtime) Provider {
	return &containerdProvider{rt: rt}
}

func (p *containerdProvider) Start(ctx context.Context, spec EnvironmentSpec) (Environment, error) {
	mounts := make([]runtime.Mount, len(spec.Mounts))
	for i, m := range spec.Mounts {
		mounts[i] = runtime.Mount{Source: m.Source, Destination: m.Path}
	}

	ctr, err := p.rt.StartContainer(ctx, runtime.ContainerSpec{
		ID:      spec.ID,
		Image:   spec.Image,
		Mounts:  mounts,
		Env:     environ(spec.Env),
		Workdir: spec.Workdir,
	})
	if err != nil {
		return nil, err
	}

	return &containerdEnvironment{ctr: ctr}, nil
}

type containerdEnvironment struct {
	ctr *runtime.Container
}

func (e *containerdEnvironment) Exec(ctx context.Context, cmd Command) (*Output, error) {
	res, err := e.ctr.Exec(ctx, runtime.ExecRequest{
		Shell:   cmd.Shell,
		Command: cmd.Line,
		Env:     cmd.Env,
		Workdir: cmd.Workdir,
		Live:    cmd.Live,
	})
	if err != nil {
		return nil, err
	}
	return &Output{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}, nil
}

func (e *containerdEnvironment) CopyTree(ctx context.Context, dest string, snap snapshot.Snapshot) error {
	if err := e.ctr.MkdirAll(ctx, dest); err != nil {
		return err
	}

	rc := snapshot.Open(ctx, snap)
	defer rc.Close()

	if err := e.ctr.CopyTo(ctx, rc, dest); err != nil {
		return fmt.Errorf("copying %s: %w", snap, err)
	}
	return nil
}

func (e *containerdEnvironment) Destroy(ctx context.Context) {
	e.ctr.Destroy(ctx)
}

// Formats env as "key=value" strings sorted by key.
func environ(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}
	return out
}
