package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Sequence counter for generating unique exec process identifiers.
var execSeq uint64

// Returns a unique exec process identifier.
func nextExecID() string {
	return fmt.Sprintf("exec-%d", atomic.AddUint64(&execSeq, 1))
}

// A shell command to run inside a container.
type ExecRequest struct {
	Shell   string    // Shell binary; the command is passed as "shell -c command".
	Command string    // Command line handed to the shell.
	Env     []string  // Extra environment in "key=value" form, merged over the container's.
	Workdir string    // Working directory override. Empty keeps the container's.
	Live    io.Writer // Optional sink receiving stdout and stderr as they are produced.
}

// Output of a command execution inside a container.
type ExecResult struct {
	ExitCode int    // Exit code of the process.
	Stdout   string // Captured standard output.
	Stderr   string // Captured standard error.
}

// Runs a shell command inside the container.
//
// Environment variables and working directory override the container's OCI
// spec for this execution only. Output is captured in full and, when a live
// sink is set, mirrored to it while the command runs. A non-zero exit code
// is reported in the result, not as an error.
func (c *Container) Exec(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	pspec, err := c.buildProcessSpec(ctx, req.Env, req.Workdir, req.Shell, "-c", req.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	var stdout, stderr bytes.Buffer
	var outW, errW io.Writer = &stdout, &stderr
	if req.Live != nil {
		outW = io.MultiWriter(&stdout, req.Live)
		errW = io.MultiWriter(&stderr, req.Live)
	}

	exitCode, err := c.execProcess(ctx, pspec, nil, outW, errW)
	if err != nil {
		return nil, err
	}

	return &ExecResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// Builds an OCI process spec for running a command inside the container.
//
// The base values are copied from the container's own OCI spec, then env and
// workdir are overridden if provided.
func (c *Container) buildProcessSpec(ctx context.Context, env []string, workdir string, args ...string) (*specs.Process, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, err
	}

	spec, err := ctr.Spec(ctx)
	if err != nil {
		return nil, err
	}

	pspec := *spec.Process
	pspec.Terminal = false
	pspec.Args = args

	if len(env) > 0 {
		pspec.Env = mergeEnv(pspec.Env, env)
	}
	if workdir != "" {
		pspec.Cwd = workdir
	}

	return &pspec, nil
}

// Merges override env vars on top of a base env slice.
//
// Entries without "=" are dropped. The result is sorted by key so process
// specs are reproducible between runs.
func mergeEnv(base, overrides []string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for _, list := range [][]string{base, overrides} {
		for _, entry := range list {
			if k, v, ok := strings.Cut(entry, "="); ok {
				merged[k] = v
			}
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, k+"="+merged[k])
	}
	return result
}

// Runs an argument vector inside the container, returning the exit code and
// captured stderr. A non-zero exit code is not treated as an error.
func (c *Container) execCommand(ctx context.Context, stdin io.Reader, stdout io.Writer, args ...string) (int, string, error) {
	pspec, err := c.buildProcessSpec(ctx, nil, "", args...)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	var stderr bytes.Buffer
	exitCode, err := c.execProcess(ctx, pspec, stdin, stdout, &stderr)
	if err != nil {
		return 0, "", err
	}
	return exitCode, stderr.String(), nil
}

// Starts a process inside the container's running task, waits for it to exit,
// and returns the exit code.
//
// The process is attached to the task as an additional exec, which requires
// the task started by [Container.startTask] to be running. Nil output streams
// are replaced with io.Discard.
//
// When stdin is provided, the container's stdin is explicitly closed after the
// reader returns EOF, and the process is killed if the reader fails. The
// containerd shim holds both ends of the stdin FIFO open and will not
// propagate EOF on its own.
func (c *Container) execProcess(ctx context.Context, pspec *specs.Process, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	task, err := c.loadTask(ctx)
	if err != nil {
		return 0, err
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	var feed *stdinFeed
	if stdin != nil {
		feed = newStdinFeed(stdin)
		stdin = feed
	}

	process, err := task.Exec(ctx, nextExecID(), pspec, cio.NewCreator(
		cio.WithStreams(stdin, stdout, stderr),
	))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	code, err := awaitProcess(ctx, process, feed)
	if feed != nil {
		slog.Debug("stdin streamed", "id", c.id, "args", pspec.Args, "bytes", feed.Len())
	}
	return code, err
}

// Loads the container's running task.
func (c *Container) loadTask(ctx context.Context) (containerd.Task, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	return task, nil
}

// Waits for an exec process to exit and returns the exit code.
//
// The process is always deleted before returning. A cancelled context kills
// the process so an unresponsive command cannot outlive the caller's
// deadline. When feed is set, its clean end closes the process's stdin and a
// read error kills the process, since a reader such as "tar xf -" would
// otherwise wait for input forever.
func awaitProcess(ctx context.Context, process containerd.Process, feed *stdinFeed) (int, error) {
	statusC, err := process.Wait(ctx)
	if err != nil {
		process.Delete(context.WithoutCancel(ctx))
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := process.Start(ctx); err != nil {
		process.Delete(context.WithoutCancel(ctx))
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	var stdinDone <-chan struct{}
	if feed != nil {
		stdinDone = feed.done
	}

	var exitStatus containerd.ExitStatus
wait:
	for {
		select {
		case exitStatus = <-statusC:
			break wait
		case <-stdinDone:
			stdinDone = nil
			if err := feed.Err(); err != nil {
				abort(ctx, process)
				return 0, fmt.Errorf("%w: reading stdin: %w", ErrRuntime, err)
			}
			process.CloseIO(ctx, containerd.WithStdinCloser)
		case <-ctx.Done():
			abort(ctx, process)
			return 0, fmt.Errorf("%w: %w", ErrRuntime, ctx.Err())
		}
	}
	process.Delete(ctx)

	code, _, err := exitStatus.Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	return int(code), nil
}

// Kills and deletes a process that is no longer wanted. Runs detached from
// ctx, which may already be cancelled.
func abort(ctx context.Context, process containerd.Process) {
	cleanup := context.WithoutCancel(ctx)
	process.Kill(cleanup, syscall.SIGKILL)
	process.Delete(cleanup, containerd.WithProcessKill)
}
