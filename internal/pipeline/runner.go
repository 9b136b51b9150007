package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cruciblehq/cruxci/internal/catalog"
	"github.com/cruciblehq/cruxci/internal/snapshot"
)

// Stage of a run.
type State int

const (
	Idle      State = iota // No run started.
	Resolving              // Validating the request against the catalog.
	Executing              // Running a job.
	Done                   // Every requested job passed.
	Failed                 // The request was rejected or a job failed.
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Resolving:
		return "resolving"
	case Executing:
		return "executing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// What the runner does after a job fails.
type Policy int

const (
	FailFast          Policy = iota // Stop the run at the first failed job.
	ContinueOnFailure               // Run every job and report all failures.
)

// Receives job lifecycle events. Calls happen on the runner's goroutine.
type Observer interface {
	JobStarted(name catalog.Name)
	JobFinished(res JobResult)
}

// Executes run requests against a catalog.
//
// Jobs of one run execute sequentially. A runner performs one run at a time;
// concurrent calls to [Runner.Run] are serialised.
type Runner struct {
	catalog   *catalog.Catalog
	builder   *Builder
	snapshot  snapshot.Snapshot
	policy    Policy
	observers []Observer

	run     sync.Mutex // Held for the duration of a run.
	mu      sync.Mutex // Guards state and current.
	state   State
	current int
}

// Configures a [Runner].
type RunnerOption func(*Runner)

// Sets the failure policy. Defaults to [FailFast].
func WithPolicy(p Policy) RunnerOption {
	return func(r *Runner) { r.policy = p }
}

// Adds an observer notified around every job.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// Creates a runner executing jobs from cat with builder, each job receiving
// a copy of snap.
func NewRunner(cat *catalog.Catalog, builder *Builder, snap snapshot.Snapshot, opts ...RunnerOption) *Runner {
	r := &Runner{
		catalog:  cat,
		builder:  builder,
		snapshot: snap,
		policy:   FailFast,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Returns the current state and, while executing, the index of the running
// job in the resolved request.
func (r *Runner) State() (State, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.current
}

// Runs the requested jobs, or the catalog's default sequence when names is
// empty.
//
// Every name is resolved before anything is built; an unknown name returns a
// [catalog.JobNotFoundError] and a nil result. Job failures do not produce an
// error: they are recorded in the result, and under [FailFast] the remaining
// jobs are skipped. The only other error is cancellation of ctx, returned
// together with the results gathered so far.
func (r *Runner) Run(ctx context.Context, names []string) (*Result, error) {
	r.run.Lock()
	defer r.run.Unlock()

	r.setState(Resolving, 0)

	defs, err := r.catalog.Resolve(names)
	if err != nil {
		r.setState(Failed, 0)
		return nil, err
	}

	res := &Result{Requested: make([]catalog.Name, len(defs))}
	for i, def := range defs {
		res.Requested[i] = def.Name
	}

	slog.Info("running jobs", "jobs", res.Requested, "snapshot", r.snapshotName())

	for i, def := range defs {
		if err := ctx.Err(); err != nil {
			r.setState(Failed, i)
			return res, err
		}

		r.setState(Executing, i)
		job := r.execute(ctx, def)
		res.Jobs = append(res.Jobs, job)

		if !job.OK() && r.policy == FailFast {
			break
		}
	}

	if res.OK() {
		r.setState(Done, len(defs))
	} else {
		r.setState(Failed, res.firstFailureIndex())
	}

	slog.Info("run finished",
		"passed", res.Passed(),
		"failed", res.Failed(),
		"skipped", len(res.Skipped()),
		"duration", res.Duration(),
	)

	return res, nil
}

// Runs one job and notifies observers.
func (r *Runner) execute(ctx context.Context, def *catalog.Definition) JobResult {
	for _, o := range r.observers {
		o.JobStarted(def.Name)
	}

	slog.Info("job started", "job", def.Name)
	job := r.builder.Execute(ctx, def, r.snapshot)

	if job.OK() {
		slog.Info("job passed", "job", def.Name, "duration", job.Duration)
	} else {
		slog.Error("job failed", "job", def.Name, "duration", job.Duration, "error", job.Err)
	}

	for _, o := range r.observers {
		o.JobFinished(job)
	}
	return job
}

func (r *Runner) setState(s State, current int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	r.current = current
}

func (r *Runner) snapshotName() string {
	if r.snapshot == nil {
		return ""
	}
	return r.snapshot.String()
}
