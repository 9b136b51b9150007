// Package pipeline runs catalog jobs in isolated execution environments.
//
// The [Builder] turns one job definition into a disposable environment: it
// resolves and locks the job's cache volumes, starts an environment from the
// base image with those volumes mounted, runs the bootstrap commands, copies
// the project snapshot into the working directory, and then runs the job's
// commands in order, stopping at the first one that fails. The environment
// is destroyed afterwards; only the cache volumes outlive it.
//
// The [Runner] resolves a run request against the catalog before anything
// is built, then executes the resolved jobs one after another and collects
// their results. Under the default [FailFast] policy the run stops at the
// first failing job; [ContinueOnFailure] runs every job and reports them all.
//
// Environments come from a [Provider]. [Containerd] adapts the containerd
// runtime; tests substitute their own provider to simulate build and
// command failures.
//
//	builder := pipeline.NewBuilder(pipeline.Containerd(rt), volumes)
//	runner := pipeline.NewRunner(catalog.Default(), builder, snap)
//
//	result, err := runner.Run(ctx, []string{"static-analysis"})
//	if err != nil {
//	    return err // unknown job name, nothing was run
//	}
//	if !result.OK() {
//	    fmt.Print(result.FirstFailure().Output)
//	}
package pipeline
