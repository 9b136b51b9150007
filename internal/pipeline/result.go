package pipeline

import (
	"time"

	"github.com/cruciblehq/cruxci/internal/catalog"
)

// Outcome of one job.
type JobResult struct {
	Name     catalog.Name  // Job name.
	Output   string        // Captured output, partial when the job failed.
	Err      error         // Nil on success; an [EnvironmentBuildError], [CommandError] or provider error otherwise.
	Commands int           // Number of job commands that ran.
	Duration time.Duration // Wall-clock time including environment construction.
}

// Reports whether the job succeeded.
func (r JobResult) OK() bool {
	return r.Err == nil
}

// Outcome label used in logs and metrics.
func (r JobResult) Outcome() string {
	if r.OK() {
		return "passed"
	}
	return "failed"
}

// Aggregated outcome of a run.
type Result struct {
	Requested []catalog.Name // Resolved request, in execution order.
	Jobs      []JobResult    // Results of the jobs that ran, in execution order.
}

// Reports whether every requested job ran and passed.
func (r *Result) OK() bool {
	return len(r.Jobs) == len(r.Requested) && r.Failed() == 0
}

// Returns the first failed job, or nil.
func (r *Result) FirstFailure() *JobResult {
	if i := r.firstFailureIndex(); i >= 0 {
		return &r.Jobs[i]
	}
	return nil
}

// Returns the index of the first failed job, or -1.
func (r *Result) firstFailureIndex() int {
	for i := range r.Jobs {
		if !r.Jobs[i].OK() {
			return i
		}
	}
	return -1
}

// Returns the number of jobs that passed.
func (r *Result) Passed() int {
	n := 0
	for _, j := range r.Jobs {
		if j.OK() {
			n++
		}
	}
	return n
}

// Returns the number of jobs that failed.
func (r *Result) Failed() int {
	return len(r.Jobs) - r.Passed()
}

// Returns the requested jobs that never ran.
func (r *Result) Skipped() []catalog.Name {
	if len(r.Jobs) >= len(r.Requested) {
		return nil
	}
	return r.Requested[len(r.Jobs):]
}

// Returns the total wall-clock time of the jobs that ran.
func (r *Result) Duration() time.Duration {
	var d time.Duration
	for _, j := range r.Jobs {
		d += j.Duration
	}
	return d
}
