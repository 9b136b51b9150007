package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cruciblehq/cruxci/internal"
	"github.com/cruciblehq/cruxci/internal/cache"
	"github.com/cruciblehq/cruxci/internal/catalog"
	"github.com/cruciblehq/cruxci/internal/metrics"
	"github.com/cruciblehq/cruxci/internal/pipeline"
	"github.com/cruciblehq/cruxci/internal/runtime"
	"github.com/cruciblehq/cruxci/internal/server"
	"github.com/cruciblehq/cruxci/internal/snapshot"
	"github.com/cruciblehq/cruxci/internal/upload"
)

// Object storage flags, used only in remote sessions.
type UploadFlags struct {
	Bucket    string `help:"Bucket staging the project snapshot." env:"CRUXCI_S3_BUCKET"`
	Prefix    string `help:"Key prefix for staged snapshots." default:"cruxci/" env:"CRUXCI_S3_PREFIX"`
	Region    string `help:"Bucket region." env:"CRUXCI_S3_REGION,AWS_REGION"`
	Endpoint  string `help:"Custom S3 endpoint, e.g. a MinIO server." env:"CRUXCI_S3_ENDPOINT"`
	AccessKey string `help:"Access key ID." env:"CRUXCI_S3_ACCESS_KEY" hidden:""`
	SecretKey string `help:"Secret access key." env:"CRUXCI_S3_SECRET_KEY" hidden:""`
}

func (f UploadFlags) config() upload.Config {
	return upload.Config{
		Bucket:          f.Bucket,
		Prefix:          f.Prefix,
		Region:          f.Region,
		Endpoint:        f.Endpoint,
		AccessKeyID:     f.AccessKey,
		SecretAccessKey: f.SecretKey,
	}
}

// Represents the 'cruxci run' command.
type RunCmd struct {
	Jobs        []string      `arg:"" optional:"" help:"Jobs to run, in order." placeholder:"JOB"`
	Src         string        `help:"Project directory." default:"." type:"existingdir"`
	Exclude     []string      `help:"Additional glob patterns left out of the project snapshot." placeholder:"GLOB"`
	Timeout     time.Duration `help:"Abort the run after this long. Zero disables the limit." default:"0s"`
	KeepGoing   bool          `help:"Keep running the remaining jobs after one fails."`
	MetricsFile string        `help:"Write Prometheus metrics to this node-exporter textfile." env:"CRUXCI_METRICS_FILE" placeholder:"PATH"`
	Server      string        `help:"Submit the run to the cruxci server on this socket; the server's project is used." env:"CRUXCI_SERVER" placeholder:"SOCKET"`
	Upload      UploadFlags   `embed:"" prefix:"s3-" group:"Remote session"`
}

// Executes the run command.
//
// The request is validated against the catalog before the snapshot is
// staged or the runtime contacted, so an unknown job name has no side
// effects.
func (c *RunCmd) Run(ctx context.Context) error {
	cat := catalog.Default()

	if _, err := cat.Resolve(c.Jobs); err != nil {
		return err
	}

	if c.Server != "" {
		return c.submit(ctx)
	}

	snap, err := c.snapshot(ctx)
	if err != nil {
		return err
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	rt, err := runtime.New(RootCmd.Address, RootCmd.Namespace)
	if err != nil {
		return err
	}
	defer rt.Close()

	var builderOpts []pipeline.BuilderOption
	if internal.IsVerbose() && !internal.IsQuiet() {
		builderOpts = append(builderOpts, pipeline.WithLiveOutput(os.Stderr))
	}
	volumes, err := volumeRegistry(RootCmd.Volumes)
	if err != nil {
		return err
	}
	builder := pipeline.NewBuilder(pipeline.Containerd(rt), volumes, builderOpts...)

	rec := metrics.New()
	runnerOpts := []pipeline.RunnerOption{pipeline.WithObserver(rec)}
	if c.KeepGoing {
		runnerOpts = append(runnerOpts, pipeline.WithPolicy(pipeline.ContinueOnFailure))
	}

	res, err := pipeline.NewRunner(cat, builder, snap, runnerOpts...).Run(ctx, c.Jobs)

	if c.MetricsFile != "" {
		if werr := rec.WriteTextfile(c.MetricsFile); werr != nil {
			slog.Warn("failed to write metrics", "path", c.MetricsFile, "error", werr)
		}
	}

	if res != nil {
		report(os.Stdout, res)
	}
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("%w: %d of %d", ErrJobsFailed, res.Failed(), len(res.Requested))
	}
	return nil
}

// Captures the project directory, staging it remotely when the process runs
// in a remote session.
func (c *RunCmd) snapshot(ctx context.Context) (snapshot.Snapshot, error) {
	dir, err := snapshot.Dir(c.Src, c.Exclude...)
	if err != nil {
		return nil, err
	}

	if !internal.IsRemoteSession() {
		return dir, nil
	}

	slog.Info("remote session, staging project snapshot", "src", dir.Root())

	up, err := upload.New(ctx, c.Upload.config())
	if err != nil {
		return nil, err
	}
	remote, err := up.Upload(ctx, dir)
	if err != nil {
		return nil, err
	}
	return remote, nil
}

// Sends the run to a job server and reports its result.
func (c *RunCmd) submit(ctx context.Context) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var res server.RunResult
	req := &server.RunRequest{Jobs: c.Jobs, KeepGoing: c.KeepGoing}
	if err := server.Call(ctx, c.Server, server.CmdRun, req, &res); err != nil {
		return err
	}

	reportRemote(os.Stdout, &res)
	if !res.OK {
		return fmt.Errorf("%w: %d of %d", ErrJobsFailed, failedReports(res.Jobs), len(res.Jobs)+len(res.Skipped))
	}
	return nil
}

func failedReports(jobs []server.JobReport) int {
	n := 0
	for _, j := range jobs {
		if j.Error != "" {
			n++
		}
	}
	return n
}

// Prints a server run result in the same layout as [report].
func reportRemote(w io.Writer, res *server.RunResult) {
	for _, job := range res.Jobs {
		status := "PASS"
		if job.Error != "" {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s  %-24s %s\n", status, job.Name, job.Duration())
	}
	for _, name := range res.Skipped {
		fmt.Fprintf(w, "SKIP  %s\n", name)
	}

	for _, job := range res.Jobs {
		if job.Error == "" {
			continue
		}
		fmt.Fprintf(w, "\n--- %s: %s\n", job.Name, job.Error)
		if job.Output != "" {
			fmt.Fprint(w, job.Output)
			if job.Output[len(job.Output)-1] != '\n' {
				fmt.Fprintln(w)
			}
		}
	}

	failed := failedReports(res.Jobs)
	fmt.Fprintf(w, "\n%d passed, %d failed, %d skipped\n", len(res.Jobs)-failed, failed, len(res.Skipped))
}

// Creates the volume registry with the catalog's sharing modes.
func volumeRegistry(root string) (*cache.Registry, error) {
	reg := cache.NewRegistry(root)
	for _, name := range catalog.ToolchainVolumes {
		if err := reg.Declare(name, cache.Shared); err != nil {
			return nil, err
		}
	}
	for _, name := range catalog.DependencyVolumes {
		if err := reg.Declare(name, cache.Exclusive); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Prints a summary line per job, the output of failed jobs, and the jobs
// that never ran.
func report(w io.Writer, res *pipeline.Result) {
	for _, job := range res.Jobs {
		status := "PASS"
		if !job.OK() {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s  %-24s %s\n", status, job.Name, job.Duration.Round(time.Millisecond))
	}
	for _, name := range res.Skipped() {
		fmt.Fprintf(w, "SKIP  %s\n", name)
	}

	for _, job := range res.Jobs {
		if job.OK() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s: %v\n", job.Name, job.Err)
		if job.Output != "" {
			fmt.Fprint(w, job.Output)
			if job.Output[len(job.Output)-1] != '\n' {
				fmt.Fprintln(w)
			}
		}
	}

	fmt.Fprintf(w, "\n%d passed, %d failed, %d skipped\n", res.Passed(), res.Failed(), len(res.Skipped()))
}
