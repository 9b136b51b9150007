package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/cruciblehq/cruxci/internal"
	"github.com/cruciblehq/cruxci/internal/pipeline"
)

// Handles a run command.
//
// Every run gets its own runner over the shared builder, so runs submitted
// on separate connections proceed concurrently and only contend for
// exclusive cache volumes.
func (s *Server) handleRun(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := DecodePayload[RunRequest](payload)
	if err != nil {
		s.respond(conn, CmdError, &ErrorResult{Message: err.Error()})
		return
	}

	opts := make([]pipeline.RunnerOption, 0, len(s.cfg.Observers)+1)
	for _, o := range s.cfg.Observers {
		opts = append(opts, pipeline.WithObserver(o))
	}
	if req.KeepGoing {
		opts = append(opts, pipeline.WithPolicy(pipeline.ContinueOnFailure))
	}
	runner := pipeline.NewRunner(s.cfg.Catalog, s.cfg.Builder, s.cfg.Snapshot, opts...)

	s.track(1)
	res, err := runner.Run(ctx, req.Jobs)
	s.track(-1)

	// A job interrupted by a disconnect fails like any other; the run as a
	// whole counts as cancelled.
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		slog.Info("run aborted", "error", err)
		s.respond(conn, CmdError, &ErrorResult{Message: err.Error()})
		return
	}

	s.mu.Lock()
	s.runs++
	s.mu.Unlock()

	slog.Info("run completed", "ok", res.OK(), "passed", res.Passed(), "failed", res.Failed())

	s.respond(conn, CmdOK, runResult(res))
}

// Adjusts the number of runs in progress.
func (s *Server) track(delta int) {
	s.mu.Lock()
	s.active += delta
	s.mu.Unlock()
}

// Handles a list command.
func (s *Server) handleList(conn net.Conn) {
	result := &ListResult{}
	for _, e := range s.cfg.Catalog.List() {
		result.Jobs = append(result.Jobs, JobInfo{Name: string(e.Name), Description: e.Description})
	}
	for _, name := range s.cfg.Catalog.DefaultSequence() {
		result.Default = append(result.Default, string(name))
	}
	s.respond(conn, CmdOK, result)
}

// Handles a status command.
func (s *Server) handleStatus(conn net.Conn) {
	s.respond(conn, CmdOK, s.status())
}

func (s *Server) status() *StatusResult {
	s.mu.Lock()
	runs, active := s.runs, s.active
	s.mu.Unlock()

	return &StatusResult{
		Running: true,
		Version: internal.VersionString(),
		Pid:     os.Getpid(),
		Uptime:  time.Since(s.startedAt).Truncate(time.Second).String(),
		Runs:    runs,
		Active:  active,
	}
}

// Handles a shutdown command.
func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, CmdOK, nil)
	slog.Info("shutdown requested")

	go s.Stop()
}
