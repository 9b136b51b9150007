package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cruciblehq/cruxci/internal/pipeline"
)

// Identifies a request or response.
type Command string

const (
	CmdRun      Command = "run"      // Run jobs. Payload: [RunRequest].
	CmdList     Command = "list"     // List the catalog.
	CmdStatus   Command = "status"   // Report server status.
	CmdShutdown Command = "shutdown" // Stop the server.

	CmdOK    Command = "ok"    // Successful response.
	CmdError Command = "error" // Failed response. Payload: [ErrorResult].
)

// One message on the wire, terminated by a newline.
type Envelope struct {
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Requests a run. No jobs means the default sequence.
type RunRequest struct {
	Jobs      []string `json:"jobs,omitempty"`
	KeepGoing bool     `json:"keep_going,omitempty"`
}

// Outcome of one job.
type JobReport struct {
	Name       string `json:"name"`
	Outcome    string `json:"outcome"`
	Commands   int    `json:"commands"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	Output     string `json:"output,omitempty"`
}

// Duration of the job.
func (j JobReport) Duration() time.Duration {
	return time.Duration(j.DurationMS) * time.Millisecond
}

// Outcome of a run.
type RunResult struct {
	OK      bool        `json:"ok"`
	Jobs    []JobReport `json:"jobs"`
	Skipped []string    `json:"skipped,omitempty"`
}

// A catalog entry.
type JobInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ListResult struct {
	Jobs    []JobInfo `json:"jobs"`
	Default []string  `json:"default"`
}

type StatusResult struct {
	Running bool   `json:"running"`
	Version string `json:"version"`
	Pid     int    `json:"pid"`
	Uptime  string `json:"uptime"`
	Runs    int    `json:"runs"`   // Completed runs.
	Active  int    `json:"active"` // Runs in progress.
}

type ErrorResult struct {
	Message string `json:"message"`
}

// Encodes a message. A nil payload is omitted.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Command: cmd}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decodes a message.
func Decode(line []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if env.Command == "" {
		return nil, fmt.Errorf("%w: missing command", ErrProtocol)
	}
	return &env, nil
}

// Decodes a payload into a T. An empty payload yields the zero T.
func DecodePayload[T any](raw json.RawMessage) (*T, error) {
	var v T
	if len(raw) == 0 {
		return &v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return &v, nil
}

// Converts a pipeline result for the wire.
func runResult(res *pipeline.Result) *RunResult {
	out := &RunResult{OK: res.OK(), Jobs: make([]JobReport, 0, len(res.Jobs))}
	for _, job := range res.Jobs {
		report := JobReport{
			Name:       string(job.Name),
			Outcome:    job.Outcome(),
			Commands:   job.Commands,
			DurationMS: job.Duration.Milliseconds(),
			Output:     job.Output,
		}
		if job.Err != nil {
			report.Error = job.Err.Error()
		}
		out.Jobs = append(out.Jobs, report)
	}
	for _, name := range res.Skipped() {
		out.Skipped = append(out.Skipped, string(name))
	}
	return out
}
