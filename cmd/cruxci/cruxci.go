package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/cruciblehq/cruxci/internal"
	"github.com/cruciblehq/cruxci/internal/cli"
	"github.com/cruciblehq/cruxci/internal/logging"
)

// Process exit codes.
const (
	exitOK     = 0
	exitFailed = 1
)

func main() {
	os.Exit(run())
}

// Sets up logging and executes the command line, returning the exit code.
//
// Failed jobs have already been reported by the run command, so only other
// errors are logged here.
func run() int {
	slog.SetDefault(newLogger())

	slog.Debug("starting",
		"version", internal.VersionString(),
		"pid", os.Getpid(),
		"cwd", workingDir(),
		"remote", internal.IsRemoteSession(),
	)

	err := cli.Execute()
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, cli.ErrJobsFailed):
		slog.Debug("exiting", "reason", err)
	default:
		slog.Error(err.Error())
	}
	return exitFailed
}

// Logger used until flags are parsed. Its level comes from the build-time
// defaults; cli.Execute adjusts it afterwards.
func newLogger() *slog.Logger {
	switch {
	case internal.IsDebug():
		logging.SetLevel(slog.LevelDebug)
	case internal.IsQuiet():
		logging.SetLevel(slog.LevelWarn)
	}
	return logging.New(logging.Config{
		Name:    internal.Name,
		Console: logging.IsTerminal(os.Stderr),
		Verbose: internal.IsVerbose(),
		Output:  os.Stderr,
	})
}

func workingDir() string {
	if dir, err := os.Getwd(); err == nil {
		return dir
	}
	return "(unknown)"
}
