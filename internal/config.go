package internal

import (
	"os"
	"strconv"
	"sync/atomic"
)

// Environment variable that marks a remote CI session. When it is set the
// project snapshot is staged through the context uploader before any job
// runs.
const RemoteSessionEnv = "CRUXCI_REMOTE_SESSION"

// Output modes. Seeded from linker flags, then overridden by CLI flags.
var quietMode, debugMode, verboseMode atomic.Bool

func init() {
	for mode, raw := range map[*atomic.Bool]string{
		&quietMode:   rawQuiet,
		&debugMode:   rawDebug,
		&verboseMode: rawVerbose,
	} {
		mode.Store(parseFlag(raw, false))
	}
}

// Parses a boolean switch. Empty or unparsable values yield def.
func parseFlag(raw string, def bool) bool {
	if v, err := strconv.ParseBool(raw); err == nil {
		return v
	}
	return def
}

func SetQuiet(enabled bool)   { quietMode.Store(enabled) }
func SetDebug(enabled bool)   { debugMode.Store(enabled) }
func SetVerbose(enabled bool) { verboseMode.Store(enabled) }

// Reports whether only warnings and errors are logged.
func IsQuiet() bool { return quietMode.Load() }

// Reports whether debug logging is on.
func IsDebug() bool { return debugMode.Load() }

// Reports whether job output is mirrored while it runs.
func IsVerbose() bool { return verboseMode.Load() }

// Reports whether the process runs inside a remote CI session.
//
// Boolean values are honoured as such. Any other non-empty value, a session
// identifier for instance, counts as set.
func IsRemoteSession() bool {
	raw := os.Getenv(RemoteSessionEnv)
	if raw == "" {
		return false
	}
	return parseFlag(raw, true)
}
