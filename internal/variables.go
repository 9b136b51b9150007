package internal

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const (

	// Program name, used for logger names, XDG subdirectories and resource
	// prefixes (containers, volumes, metrics).
	Name = "cruxci"

	// Placeholder for build information that is not available.
	undefined = "(undefined)"

	// Version string of builds carrying no version information at all.
	localBuild = "(local)"

	// Branch whose builds omit the stage from the version string.
	mainBranch = "main"
)

// Set through -ldflags "-X github.com/cruciblehq/cruxci/internal.version=..."
// by release builds. Builds made with "go install" leave them empty and fall
// back to the module build information.
var (
	version   = "" // Release version, e.g. "1.2.3".
	stage     = "" // Release channel or branch, e.g. "main".
	gitCommit = "" // Commit hash.

	rawQuiet   = "false" // Default for quiet mode.
	rawDebug   = "false" // Default for debug mode.
	rawVerbose = "false" // Default for verbose logging.
)

// Returns a trimmed linker variable, or the fallback when it is empty.
func linkerVar(v string, fallback func() string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	if fallback != nil {
		if f := fallback(); f != "" {
			return f
		}
	}
	return undefined
}

// Returns the module version recorded by the go command, if any.
func moduleVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return ""
	}
	return info.Main.Version
}

// Returns the VCS revision recorded by the go command, if any.
func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 8 {
			return s.Value[:8]
		}
	}
	return ""
}

// Returns the release version without a leading "v".
func Version() string {
	v := linkerVar(version, moduleVersion)
	if v == undefined {
		return v
	}
	return strings.TrimPrefix(strings.ToLower(v), "v")
}

// Returns the release channel, usually the branch the build came from.
func Stage() string {
	return strings.ToLower(linkerVar(stage, nil))
}

// Returns the short commit hash of the build.
func GitCommit() string {
	return linkerVar(gitCommit, vcsRevision)
}

// Returns the build architecture.
func Arch() string {
	return runtime.GOARCH
}

// Reports whether the build carries neither a version nor a commit.
func IsLocal() bool {
	return Version() == undefined && GitCommit() == undefined
}

// Returns a detailed version string.
//
// Builds without version information return "(local)". Otherwise the string
// is "<version>+<stage> <commit> [<arch>]"; the stage is omitted when it is
// unknown or the main branch.
func VersionString() string {
	if IsLocal() {
		return localBuild
	}

	var suffix string
	if s := Stage(); s != undefined && s != mainBranch {
		suffix = "+" + s
	}

	return fmt.Sprintf("%s%s %s [%s]", Version(), suffix, GitCommit(), Arch())
}
