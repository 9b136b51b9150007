// Parses flags, configures logging and dispatches cruxci's commands.
//
// Global flags:
//
//	-q, --quiet       Suppress informational output.
//	-v, --verbose     Enable verbose output and stream command output.
//	-d, --debug       Enable debug output.
//	--address         Containerd socket ($CRUXCI_CONTAINERD_ADDRESS).
//	--namespace       Containerd namespace ($CRUXCI_NAMESPACE).
//	--volumes         Cache volume directory ($CRUXCI_VOLUMES).
//
// Commands:
//
//	run [JOB...]      Run jobs, or the default sequence.
//	list              List the jobs.
//	gitlab [JOB...]   Write a .gitlab-ci.yml for the jobs.
//	volumes           Show the cache volumes.
//	serve             Serve run requests on a Unix socket.
//	version           Show version information.
//
// Flags override build-time defaults set via linker flags. After parsing, the
// global logger is reconfigured to reflect the final level and verbosity
// before the command runs. When CRUXCI_REMOTE_SESSION is set, run stages the
// project snapshot in object storage configured by the --s3-* flags. With
// --server, run submits the request to a serve process instead.
package cli
