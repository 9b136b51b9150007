package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/cruciblehq/cruxci/internal"
	"github.com/cruciblehq/cruxci/internal/logging"
	"github.com/cruciblehq/cruxci/internal/paths"
)

// Default containerd socket and namespace.
const (
	defaultAddress   = "/run/containerd/containerd.sock"
	defaultNamespace = "cruxci"
)

// Represents the root command for cruxci.
type Root struct {
	Quiet     bool   `short:"q" help:"Suppress informational output."`
	Verbose   bool   `short:"v" help:"Enable verbose output and stream command output."`
	Debug     bool   `short:"d" help:"Enable debug output."`
	Address   string `help:"Containerd socket address." default:"${address}" env:"CRUXCI_CONTAINERD_ADDRESS" placeholder:"PATH"`
	Namespace string `help:"Containerd namespace for job containers." default:"${namespace}" env:"CRUXCI_NAMESPACE"`
	Volumes   string `help:"Directory holding cache volumes." default:"${volumes}" env:"CRUXCI_VOLUMES" placeholder:"DIR"`

	Run     RunCmd     `cmd:"" help:"Run jobs, or the default sequence when none are named."`
	List    ListCmd    `cmd:"" help:"List the available jobs."`
	Gitlab  GitlabCmd  `cmd:"" help:"Generate a GitLab CI document from the job catalog."`
	Volume  VolumesCmd `cmd:"" name:"volumes" help:"Show the cache volumes and their location."`
	Serve   ServeCmd   `cmd:"" help:"Serve run requests on a Unix socket."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parsed command line.
var RootCmd Root

// Returns the kong options shared by the binary and tests.
func parserOptions() []kong.Option {
	return []kong.Option{
		kong.Name(internal.Name),
		kong.Description("Runs the verification jobs of a Symfony project in isolated containers.\n\n" +
			"Jobs share persistent cache volumes for toolchains and dependencies, so\n" +
			"repeated runs only pay installation costs once."),
		kong.UsageOnError(),
		kong.Vars{
			"version":   internal.VersionString(),
			"address":   defaultAddress,
			"namespace": defaultNamespace,
			"volumes":   paths.Volumes(),
			"socket":    paths.Socket(),
		},
	}
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := append(parserOptions(), kong.BindTo(ctx, (*context.Context)(nil)))
	kongCtx := kong.Parse(&RootCmd, opts...)

	configureLogger()

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()
	verbose := RootCmd.Verbose || internal.IsVerbose()

	internal.SetDebug(debug)
	internal.SetQuiet(quiet)
	internal.SetVerbose(verbose)

	switch {
	case debug:
		logging.SetLevel(slog.LevelDebug)
	case quiet:
		logging.SetLevel(slog.LevelWarn)
	default:
		logging.SetLevel(slog.LevelInfo)
	}

	slog.SetDefault(logging.New(logging.Config{
		Name:    internal.Name,
		Console: logging.IsTerminal(os.Stderr),
		Verbose: verbose,
		Output:  os.Stderr,
	}))
}
