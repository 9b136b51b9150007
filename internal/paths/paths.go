package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	programName = "cruxci"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the directory holding persistent cache volumes.
//
//	Linux:   $XDG_DATA_HOME/cruxci/volumes or ~/.local/share/cruxci/volumes
//	macOS:   ~/Library/Application Support/cruxci/volumes
func Volumes() string {
	return filepath.Join(xdg.DataHome, programName, "volumes")
}

// Path to the directory for run state (last results, metrics textfiles).
//
//	Linux:   $XDG_STATE_HOME/cruxci or ~/.local/state/cruxci
//	macOS:   ~/Library/Application Support/cruxci
func State() string {
	return filepath.Join(xdg.StateHome, programName)
}

// Default path of the node-exporter textfile written after a run.
func MetricsFile() string {
	return filepath.Join(State(), "cruxci.prom")
}

// Directory for runtime files (socket, PID file).
//
//	Linux:   $XDG_RUNTIME_DIR/cruxci or /run/user/<uid>/cruxci
//	macOS:   ~/Library/Application Support/cruxci
func Runtime() string {
	return filepath.Join(xdg.RuntimeDir, programName)
}

// Path to the Unix socket the job server listens on.
func Socket() string {
	return filepath.Join(Runtime(), programName+".sock")
}

// Path to the PID file written by a running job server.
func PIDFile() string {
	return filepath.Join(Runtime(), programName+".pid")
}
