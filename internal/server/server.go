package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cruciblehq/cruxci/internal/catalog"
	"github.com/cruciblehq/cruxci/internal/paths"
	"github.com/cruciblehq/cruxci/internal/pipeline"
	"github.com/cruciblehq/cruxci/internal/snapshot"
)

const (

	// Group name used to grant socket access. Members of this group can
	// submit runs without owning the process.
	socketGroup = "cruxci"

	// File mode applied to the Unix socket. Owner and group get read-write
	// (required for connect); others get no access.
	socketMode = 0660
)

// Holds server configuration.
type Config struct {
	SocketPath string              // Unix socket path. Empty uses [paths.Socket].
	PIDFile    string              // Written on start and removed on stop. Empty writes none.
	Catalog    *catalog.Catalog    // Jobs that may be requested.
	Builder    *pipeline.Builder   // Builds and runs job environments.
	Snapshot   snapshot.Snapshot   // Project copied into every job.
	Observers  []pipeline.Observer // Notified around every job of every run.
}

// Listens on a Unix domain socket and dispatches commands.
type Server struct {
	cfg        Config
	socketPath string        // Path to the Unix socket file.
	listener   net.Listener  // Listener for incoming connections.
	startedAt  time.Time     // Timestamp when the server started.
	runs       int           // Completed runs.
	active     int           // Runs in progress.
	done       chan struct{} // Closed when the server stops.
	stopOnce   sync.Once
	mu         sync.Mutex // Guards runs and active.
}

// Creates a new server instance.
//
// The socket is not opened until [Server.Start] is called.
func New(cfg Config) (*Server, error) {
	if cfg.Catalog == nil || cfg.Builder == nil {
		return nil, fmt.Errorf("%w: catalog and builder are required", ErrServer)
	}

	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = paths.Socket()
	}

	return &Server{
		cfg:        cfg,
		socketPath: socketPath,
		done:       make(chan struct{}),
	}, nil
}

// Returns the path of the server's socket.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Opens the Unix socket and begins accepting connections.
func (s *Server) Start() error {
	listener, err := listen(s.socketPath)
	if err != nil {
		return err
	}

	s.listener = listener
	s.startedAt = time.Now()

	if s.cfg.PIDFile != "" {
		if err := writePID(s.cfg.PIDFile); err != nil {
			slog.Warn("failed to write PID file", "path", s.cfg.PIDFile, "error", err)
		}
	}

	slog.Info("server listening on socket", "path", s.socketPath)

	go s.accept()
	return nil
}

// Creates the Unix socket listener, removes any stale socket from a previous
// run, and applies permissions.
func listen(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: listening on %s: %w", ErrServer, socketPath, err)
	}

	if err := setSocketPermissions(socketPath); err != nil {
		listener.Close()
		return nil, err
	}

	return listener, nil
}

// Restricts socket access to owner and group. Members of the cruxci group
// can also connect.
func setSocketPermissions(socketPath string) error {
	if err := os.Chmod(socketPath, socketMode); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", ErrServer, socketPath, err)
	}

	g, err := user.LookupGroup(socketGroup)
	if err != nil {
		slog.Debug("socket group not found, socket accessible to owner only", "group", socketGroup)
		return nil
	}
	if gid, err := strconv.Atoi(g.Gid); err == nil {
		if err := os.Chown(socketPath, -1, gid); err != nil {
			slog.Warn("failed to chgrp socket", "group", socketGroup, "error", err)
		}
	}
	return nil
}

// Shuts down the server and removes its socket. Runs in progress are
// cancelled when their connections close. Safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)

		if s.listener != nil {
			s.listener.Close()
		}

		os.Remove(s.socketPath)
		if s.cfg.PIDFile != "" {
			os.Remove(s.cfg.PIDFile)
		}

		slog.Info("server stopped")
	})
	return nil
}

// Returns a channel closed once the server stops.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Accepts connections in a loop until the server shuts down.
func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				slog.Error("accept error", "error", err)
				continue
			}
		}

		go s.handle(conn)
	}
}

// Processes a single connection.
//
// Reads one newline-delimited JSON message, dispatches the command, and
// writes the response. The connection is closed after one exchange.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	line, err := reader.ReadBytes('\n')
	if err != nil {
		slog.Error("read error", "error", err)
		return
	}

	env, err := Decode(line)
	if err != nil {
		s.respond(conn, CmdError, &ErrorResult{Message: err.Error()})
		return
	}

	slog.Info("command received", "command", env.Command)

	ctx, cancel := contextWithDisconnect(context.Background(), reader)
	defer cancel()

	s.dispatch(ctx, conn, env.Command, env.Payload)
}

// Routes a command to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, cmd Command, payload json.RawMessage) {
	switch cmd {
	case CmdRun:
		s.handleRun(ctx, conn, payload)
	case CmdList:
		s.handleList(conn)
	case CmdStatus:
		s.handleStatus(conn)
	case CmdShutdown:
		s.handleShutdown(conn)
	default:
		s.respond(conn, CmdError, &ErrorResult{
			Message: fmt.Sprintf("unknown command: %s", cmd),
		})
	}
}

// Writes a JSON envelope response to the connection.
func (s *Server) respond(conn net.Conn, cmd Command, payload any) {
	data, err := Encode(cmd, payload)
	if err != nil {
		slog.Error("encode response failed", "error", err)
		return
	}
	data = append(data, '\n')
	conn.Write(data)
}

// Writes the server PID so operators and scripts can signal it.
func writePID(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), paths.DefaultDirMode); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), paths.DefaultFileMode)
}

// Returns a derived context that is cancelled when the remote end of the
// connection closes.
//
// Detection works by reading from r in a background goroutine. The read blocks
// until the peer closes the connection, at which point it returns an error and
// the derived context is cancelled. No further data is expected on r once the
// request line has been read; anything that arrives is discarded and cancels
// the context early. The returned [context.CancelFunc] must always be called.
func contextWithDisconnect(parent context.Context, r io.Reader) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		buf := make([]byte, 1)
		r.Read(buf)
		cancel()
	}()

	return ctx, cancel
}
