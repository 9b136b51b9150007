package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cruciblehq/cruxci/internal/catalog"
	"github.com/cruciblehq/cruxci/internal/metrics"
	"github.com/cruciblehq/cruxci/internal/paths"
	"github.com/cruciblehq/cruxci/internal/pipeline"
	"github.com/cruciblehq/cruxci/internal/runtime"
	"github.com/cruciblehq/cruxci/internal/server"
	"github.com/cruciblehq/cruxci/internal/snapshot"
)

// Grace period for in-flight HTTP requests on shutdown.
const httpShutdownTimeout = 5 * time.Second

// Represents the 'cruxci serve' command.
type ServeCmd struct {
	Src           string   `help:"Project directory copied into every job." default:"." type:"existingdir"`
	Exclude       []string `help:"Additional glob patterns left out of the project snapshot." placeholder:"GLOB"`
	Socket        string   `help:"Unix socket to listen on." default:"${socket}" env:"CRUXCI_SOCKET" placeholder:"PATH"`
	MetricsListen string   `help:"Serve /metrics and /healthz over HTTP on this address." env:"CRUXCI_METRICS_LISTEN" placeholder:"ADDR"`
}

// Executes the serve command.
//
// Runs until interrupted or until a client sends a shutdown command. The
// project snapshot is taken afresh for every job, so edits to the source
// tree are picked up by the next run without restarting.
func (c *ServeCmd) Run(ctx context.Context) error {
	snap, err := snapshot.Dir(c.Src, c.Exclude...)
	if err != nil {
		return err
	}

	rt, err := runtime.New(RootCmd.Address, RootCmd.Namespace)
	if err != nil {
		return err
	}
	defer rt.Close()

	volumes, err := volumeRegistry(RootCmd.Volumes)
	if err != nil {
		return err
	}

	rec := metrics.New()
	srv, err := server.New(server.Config{
		SocketPath: c.Socket,
		PIDFile:    paths.PIDFile(),
		Catalog:    catalog.Default(),
		Builder:    pipeline.NewBuilder(pipeline.Containerd(rt), volumes),
		Snapshot:   snap,
		Observers:  []pipeline.Observer{rec},
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	if c.MetricsListen != "" {
		httpSrv := &http.Server{
			Addr:              c.MetricsListen,
			Handler:           srv.HTTPHandler(rec.Registry()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("metrics listening", "addr", c.MetricsListen)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), httpShutdownTimeout)
			defer cancel()
			httpSrv.Shutdown(sctx)
		}()
	}

	select {
	case <-ctx.Done():
		slog.Info("interrupted, stopping server")
	case <-srv.Done():
	}
	return nil
}
