// Package server implements the long-running cruxci job server.
//
// The server listens on a Unix domain socket for JSON-encoded commands.
// Each connection carries a single request-response exchange: the client
// sends a newline-delimited JSON envelope, the server dispatches the
// command, and writes the result back before closing the connection.
//
// Run commands name the jobs to execute (or none, for the default
// sequence) and are executed by a [pipeline.Runner] over the server's
// builder and project snapshot. Closing the connection cancels the run.
// Other commands list the catalog, report server status, and request
// shutdown.
//
// Example usage:
//
//	srv, err := server.New(server.Config{
//	    Catalog:   catalog.Default(),
//	    Builder:   builder,
//	    Snapshot:  snap,
//	    Observers: []pipeline.Observer{recorder},
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	<-srv.Done()
package server
