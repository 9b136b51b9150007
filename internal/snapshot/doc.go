// Package snapshot captures the project tree that jobs verify.
//
// A [Snapshot] streams a tar archive of the project; the pipeline extracts
// it into every job's working directory. [Dir] snapshots a local directory,
// skipping paths that match exclusion globs. The exclusions always include
// version-control metadata, installed dependencies and tool state, which
// either would be shadowed by cache volumes or do not belong in a clean
// checkout:
//
//	snap, err := snapshot.Dir(".", "**/*.log")
//	if err != nil {
//	    return err
//	}
//	rc := snapshot.Open(ctx, snap)
//	defer rc.Close()
//
// Patterns use [github.com/gobwas/glob] syntax with '/' as the separator and
// are matched against slash-separated paths relative to the root. A matching
// directory is pruned with everything below it.
package snapshot
