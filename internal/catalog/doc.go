// Package catalog declares the fixed set of verification jobs.
//
// Each job is a [Definition]: a base image, the bootstrap commands that make
// its toolchain usable, the cache volumes it mounts, a working directory,
// environment variables, and the ordered commands that perform the check.
// Definitions are plain data created once at start-up and never mutated;
// running them is the pipeline package's concern.
//
// The [Catalog] maps job names to definitions, lists them for discovery, and
// knows the default order in which a full check runs:
//
//	cat := catalog.Default()
//	defs, err := cat.Resolve(nil) // default sequence
//	if err != nil {
//	    return err
//	}
package catalog
