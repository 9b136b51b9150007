// Package metrics records job outcomes as Prometheus metrics.
//
// A [Recorder] observes the pipeline runner and keeps per-job counters and
// durations in its own registry. A command-line run is too short-lived to be
// scraped, so the registry is written to a node-exporter textfile instead.
package metrics
