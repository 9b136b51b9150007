package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cruciblehq/cruxci/internal/catalog"
	"github.com/cruciblehq/cruxci/internal/paths"
	"github.com/cruciblehq/cruxci/internal/pipeline"
)

const namespace = "cruxci"

// Collects job metrics. Implements [pipeline.Observer].
type Recorder struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	running  prometheus.Gauge
	last     *prometheus.GaugeVec
}

// Creates a recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "job",
				Name:      "duration_seconds",
				Help:      "Wall-clock duration of jobs, including environment construction",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34m
			},
			[]string{"job", "outcome"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "job",
				Name:      "runs_total",
				Help:      "Number of job runs by outcome",
			},
			[]string{"job", "outcome"},
		),
		running: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "running",
				Help:      "Number of jobs currently running",
			},
		),
		last: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "job",
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time at which each job last finished",
			},
			[]string{"job"},
		),
	}
}

// Returns the registry holding the recorder's metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) JobStarted(catalog.Name) {
	r.running.Inc()
}

func (r *Recorder) JobFinished(res pipeline.JobResult) {
	job := string(res.Name)
	outcome := res.Outcome()

	r.running.Dec()
	r.runs.WithLabelValues(job, outcome).Inc()
	r.duration.WithLabelValues(job, outcome).Observe(res.Duration.Seconds())
	r.last.WithLabelValues(job).SetToCurrentTime()
}

// Writes the metrics to path in the text exposition format.
//
// The file is replaced atomically, so a concurrent node-exporter never reads
// a partial file.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), paths.DefaultDirMode); err != nil {
		return fmt.Errorf("metrics textfile: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("metrics textfile: %w", err)
	}
	return nil
}
