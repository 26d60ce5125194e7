// Package prom records build metrics in a Prometheus registry and writes
// them as a node_exporter textfile next to the build.
package prom

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// TextfileName is the metrics file written by Flush.
const TextfileName = "metrics.prom"

const namespace = "patentgov"

// Ensure Recorder implements the interface.
var _ driven.BuildMetrics = (*Recorder)(nil)

// Recorder holds the build metrics of one process.
type Recorder struct {
	registry      *prometheus.Registry
	vectors       *prometheus.CounterVec
	gates         *prometheus.CounterVec
	builds        *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		vectors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vectors_written_total",
			Help:      "Vectors stored in build workspaces.",
		}, []string{"embedding_version_id", "chunk_type"}),
		gates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_results_total",
			Help:      "Gate outcomes at promotion.",
		}, []string{"embedding_version_id", "gate", "outcome"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Finished builds by terminal status.",
		}, []string{"embedding_version_id", "status"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Wall time from workspace creation to terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"status"}),
	}
	r.registry.MustRegister(r.vectors, r.gates, r.builds, r.buildDuration)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// VectorsWritten counts vectors stored for a chunk type.
func (r *Recorder) VectorsWritten(evid string, chunkType domain.ChunkType, n int) {
	r.vectors.WithLabelValues(evid, string(chunkType)).Add(float64(n))
}

// GateEvaluated records one gate outcome.
func (r *Recorder) GateEvaluated(evid string, result domain.GateResult) {
	r.gates.WithLabelValues(evid, string(result.Name), string(result.Outcome)).Inc()
}

// BuildFinished records the terminal status and duration of a build.
func (r *Recorder) BuildFinished(evid string, status domain.BuildStatus, elapsed time.Duration) {
	r.builds.WithLabelValues(evid, string(status)).Inc()
	r.buildDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

// Flush writes every metric into dir/metrics.prom.
func (r *Recorder) Flush(dir string) error {
	if err := prometheus.WriteToTextfile(filepath.Join(dir, TextfileName), r.registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
