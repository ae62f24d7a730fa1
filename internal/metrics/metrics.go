// Package metrics records operation metrics for the Prometheus node
// exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/fgeck/gopgbackup/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gopgbackup"

// Recorder holds the metrics of this process in a private registry.
type Recorder struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	lastSuccess  *prometheus.GaugeVec
	artifactSize prometheus.Gauge
	uploads      *prometheus.CounterVec
}

// New creates a recorder with all metrics registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of backup and restore operations",
		}, []string{"operation", "strategy", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of backup and restore operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
		}, []string{"operation"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful operation",
		}, []string{"operation"}),
		artifactSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_size_bytes",
			Help:      "Size of the last backup artifact in bytes",
		}),
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of artifact uploads",
		}, []string{"provider", "status"}),
	}
}

// RecordOperation records one finished operation. A strategy of "" means
// the operation failed before one was chosen.
func (r *Recorder) RecordOperation(op models.OperationKind, strategy string, success bool, d time.Duration, finished time.Time) {
	if strategy == "" {
		strategy = "none"
	}
	r.operations.WithLabelValues(string(op), strategy, status(success)).Inc()
	r.duration.WithLabelValues(string(op)).Observe(d.Seconds())
	if success {
		r.lastSuccess.WithLabelValues(string(op)).Set(float64(finished.Unix()))
	}
}

// RecordArtifact records the size of a finished backup.
func (r *Recorder) RecordArtifact(sizeBytes int64) {
	r.artifactSize.Set(float64(sizeBytes))
}

// RecordUpload records one upload attempt.
func (r *Recorder) RecordUpload(provider string, success bool) {
	r.uploads.WithLabelValues(provider, status(success)).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile atomically writes all metrics to path in the text
// exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
