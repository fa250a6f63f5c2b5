package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	exportsTotal    *prometheus.CounterVec
	skippedTotal    *prometheus.CounterVec
	artifactBytes   *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	snapshotTickers prometheus.Gauge
	snapshotInds    prometheus.Gauge
	snapshotVersion prometheus.Gauge
}

// New creates a Prometheus metrics recorder registered on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		exportsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "covdash_exports_total",
				Help: "Total number of exports served",
			},
			[]string{"format", "cache"},
		),
		skippedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "covdash_export_skipped_industries_total",
				Help: "Industries left out of batch exports",
			},
			[]string{"reason"},
		),
		artifactBytes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "covdash_artifact_bytes",
				Help:    "Size of served export artifacts",
				Buckets: prometheus.ExponentialBuckets(128, 4, 10),
			},
			[]string{"format"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "covdash_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "covdash_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		snapshotTickers: f.NewGauge(prometheus.GaugeOpts{
			Name: "covdash_snapshot_tickers",
			Help: "Tickers in the loaded covariance matrix",
		}),
		snapshotInds: f.NewGauge(prometheus.GaugeOpts{
			Name: "covdash_snapshot_industries",
			Help: "Industries in the loaded industry map",
		}),
		snapshotVersion: f.NewGauge(prometheus.GaugeOpts{
			Name: "covdash_snapshot_version",
			Help: "Version of the loaded snapshot",
		}),
	}
}

// RecordExport records a served export artifact.
func (r *Recorder) RecordExport(format string, bytes int, cacheHit bool) {
	r.exportsTotal.WithLabelValues(format, strconv.FormatBool(cacheHit)).Inc()
	r.artifactBytes.WithLabelValues(format).Observe(float64(bytes))
}

// RecordSkipped records an industry skipped by a batch export.
func (r *Recorder) RecordSkipped(reason string) {
	r.skippedTotal.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordSnapshot publishes the shape of a freshly loaded snapshot.
func (r *Recorder) RecordSnapshot(tickers, industries int, version uint64) {
	r.snapshotTickers.Set(float64(tickers))
	r.snapshotInds.Set(float64(industries))
	r.snapshotVersion.Set(float64(version))
}
