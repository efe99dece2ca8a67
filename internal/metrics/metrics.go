// Package metrics exposes the ingestion pipeline's Prometheus metrics,
// replacing the teacher's hand-rolled registry (pkg/metrics) with
// prometheus/client_golang, matching the stack used elsewhere in the
// corpus (jordigilh-kubernaut, kraklabs-cie) for this exact concern.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "ingestor"

var (
	// StageProcessed counts staging items that finished a stage, by stage and
	// outcome (completed, failed or skipped).
	StageProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_processed_total",
		Help:      "Staging items that finished a pipeline stage, by stage and outcome.",
	}, []string{"stage", "outcome"})

	// StageDuration tracks per-stage processing latency.
	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Time spent processing one staging item in a pipeline stage.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	// DLQTotal counts staging items sent to a stage's dead-letter subject.
	DLQTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dlq_total",
		Help:      "Staging items moved to a stage's dead-letter queue after exhausting retries.",
	}, []string{"stage"})

	// Uptime records the process start time as a Unix timestamp.
	Uptime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_start_time_seconds",
		Help:      "Unix timestamp of process start.",
	})

	// SearchDuration tracks hybrid search query latency.
	SearchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_duration_seconds",
		Help:      "Time spent answering a hybrid search query.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(StageProcessed, StageDuration, DLQTotal, Uptime, SearchDuration)
}
