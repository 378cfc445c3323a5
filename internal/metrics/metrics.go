// package metrics defines the prometheus collectors for jobs, retrievals, the dedup index and the queue.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "ytlib"

	jobsFinishedTotal  = "jobs_finished_total"
	jobDurationSeconds = "job_duration_seconds"
	retrievalsTotal    = "retrievals_total"
	dedupHitsTotal     = "dedup_hits_total"
	queueDepth         = "queue_depth"
	trackFailuresTotal = "track_failures_total"

	// Labels
	statusLabel  = "status"
	outcomeLabel = "outcome"
	phaseLabel   = "phase"
)

var jobsFinishedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      jobsFinishedTotal,
		Help:      "number of jobs that reached a terminal status",
	},
	[]string{statusLabel},
)

var jobDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      jobDurationSeconds,
		Help:      "wall-clock time from admission to terminal status",
		Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
	},
	[]string{statusLabel},
)

var retrievalsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      retrievalsTotal,
		Help:      "network retrievals attempted, partitioned by outcome",
	},
	[]string{outcomeLabel},
)

var dedupHitsMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      dedupHitsTotal,
		Help:      "tracks served from the dedup index without retrieval",
	},
)

var queueDepthMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      queueDepth,
		Help:      "jobs admitted but not yet running",
	},
)

var trackFailuresMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      trackFailuresTotal,
		Help:      "tracks that failed inside otherwise running jobs",
	},
	[]string{phaseLabel},
)

// ObserveJobFinished records a terminal status and the job's duration. A non-positive d counts the
// status without a duration sample.
func ObserveJobFinished(status string, d time.Duration) {
	labels := prometheus.Labels{statusLabel: status}
	jobsFinishedMetric.With(labels).Inc()
	if d > 0 {
		jobDurationMetric.With(labels).Observe(d.Seconds())
	}
}

// IncreaseRetrievals counts one retrieval with outcome "ok" or "failed".
func IncreaseRetrievals(outcome string) {
	retrievalsMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func IncreaseDedupHits() {
	dedupHitsMetric.Inc()
}

func SetQueueDepth(n int) {
	queueDepthMetric.Set(float64(n))
}

func IncreaseTrackFailures(phase string) {
	trackFailuresMetric.With(prometheus.Labels{phaseLabel: phase}).Inc()
}

// Collectors returns every domain collector.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		jobsFinishedMetric,
		jobDurationMetric,
		retrievalsMetric,
		dedupHitsMetric,
		queueDepthMetric,
		trackFailuresMetric,
	}
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(Collectors()...)
}
