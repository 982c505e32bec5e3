// Package metrics exposes the fleet's Prometheus surface: job throughput,
// outcome breakdown, execution latency, schedule claim contention, and
// node liveness, scraped over /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every metric the fleet records. One Collector per
// process; every worker, the scheduler loop and the HTTP control plane
// share it.
type Collector struct {
	jobsEnqueued   prometheus.Counter
	jobsDequeued   prometheus.Counter
	jobsFinished   *prometheus.CounterVec // label: outcome ∈ {success, error, unknown_executor}
	jobDuration    prometheus.Histogram
	scheduleClaims *prometheus.CounterVec // label: result ∈ {won, lost}
	nodesActive    prometheus.Gauge
}

// NewCollector builds and registers every metric against the default
// Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		jobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_jobs_enqueued_total",
			Help: "Total number of jobs enqueued onto any node type's waiting queue",
		}),
		jobsDequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_jobs_dequeued_total",
			Help: "Total number of jobs popped off a waiting queue by a worker",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_jobs_finished_total",
			Help: "Total number of jobs finished, partitioned by outcome",
		}, []string{"outcome"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleet_job_duration_seconds",
			Help:    "Wall-clock time from dequeue to finish",
			Buckets: prometheus.DefBuckets,
		}),
		scheduleClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_schedule_claims_total",
			Help: "Schedule item CAS claim attempts, partitioned by result",
		}, []string{"result"}),
		nodesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_nodes_active",
			Help: "Number of nodes observed fresh on the last liveness scan",
		}),
	}

	prometheus.MustRegister(
		c.jobsEnqueued,
		c.jobsDequeued,
		c.jobsFinished,
		c.jobDuration,
		c.scheduleClaims,
		c.nodesActive,
	)

	return c
}

func (c *Collector) RecordEnqueue() {
	c.jobsEnqueued.Inc()
}

func (c *Collector) RecordDequeue() {
	c.jobsDequeued.Inc()
}

// RecordFinished records a finished job's outcome and its dequeue-to-finish
// duration. outcome should be "success", "error" or "unknown_executor".
func (c *Collector) RecordFinished(outcome string, durationSeconds float64) {
	c.jobsFinished.WithLabelValues(outcome).Inc()
	c.jobDuration.Observe(durationSeconds)
}

// RecordScheduleClaim records one node's outcome in a schedule item's CAS
// race: "won" if it wrote the new value, "lost" otherwise.
func (c *Collector) RecordScheduleClaim(won bool) {
	result := "lost"
	if won {
		result = "won"
	}
	c.scheduleClaims.WithLabelValues(result).Inc()
}

func (c *Collector) SetNodesActive(n int) {
	c.nodesActive.Set(float64(n))
}

// Handler returns the promhttp handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
