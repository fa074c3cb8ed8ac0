// SPDX-License-Identifier: MIT
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netboost_tasks_submitted_total",
		Help: "Tasks accepted by the API by network source",
	}, []string{"source"}) // source=sif|biggim|ndex

	tasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netboost_tasks_completed_total",
		Help: "Tasks that finished processing successfully",
	})

	tasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netboost_tasks_failed_total",
		Help: "Tasks that ended in an error state by reason",
	}, []string{"reason"}) // reason=network|seeds|diffusion|store|panic

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netboost_queue_depth",
		Help: "Number of tasks currently in the submitted state",
	})

	taskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "netboost_task_duration_seconds",
		Help:    "Wall-clock processing time per task",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	diffusionIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "netboost_diffusion_iterations",
		Help:    "Iterations until the diffusion converged",
		Buckets: prometheus.ExponentialBuckets(1, 2, 11),
	})

	resultCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netboost_result_cache_total",
		Help: "Result cache lookups by outcome",
	}, []string{"outcome"}) // outcome=hit|miss
)

// RecordTaskSubmitted increments the submission counter for a network source.
func RecordTaskSubmitted(source string) {
	tasksSubmitted.WithLabelValues(source).Inc()
}

// RecordTaskCompleted records a successful task and its duration.
func RecordTaskCompleted(d time.Duration) {
	tasksCompleted.Inc()
	taskDuration.Observe(d.Seconds())
}

// RecordTaskFailed increments the failure counter for a reason.
func RecordTaskFailed(reason string) {
	tasksFailed.WithLabelValues(reason).Inc()
}

// SetQueueDepth publishes the current submitted-state backlog.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// RecordDiffusionIterations records how many iterations a diffusion took.
func RecordDiffusionIterations(n int) {
	diffusionIterations.Observe(float64(n))
}

// RecordResultCache records a result cache lookup outcome.
func RecordResultCache(hit bool) {
	if hit {
		resultCacheHits.WithLabelValues("hit").Inc()
		return
	}
	resultCacheHits.WithLabelValues("miss").Inc()
}
