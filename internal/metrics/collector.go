// Package metrics exposes Prometheus collectors for engine activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/docuflow/docuflow/workflow"
)

// Collector implements workflow.StepObserver on Prometheus counters and
// histograms. All methods are cheap and safe for concurrent use.
type Collector struct {
	stepsTotal      *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	executionsTotal *prometheus.CounterVec
	escalations     *prometheus.CounterVec
	retries         *prometheus.CounterVec
}

// NewCollector registers the engine metrics on reg. Pass
// prometheus.DefaultRegisterer to use the default registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docuflow",
			Name:      "steps_total",
			Help:      "Node executions by workflow and outcome.",
		}, []string{"workflow", "outcome"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docuflow",
			Name:      "step_duration_seconds",
			Help:      "Node execution latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"workflow"}),
		executionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docuflow",
			Name:      "executions_total",
			Help:      "Finished executions by terminal status.",
		}, []string{"workflow", "status"}),
		escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docuflow",
			Name:      "escalations_total",
			Help:      "Circuit breaker escalations raised.",
		}, []string{"workflow"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docuflow",
			Name:      "retries_total",
			Help:      "Retry counter increments by generating node.",
		}, []string{"workflow", "node"}),
	}
}

// StepExecuted implements workflow.StepObserver.
func (c *Collector) StepExecuted(workflowID, nodeID, outcome string, duration time.Duration) {
	c.stepsTotal.WithLabelValues(workflowID, outcome).Inc()
	c.stepDuration.WithLabelValues(workflowID).Observe(duration.Seconds())
}

// ExecutionFinished implements workflow.StepObserver.
func (c *Collector) ExecutionFinished(workflowID string, status workflow.Status) {
	c.executionsTotal.WithLabelValues(workflowID, string(status)).Inc()
}

// EscalationRaised implements workflow.StepObserver.
func (c *Collector) EscalationRaised(workflowID string) {
	c.escalations.WithLabelValues(workflowID).Inc()
}

// RetryRecorded implements workflow.StepObserver.
func (c *Collector) RetryRecorded(workflowID, nodeID string) {
	c.retries.WithLabelValues(workflowID, nodeID).Inc()
}
