package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/docuflow/docuflow/workflow"
)

func TestCollectorCountsEngineActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.StepExecuted("prd_workflow", "draft", "success", 120*time.Millisecond)
	c.StepExecuted("prd_workflow", "review", "failed", 80*time.Millisecond)
	c.ExecutionFinished("prd_workflow", workflow.StatusCompleted)
	c.EscalationRaised("prd_workflow")
	c.RetryRecorded("prd_workflow", "draft")
	c.RetryRecorded("prd_workflow", "draft")

	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.stepsTotal.WithLabelValues("prd_workflow", "success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.stepsTotal.WithLabelValues("prd_workflow", "failed")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.executionsTotal.WithLabelValues("prd_workflow", "completed")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.escalations.WithLabelValues("prd_workflow")))
	assert.Equal(t, float64(2),
		testutil.ToFloat64(c.retries.WithLabelValues("prd_workflow", "draft")))
}

func TestCollectorRegistersOncePerRegistry(t *testing.T) {
	// Separate registries keep metric registration independent.
	a := NewCollector(prometheus.NewRegistry())
	b := NewCollector(prometheus.NewRegistry())
	a.EscalationRaised("w")
	assert.Equal(t, float64(0), testutil.ToFloat64(b.escalations.WithLabelValues("w")))
}
