package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector := NewCollector()

	assert.NotNil(t, collector, "NewCollector should return a non-nil collector")
	assert.NotNil(t, collector.jobsEnqueued, "jobsEnqueued counter should be initialized")
	assert.NotNil(t, collector.jobsDequeued, "jobsDequeued counter should be initialized")
	assert.NotNil(t, collector.jobsFinished, "jobsFinished counter vec should be initialized")
	assert.NotNil(t, collector.jobDuration, "jobDuration histogram should be initialized")
	assert.NotNil(t, collector.scheduleClaims, "scheduleClaims counter vec should be initialized")
	assert.NotNil(t, collector.nodesActive, "nodesActive gauge should be initialized")
}

func TestRecordEnqueueAndDequeue(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		for i := 0; i < 5; i++ {
			collector.RecordEnqueue()
			collector.RecordDequeue()
		}
	})
}

func TestRecordFinishedOutcomes(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	for _, outcome := range []string{"success", "error", "unknown_executor"} {
		assert.NotPanics(t, func() {
			collector.RecordFinished(outcome, 0.25)
		}, "RecordFinished should not panic for outcome %s", outcome)
	}
}

func TestRecordScheduleClaim(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordScheduleClaim(true)
		collector.RecordScheduleClaim(false)
	})
}

func TestSetNodesActive(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	for _, n := range []int{0, 1, 10, 100} {
		assert.NotPanics(t, func() {
			collector.SetNodesActive(n)
		})
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	done := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() {
			collector.RecordEnqueue()
			collector.RecordDequeue()
			collector.RecordFinished("success", 0.1)
			collector.RecordScheduleClaim(true)
			collector.SetNodesActive(10)
			done <- true
		}()
	}
	for i := 0; i < 100; i++ {
		<-done
	}
}

func TestCollectorIsolation(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector1 := NewCollector()
	require.NotNil(t, collector1)

	// A second collector registering against the same default registry
	// panics on duplicate metric names; a process owns exactly one Collector.
	assert.Panics(t, func() {
		NewCollector()
	})
}

func TestJobLifecycleSequence(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordEnqueue()
		collector.RecordDequeue()
		collector.RecordFinished("success", 0.5)
	})
}
