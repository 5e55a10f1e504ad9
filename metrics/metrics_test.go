package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("ok", time.Millisecond)
		m.CacheResult("hit")
		m.ObserveSource("cf", 3, time.Millisecond)
		m.SourceFailure("cf", "timeout")
		m.ObserveStage("rank", "rank", time.Millisecond)
		m.ObserveCandidates(10)
		m.ExplanationFallback("timeout")
		m.ObserveDiversity(0.4)
		m.Feedback("recorded")
		m.BreakerState("graph", 2)
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("ok", 10*time.Millisecond)
	m.ObserveRequest("ok", 20*time.Millisecond)
	m.CacheResult("miss")
	m.SourceFailure("graph", "timeout")
	m.Feedback("dropped")
	m.BreakerState("graph", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheResults.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceFailures.WithLabelValues("graph", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedbackEvents.WithLabelValues("dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("graph")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))

	assert.Panics(t, func() { New(reg) }, "duplicate registration")
}
