// Package metrics 定义推荐链路的 Prometheus 指标。
//
// 指标按实例注册到调用方提供的 Registerer，测试中使用独立的 prometheus.NewRegistry()。
// 所有方法在 nil *Metrics 上都是安全的空操作，组件可以不注入指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hybridrec"

// Metrics 汇总推荐链路上的全部指标。
type Metrics struct {
	Requests             *prometheus.CounterVec
	RequestDuration      prometheus.Histogram
	CacheResults         *prometheus.CounterVec
	SourceFailures       *prometheus.CounterVec
	SourceCandidates     *prometheus.HistogramVec
	SourceLatency        *prometheus.HistogramVec
	StageDuration        *prometheus.HistogramVec
	CandidatesGenerated  prometheus.Histogram
	ExplanationFallbacks *prometheus.CounterVec
	Diversity            prometheus.Histogram
	FeedbackEvents       *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New 在 reg 上注册并返回指标集合。reg 为 nil 时使用 prometheus.DefaultRegisterer。
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of recommendation requests by outcome",
		}, []string{"outcome"}), // ok / cache_hit / no_candidates / invalid / canceled / error

		RequestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end recommendation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		CacheResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_results_total",
			Help:      "Result cache lookups by result",
		}, []string{"result"}), // hit / miss / error / set_error

		SourceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Candidate source failures by source and reason",
		}, []string{"source", "reason"}),

		SourceCandidates: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_candidates",
			Help:      "Number of candidates returned per source call",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}, []string{"source"}),

		SourceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_duration_seconds",
			Help:      "Candidate source call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),

		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "kind"}),

		CandidatesGenerated: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates_generated",
			Help:      "Number of unique candidates after fan-out merge",
			Buckets:   []float64{0, 10, 25, 50, 100, 200, 400, 800},
		}),

		ExplanationFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explanation_fallbacks_total",
			Help:      "Explanations that fell back to templates by reason",
		}, []string{"reason"}), // timeout / error / empty / circuit_open

		Diversity: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "result_dissimilarity",
			Help:      "Average pairwise dissimilarity of returned lists",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),

		FeedbackEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_events_total",
			Help:      "Feedback events by sink result",
		}, []string{"result"}), // recorded / dropped / error

		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
	}
}

func (m *Metrics) ObserveRequest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
	m.RequestDuration.Observe(d.Seconds())
}

func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.CacheResults.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSource(source string, count int, d time.Duration) {
	if m == nil {
		return
	}
	m.SourceCandidates.WithLabelValues(source).Observe(float64(count))
	m.SourceLatency.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) SourceFailure(source, reason string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) ObserveStage(stage, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage, kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveCandidates(n int) {
	if m == nil {
		return
	}
	m.CandidatesGenerated.Observe(float64(n))
}

func (m *Metrics) ExplanationFallback(reason string) {
	if m == nil {
		return
	}
	m.ExplanationFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveDiversity(avgDissimilarity float64) {
	if m == nil {
		return
	}
	m.Diversity.Observe(avgDissimilarity)
}

func (m *Metrics) Feedback(result string) {
	if m == nil {
		return
	}
	m.FeedbackEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) BreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(state)
}
