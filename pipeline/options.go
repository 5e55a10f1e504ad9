package pipeline

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/cache"
	"github.com/rushteam/hybridrec/explain"
	"github.com/rushteam/hybridrec/feature"
	"github.com/rushteam/hybridrec/feedback"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/rank"
	"github.com/rushteam/hybridrec/recall"
	"github.com/rushteam/hybridrec/rerank"
)

// 默认参数
const (
	DefaultLambda       = rerank.DefaultLambda
	DefaultCacheTTL     = cache.DefaultTTL
	DefaultHistoryLimit = explain.MaxPromptHistory
)

// Option 配置 Orchestrator。
type Option func(*Orchestrator)

func WithFanout(f *recall.Fanout) Option {
	return func(o *Orchestrator) { o.fanout = f }
}

func WithAggregator(a *rank.Aggregator) Option {
	return func(o *Orchestrator) { o.aggregator = a }
}

func WithOptimizer(opt *rerank.Optimizer) Option {
	return func(o *Orchestrator) { o.optimizer = opt }
}

func WithExplainer(e *explain.Explainer) Option {
	return func(o *Orchestrator) { o.explainer = e }
}

// WithCache 启用结果缓存；ttl <= 0 时使用 DefaultCacheTTL。
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.cache = c
		if ttl > 0 {
			o.cacheTTL = ttl
		}
	}
}

func WithEnricher(e *feature.Enricher) Option {
	return func(o *Orchestrator) { o.enricher = e }
}

// WithHistory 配置用户历史喜爱列表来源，用于解释文案。
func WithHistory(h explain.HistoryProvider, limit int) Option {
	return func(o *Orchestrator) {
		o.history = h
		if limit > 0 {
			o.historyLimit = limit
		}
	}
}

func WithFeedbackSink(s feedback.Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

//nolint:gocritic // zerolog.Logger 按值传递
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithDefaultLambda 设置请求未指定 λ 时使用的值。
func WithDefaultLambda(l float64) Option {
	return func(o *Orchestrator) { o.defaultLambda = l }
}

// WithSingleflight 合并同一指纹的并发请求（默认关闭）。
func WithSingleflight(enabled bool) Option {
	return func(o *Orchestrator) { o.coalesce = enabled }
}

// WithInvalidateOnFeedback 在评分/收藏类反馈到达时失效该用户的缓存。
// 缓存需实现 cache.Invalidator。
func WithInvalidateOnFeedback(enabled bool) Option {
	return func(o *Orchestrator) { o.invalidateOnFeedback = enabled }
}
