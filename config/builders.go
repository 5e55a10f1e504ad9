package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rushteam/hybridrec/cache"
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/explain"
	"github.com/rushteam/hybridrec/feature"
	"github.com/rushteam/hybridrec/feedback"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/pkg/breaker"
	"github.com/rushteam/hybridrec/pkg/conv"
	"github.com/rushteam/hybridrec/rank"
	"github.com/rushteam/hybridrec/recall"
	"github.com/rushteam/hybridrec/rerank"
)

func init() {
	Register(SourceCollaborative, BuildCollaborativeSource)
	Register(SourceContent, BuildContentSource)
	Register(SourceGraph, BuildGraphSource)
	Register(SourceTrending, BuildTrendingSource)
}

//nolint:gocritic // Deps 按值传递
func BuildCollaborativeSource(opts map[string]any, deps Deps) (recall.Source, error) {
	cf := deps.CF
	if cf == nil {
		if deps.Store == nil {
			return nil, errors.New("collaborative source requires a CF store or a data store")
		}
		cf = recall.NewStoreCFAdapter(deps.Store, conv.ConfigGet(opts, "key_prefix", ""))
	}
	return &recall.CollaborativeSource{
		Store:            cf,
		Metadata:         deps.Metadata,
		TopKSimilarUsers: int(conv.ConfigGetInt64(opts, "top_k_similar_users", 50)),
		SimilarityMetric: conv.ConfigGet(opts, "metric", "cosine"),
		MinCommonItems:   int(conv.ConfigGetInt64(opts, "min_common_items", 2)),
	}, nil
}

//nolint:gocritic // Deps 按值传递
func BuildContentSource(opts map[string]any, deps Deps) (recall.Source, error) {
	store := deps.Content
	if store == nil {
		if deps.Store == nil {
			return nil, errors.New("content source requires a content store or a data store")
		}
		store = recall.NewStoreContentAdapter(deps.Store, conv.ConfigGet(opts, "key_prefix", ""))
	}
	src := &recall.ContentSource{
		Store:    store,
		Metadata: deps.Metadata,
		Metric:   conv.ConfigGet(opts, "metric", "cosine"),
	}
	if conv.ConfigGet(opts, "exclude_seen", true) {
		src.Seen = deps.CF
		if src.Seen == nil && deps.Store != nil {
			src.Seen = recall.NewStoreCFAdapter(deps.Store, "")
		}
	}
	return src, nil
}

// BuildGraphSource 构建图召回源；未配置 endpoint 时召回源返回 ErrModelNotReady。
//
//nolint:gocritic // Deps 按值传递
func BuildGraphSource(opts map[string]any, deps Deps) (recall.Source, error) {
	cfg := recall.GraphConfig{
		Endpoint: conv.ConfigGet(opts, "endpoint", ""),
		Timeout:  durationOption(opts, "timeout", 0),
		Breaker:  breaker.DefaultConfig(),
	}
	if n := conv.ConfigGetInt64(opts, "breaker_min_requests", 0); n > 0 {
		cfg.Breaker.MinRequests = uint32(n)
	}
	if r := conv.ConfigGetFloat64(opts, "breaker_failure_ratio", 0); r > 0 {
		cfg.Breaker.FailureRatio = r
	}
	cfg.Breaker.Timeout = durationOption(opts, "breaker_timeout", cfg.Breaker.Timeout)

	gopts := []recall.GraphOption{
		recall.WithGraphMetadata(deps.Metadata),
		recall.WithGraphLogger(deps.Logger),
		recall.WithGraphMetrics(deps.Metrics),
	}
	if deps.HTTPClient != nil {
		gopts = append(gopts, recall.WithHTTPClient(deps.HTTPClient))
	}
	return recall.NewGraphSource(cfg, gopts...), nil
}

//nolint:gocritic // Deps 按值传递
func BuildTrendingSource(opts map[string]any, deps Deps) (recall.Source, error) {
	return &recall.TrendingSource{
		Store:    deps.Store,
		Key:      conv.ConfigGet(opts, "key", recall.DefaultTrendingKey),
		Metadata: deps.Metadata,
		Depth:    int(conv.ConfigGetInt64(opts, "depth", 0)),
	}, nil
}

// durationOption 读取时长：字符串按 time.ParseDuration 解析，数字按秒计。
func durationOption(opts map[string]any, key string, def time.Duration) time.Duration {
	switch v := opts[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case time.Duration:
		return v
	default:
		if f, ok := conv.ToFloat64(v); ok && f > 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return def
}

// BuildMetadata 按 feature.backend 创建元数据提供者，远程来源外加一层本地 LRU。
//
//nolint:gocritic // Deps 按值传递
func BuildMetadata(cfg *Config, deps Deps) (feature.MetadataProvider, error) {
	if deps.Metadata != nil {
		return deps.Metadata, nil
	}
	var p feature.MetadataProvider
	switch cfg.Feature.Backend {
	case "", "none":
		return nil, nil
	case "store":
		if deps.Store == nil {
			return nil, errors.New("feature.backend=store requires a data store")
		}
		p = feature.NewStoreProvider(deps.Store, cfg.Feature.KeyPrefix)
	case "feast":
		fp, err := feature.NewFeastProvider(cfg.Feature.Feast)
		if err != nil {
			return nil, fmt.Errorf("feast provider: %w", err)
		}
		p = fp
	default:
		return nil, fmt.Errorf("unknown feature backend %q", cfg.Feature.Backend)
	}
	if cfg.Feature.CacheSize > 0 {
		p = feature.NewCachedProvider(p, cfg.Feature.CacheSize, cfg.Feature.CacheTTL)
	}
	return p, nil
}

// BuildFanout 按 recall 配置构建召回扇出。deps.Metadata 应已就绪。
//
//nolint:gocritic // Deps 按值传递
func BuildFanout(cfg *Config, deps Deps) (*recall.Fanout, error) {
	entries := make([]recall.Entry, 0, len(cfg.Recall.Sources))
	for _, sc := range cfg.Recall.Sources {
		if sc.Disabled {
			continue
		}
		src, err := BuildSource(sc, deps)
		if err != nil {
			return nil, err
		}
		entries = append(entries, recall.Entry{Source: src, Fraction: sc.Fraction, Priority: sc.Priority})
	}
	if len(entries) == 0 {
		return nil, errors.New("no enabled recall sources")
	}

	merge := recall.MergeStrategy(cfg.Recall.Merge)
	if merge == "" {
		merge = recall.MergeFirst
	}
	return recall.NewFanout(entries,
		recall.WithPoolSize(cfg.Recall.PoolSize),
		recall.WithTimeout(cfg.Recall.Timeout),
		recall.WithSourceTimeout(cfg.Recall.SourceTimeout),
		recall.WithMaxConcurrent(cfg.Recall.MaxConcurrent),
		recall.WithMergeStrategy(merge),
		recall.WithLogger(deps.Logger),
		recall.WithMetrics(deps.Metrics),
	), nil
}

// BuildAggregator 构建融合器，权重不合法时报错。
func BuildAggregator(cfg *Config) (*rank.Aggregator, error) {
	w, err := core.NewWeights(cfg.Weights)
	if err != nil {
		return nil, err
	}
	return rank.NewAggregator(w), nil
}

// BuildOptimizer 构建多样性重排：GenreSpread/TemporalSpread 作为 MMR 之前的预处理，其头部候选先占住名额，
// PopularityBalance 作用于最终选择结果。
func BuildOptimizer(cfg *Config) *rerank.Optimizer {
	o := &rerank.Optimizer{}
	rc := cfg.Rerank
	if rc.GenreSpread.Enabled {
		o.Pre = append(o.Pre, &rerank.GenreSpread{MinGenres: rc.GenreSpread.MinGenres})
	}
	if rc.TemporalSpread.Enabled {
		o.Pre = append(o.Pre, &rerank.TemporalSpread{})
	}
	if rc.MMR {
		o.MMR = &rerank.MMR{Lambda: rc.Lambda}
	}
	if rc.PopularityBalance.Enabled {
		o.Post = append(o.Post, &rerank.PopularityBalance{PopularRatio: rc.PopularityBalance.PopularRatio})
	}
	return o
}

// BuildExplainer 构建解释器；explain.generator 为空时只用模板。
//
//nolint:gocritic // Deps 按值传递
func BuildExplainer(cfg *Config, deps Deps) *explain.Explainer {
	opts := []explain.Option{
		explain.WithTimeout(cfg.Explain.Timeout),
		explain.WithBreaker(cfg.Explain.Breaker),
		explain.WithLogger(deps.Logger),
		explain.WithMetrics(deps.Metrics),
	}
	if cfg.Explain.Generator == "ollama" {
		opts = append(opts, explain.WithGenerator(explain.NewOllamaGenerator(cfg.Explain.Ollama, deps.HTTPClient)))
	}
	return explain.NewExplainer(opts...)
}

// BuildCache 按 cache.backend 构建结果缓存；未启用时返回 nil。
//
//nolint:gocritic // Deps 按值传递
func BuildCache(cfg *Config, deps Deps) (cache.Cache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewLRU(cfg.Cache.LRUSize, cfg.Cache.TTL), nil
	case "redis", "tiered":
		if deps.Store == nil {
			return nil, fmt.Errorf("cache.backend=%s requires a data store", cfg.Cache.Backend)
		}
		l2 := cache.NewStoreCache(deps.Store, cache.WithStoreLogger(deps.Logger))
		if cfg.Cache.Backend == "redis" {
			return l2, nil
		}
		return cache.NewTiered(cache.NewLRU(cfg.Cache.LRUSize, cfg.Cache.TTL), l2, cfg.Cache.L1TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// Runtime 持有构建出的 Orchestrator 及需要关闭的资源。
type Runtime struct {
	Orchestrator *pipeline.Orchestrator
	Fanout       *recall.Fanout
	Cache        cache.Cache
	Metadata     feature.MetadataProvider

	sink *feedback.AsyncSink
}

// Close 刷新并关闭反馈队列。
func (r *Runtime) Close() error {
	if r == nil || r.sink == nil {
		return nil
	}
	return r.sink.Close()
}

// BuildOrchestrator 按配置装配完整的推荐流水线。
//
//nolint:gocritic // Deps 按值传递
func BuildOrchestrator(cfg *Config, deps Deps) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	meta, err := BuildMetadata(cfg, deps)
	if err != nil {
		return nil, err
	}
	deps.Metadata = meta

	fanout, err := BuildFanout(cfg, deps)
	if err != nil {
		return nil, err
	}
	agg, err := BuildAggregator(cfg)
	if err != nil {
		return nil, err
	}
	c, err := BuildCache(cfg, deps)
	if err != nil {
		return nil, err
	}

	var next feedback.Sink = feedback.NewLogSink(deps.Logger)
	if deps.Publisher != nil {
		next = feedback.MultiSink{next, feedback.NewPublisherSink(deps.Publisher, cfg.Feedback.Topic)}
	}
	sink := feedback.NewAsyncSink(next, cfg.Feedback.BufferSize, cfg.Feedback.Timeout, deps.Logger, deps.Metrics)

	opts := []pipeline.Option{
		pipeline.WithFanout(fanout),
		pipeline.WithAggregator(agg),
		pipeline.WithOptimizer(BuildOptimizer(cfg)),
		pipeline.WithExplainer(BuildExplainer(cfg, deps)),
		pipeline.WithFeedbackSink(sink),
		pipeline.WithDefaultLambda(cfg.Rerank.Lambda),
		pipeline.WithSingleflight(cfg.Pipeline.Singleflight),
		pipeline.WithInvalidateOnFeedback(cfg.Pipeline.InvalidateOnFeedback),
		pipeline.WithLogger(deps.Logger),
		pipeline.WithMetrics(deps.Metrics),
	}
	if c != nil {
		opts = append(opts, pipeline.WithCache(c, cfg.Cache.TTL))
	}
	if meta != nil {
		opts = append(opts, pipeline.WithEnricher(feature.NewEnricher(meta, deps.Logger)))
	}
	ratings := deps.CF
	if ratings == nil && deps.Store != nil {
		ratings = recall.NewStoreCFAdapter(deps.Store, "")
	}
	if ratings != nil {
		opts = append(opts, pipeline.WithHistory(&explain.RatingsHistory{
			Ratings:  ratings,
			Metadata: meta,
			MinScore: 4.0,
		}, cfg.Explain.HistoryLimit))
	}

	orch, err := pipeline.New(opts...)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}
	return &Runtime{
		Orchestrator: orch,
		Fanout:       fanout,
		Cache:        c,
		Metadata:     meta,
		sink:         sink,
	}, nil
}
