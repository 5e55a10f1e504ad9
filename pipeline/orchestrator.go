// Package pipeline 把召回、融合、多样性重排、解释与缓存串成一次推荐请求。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rushteam/hybridrec/cache"
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/explain"
	"github.com/rushteam/hybridrec/feature"
	"github.com/rushteam/hybridrec/feedback"
	"github.com/rushteam/hybridrec/filter"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/rank"
	"github.com/rushteam/hybridrec/recall"
	"github.com/rushteam/hybridrec/rerank"
)

// 请求结果，作为指标 label。
const (
	outcomeOK           = "ok"
	outcomeCacheHit     = "cache_hit"
	outcomeInvalid      = "invalid"
	outcomeNoCandidates = "no_candidates"
	outcomeCanceled     = "canceled"
)

// Orchestrator 执行一次完整的推荐请求：
//
//	校验 → 指纹 → 缓存 → 召回 → 元数据补齐 → 过滤 → 融合排序 → 多样性重排 → 解释 → 写缓存
//
// 所有依赖通过 Option 显式注入，不使用全局状态。并发安全。
type Orchestrator struct {
	fanout     *recall.Fanout
	aggregator *rank.Aggregator
	optimizer  *rerank.Optimizer
	explainer  *explain.Explainer

	cache                cache.Cache
	cacheTTL             time.Duration
	enricher             *feature.Enricher
	history              explain.HistoryProvider
	historyLimit         int
	sink                 feedback.Sink
	invalidateOnFeedback bool

	defaultLambda float64
	coalesce      bool
	group         singleflight.Group

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New 创建 Orchestrator。fanout、aggregator、optimizer 必须提供；
// 未提供 explainer 时使用纯模板解释。
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		cacheTTL:      DefaultCacheTTL,
		historyLimit:  DefaultHistoryLimit,
		defaultLambda: DefaultLambda,
		logger:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	switch {
	case o.fanout == nil:
		return nil, errors.New("pipeline: fanout is required")
	case o.aggregator == nil:
		return nil, errors.New("pipeline: aggregator is required")
	case o.optimizer == nil:
		return nil, errors.New("pipeline: optimizer is required")
	}
	if o.explainer == nil {
		o.explainer = explain.NewExplainer(explain.WithLogger(o.logger), explain.WithMetrics(o.metrics))
	}
	o.logger = logging.WithComponent(o.logger, "pipeline")
	return o, nil
}

// GetRecommendations 返回最多 TopK 条推荐。
//
// 只有请求不合法（ErrInvalidRequest）、没有任何候选（ErrNoCandidates）或 ctx 被取消时返回错误；
// 召回源失败、解释超时、缓存故障都在内部吸收。
func (o *Orchestrator) GetRecommendations(ctx context.Context, req *core.Request) ([]core.Recommendation, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		o.metrics.ObserveRequest(outcomeInvalid, time.Since(start))
		return nil, err
	}

	r := *req
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	lambda := r.EffectiveLambda(o.defaultLambda)
	key := cache.Fingerprint(r.UserID, r.TopK, r.Filters, lambda)
	logger := o.logger.With().
		Str("request_id", r.RequestID).
		Str("user_id", r.UserID).
		Logger()

	if recs, ok := o.cacheGet(ctx, key, &logger); ok {
		o.metrics.ObserveRequest(outcomeCacheHit, time.Since(start))
		logger.Debug().Int("results", len(recs)).Msg("served from cache")
		return recs, nil
	}

	var (
		recs []core.Recommendation
		err  error
	)
	if o.coalesce {
		// 共享计算不跟随发起者取消：召回与解释各自有超时上限，每个调用方只等待自己的 ctx
		ch := o.group.DoChan(key, func() (any, error) {
			return o.compute(context.WithoutCancel(ctx), &r, key, lambda, &logger)
		})
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case res := <-ch:
			err = res.Err
			if err == nil {
				recs = core.CloneRecommendations(res.Val.([]core.Recommendation))
			}
			if res.Shared {
				logger.Debug().Msg("request coalesced")
			}
		}
	} else {
		recs, err = o.compute(ctx, &r, key, lambda, &logger)
	}

	o.metrics.ObserveRequest(outcome(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	logger.Info().
		Int("top_k", r.TopK).
		Int("results", len(recs)).
		Float64("lambda", lambda).
		Dur("latency", time.Since(start)).
		Msg("recommendations generated")
	return recs, nil
}

func (o *Orchestrator) compute(
	ctx context.Context,
	req *core.Request,
	key string,
	lambda float64,
	logger *zerolog.Logger,
) ([]core.Recommendation, error) {
	matcher, err := filter.Compile(req.Filters, req.Context)
	if err != nil {
		return nil, core.WithCause(core.ErrInvalidRequest, err)
	}

	st := startStage(StageGenerate, KindRecall, logger, o.metrics)
	res, err := o.fanout.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	cands := uniqueCandidates(res.Candidates)
	st.done(len(cands))
	o.metrics.ObserveCandidates(len(cands))

	if len(cands) == 0 {
		failures := res.Failures()
		if len(failures) == 0 {
			return nil, core.ErrNoCandidates
		}
		errs := make([]error, 0, len(failures))
		for _, f := range failures {
			errs = append(errs, f.Err)
		}
		return nil, core.WithCause(core.ErrNoCandidates, errors.Join(errs...))
	}

	if o.enricher != nil {
		st = startStage(StageEnrich, KindPostProcess, logger, o.metrics)
		cands = o.enricher.Enrich(ctx, cands)
		st.done(len(cands))
	}

	if !matcher.Empty() {
		st = startStage(StageFilter, KindFilter, logger, o.metrics)
		cands = matcher.Apply(cands)
		st.done(len(cands))
		if len(cands) == 0 {
			return nil, core.WrapDomainError(core.ErrNoCandidates, "all candidates filtered out")
		}
	}

	st = startStage(StageRank, KindRank, logger, o.metrics)
	ranked := o.aggregator.Rank(req, cands)
	st.done(len(ranked))

	st = startStage(StageDiversify, KindReRank, logger, o.metrics)
	selected := o.optimizer.Diversify(ranked, req.TopK, lambda)
	st.done(len(selected))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	div := rerank.Measure(selected)
	o.metrics.ObserveDiversity(div.AvgDissimilarity)
	logger.Debug().
		Float64("genre_entropy", div.GenreEntropy).
		Float64("temporal_spread", div.TemporalSpread).
		Float64("rating_variance", div.RatingVariance).
		Float64("avg_dissimilarity", div.AvgDissimilarity).
		Strs("policies", o.optimizer.Policies()).
		Msg("diversity metrics")

	st = startStage(StageExplain, KindPostProcess, logger, o.metrics)
	history := o.likedTitles(ctx, req.UserID, logger)
	recs := make([]core.Recommendation, 0, len(selected))
	for _, sc := range selected {
		text := o.explainer.Explain(ctx, explain.Input{
			ItemID:     sc.ID,
			Components: sc.Components,
			History:    history,
			Meta:       sc.Meta,
		})
		recs = append(recs, core.Recommendation{
			ItemID:      sc.ID,
			Score:       sc.Score,
			Components:  sc.Components,
			Confidence:  explain.Confidence(sc.Components),
			Explanation: text,
			Meta:        sc.Meta,
		})
	}
	st.done(len(recs))

	o.cacheSet(ctx, key, recs, logger)
	return recs, nil
}

func (o *Orchestrator) cacheGet(ctx context.Context, key string, logger *zerolog.Logger) ([]core.Recommendation, bool) {
	if o.cache == nil {
		return nil, false
	}
	recs, ok, err := o.cache.Get(ctx, key)
	switch {
	case err != nil:
		o.metrics.CacheResult("error")
		logger.Warn().Err(err).Str("key", key).Msg("cache read failed, computing fresh")
		return nil, false
	case !ok:
		o.metrics.CacheResult("miss")
		return nil, false
	default:
		o.metrics.CacheResult("hit")
		return recs, true
	}
}

func (o *Orchestrator) cacheSet(ctx context.Context, key string, recs []core.Recommendation, logger *zerolog.Logger) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Set(ctx, key, recs, o.cacheTTL); err != nil {
		o.metrics.CacheResult("set_error")
		logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (o *Orchestrator) likedTitles(ctx context.Context, userID string, logger *zerolog.Logger) []string {
	if o.history == nil {
		return nil
	}
	titles, err := o.history.LikedTitles(ctx, userID, o.historyLimit)
	if err != nil {
		logger.Debug().Err(err).Msg("user history unavailable")
		return nil
	}
	return titles
}

// RecordFeedback 把反馈交给 Sink，错误只记录日志。
// 开启 WithInvalidateOnFeedback 时，评分/收藏类事件会失效该用户的缓存。
func (o *Orchestrator) RecordFeedback(ctx context.Context, ev feedback.Event) error {
	if ev.UserID == "" || ev.ItemID == "" {
		return core.WrapDomainError(core.ErrInvalidRequest, "feedback requires user_id and item_id")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	if o.sink != nil {
		if err := o.sink.Record(ctx, ev); err != nil {
			o.metrics.Feedback("error")
			o.logger.Warn().Err(err).
				Str("user_id", ev.UserID).
				Str("item_id", ev.ItemID).
				Msg("feedback sink failed")
		}
	}

	if o.invalidateOnFeedback && (ev.Type == feedback.TypeRate || ev.Type == feedback.TypeWatchlist) {
		if inv, ok := o.cache.(cache.Invalidator); ok {
			if err := inv.InvalidateUser(ctx, ev.UserID); err != nil {
				o.logger.Warn().Err(err).Str("user_id", ev.UserID).Msg("cache invalidation failed")
			}
		}
	}
	return nil
}

// InvalidateUser 失效用户缓存；缓存不支持时返回 ErrStoreNotSupported。
func (o *Orchestrator) InvalidateUser(ctx context.Context, userID string) error {
	inv, ok := o.cache.(cache.Invalidator)
	if !ok {
		return fmt.Errorf("invalidate user %s: %w", userID, core.ErrStoreNotSupported)
	}
	return inv.InvalidateUser(ctx, userID)
}

func uniqueCandidates(cands []*core.Candidate) []*core.Candidate {
	seen := make(map[string]struct{}, len(cands))
	out := make([]*core.Candidate, 0, len(cands))
	for _, c := range cands {
		if c == nil {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case core.IsNoCandidates(err):
		return outcomeNoCandidates
	case core.IsInvalidRequest(err):
		return outcomeInvalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	default:
		return "error"
	}
}
