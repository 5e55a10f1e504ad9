package recall

import (
	"context"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/feature"
)

// DefaultTrendingKey 是热门榜有序集合的默认 key。
const DefaultTrendingKey = "trending:items"

// TrendingSource 是热门召回源：从 KeyValueStore 的有序集合读取热门榜，
// 分数 = 成员分 / 榜首分。与用户无关。
type TrendingSource struct {
	Store core.KeyValueStore

	// Key 有序集合 key，例如 "trending:items" 或 "trending:weekly"
	Key string

	// Metadata 用于请求过滤的物品元数据（可选）
	Metadata feature.MetadataProvider

	// Depth 读取榜单的深度；过滤会减少结果，所以默认读取 4k 个
	Depth int
}

func (r *TrendingSource) Name() string      { return "recall.trending" }
func (r *TrendingSource) Component() string { return core.ComponentPopularity }

func (r *TrendingSource) Fetch(ctx context.Context, _ string, k int, filters map[string]any) ([]*core.Candidate, error) {
	if r.Store == nil {
		return nil, core.WrapDomainError(core.ErrModelNotReady, "trending store is not configured")
	}
	if k <= 0 {
		return []*core.Candidate{}, nil
	}

	key := r.Key
	if key == "" {
		key = DefaultTrendingKey
	}
	depth := r.Depth
	if depth <= 0 {
		depth = 4 * k
	}

	members, err := r.Store.ZRevRangeWithScores(ctx, key, 0, int64(depth-1))
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []*core.Candidate{}, nil
	}

	top := members[0].Score
	cands := make([]*core.Candidate, 0, len(members))
	for _, m := range members {
		score := 0.0
		if top > 0 {
			score = m.Score / top
		}
		cands = append(cands, newCandidate(m.Member, r.Name(), r.Component(), score))
	}
	return refine(ctx, r.Metadata, cands, filters, k)
}

var _ Source = (*TrendingSource)(nil)
