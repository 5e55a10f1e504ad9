package explain

import (
	"context"
	"sort"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/feature"
)

// HistoryProvider 返回用户近期喜爱的物品标题，按偏好降序，最多 limit 条。
type HistoryProvider interface {
	LikedTitles(ctx context.Context, userID string, limit int) ([]string, error)
}

// HistoryFunc 把函数适配为 HistoryProvider。
type HistoryFunc func(ctx context.Context, userID string, limit int) ([]string, error)

func (f HistoryFunc) LikedTitles(ctx context.Context, userID string, limit int) ([]string, error) {
	return f(ctx, userID, limit)
}

// UserItemsReader 读取用户交互过的物品及评分，recall.CFStore 满足该接口。
type UserItemsReader interface {
	GetUserItems(ctx context.Context, userID string) (map[string]float64, error)
}

// RatingsHistory 从评分数据推导喜爱列表：评分 ≥ MinScore 的物品按评分降序（同分按 ID），
// 标题取自元数据，缺失时跳过。
type RatingsHistory struct {
	Ratings  UserItemsReader
	Metadata feature.MetadataProvider
	MinScore float64
}

func (h *RatingsHistory) LikedTitles(ctx context.Context, userID string, limit int) ([]string, error) {
	items, err := h.Ratings.GetUserItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	type rated struct {
		id    string
		score float64
	}
	liked := make([]rated, 0, len(items))
	for id, s := range items {
		if s >= h.MinScore {
			liked = append(liked, rated{id: id, score: s})
		}
	}
	sort.Slice(liked, func(i, j int) bool {
		if liked[i].score != liked[j].score {
			return liked[i].score > liked[j].score
		}
		return liked[i].id < liked[j].id
	})

	ids := make([]string, 0, len(liked))
	for _, r := range liked {
		ids = append(ids, r.id)
	}
	if h.Metadata == nil || len(ids) == 0 {
		return nil, nil
	}
	meta, err := h.Metadata.Metadata(ctx, ids)
	if err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(ids))
	for _, id := range ids {
		if limit > 0 && len(titles) >= limit {
			break
		}
		if t, ok := core.MetaString(meta[id], core.MetaTitle); ok && t != "" {
			titles = append(titles, t)
		}
	}
	return titles, nil
}
