package recall

import (
	"context"
	"math"
	"sort"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/feature"
)

// CFStore 是协同过滤的存储接口，用于获取用户-物品交互数据。
type CFStore interface {
	// GetUserItems 获取用户交互过的物品及其评分/权重
	// 返回 map[itemID]score，score 可以是评分、点击次数、时长等
	GetUserItems(ctx context.Context, userID string) (map[string]float64, error)

	// GetAllUsers 获取所有用户 ID 列表（用于用户协同过滤）
	GetAllUsers(ctx context.Context) ([]string, error)
}

// CollaborativeSource 是基于用户的协同过滤召回源（User-based Collaborative Filtering, User-CF）。
//
// 核心思想："兴趣相似的用户，喜欢相似的物品"
//
// 算法流程：
//  1. 用户 → 行为向量（评分/观看）
//  2. 计算用户相似度（Cosine / Pearson）
//  3. 找 TopK 相似用户
//  4. 推荐这些用户喜欢但目标用户未见过的物品，按 Σ(相似度 × 评分) 打分
//  5. 按最高分归一化到 [0,1]
//
// 没有交互历史的用户返回空结果（冷启动由其他召回源兜底）。
type CollaborativeSource struct {
	Store CFStore

	// Metadata 用于请求过滤的物品元数据（可选）
	Metadata feature.MetadataProvider

	// TopKSimilarUsers 计算相似度时考虑的 TopK 个相似用户，默认 50
	TopKSimilarUsers int

	// SimilarityMetric 相似度度量方式：cosine / pearson，默认 cosine
	SimilarityMetric string

	// MinCommonItems 两个用户至少需要有多少个共同交互物品才计算相似度，默认 2
	MinCommonItems int
}

func (r *CollaborativeSource) Name() string      { return "recall.collaborative" }
func (r *CollaborativeSource) Component() string { return core.ComponentCollaborative }

func (r *CollaborativeSource) Fetch(ctx context.Context, userID string, k int, filters map[string]any) ([]*core.Candidate, error) {
	if r.Store == nil {
		return nil, core.WrapDomainError(core.ErrModelNotReady, "collaborative store is not configured")
	}
	if userID == "" || k <= 0 {
		return []*core.Candidate{}, nil
	}

	targetItems, err := r.Store.GetUserItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(targetItems) == 0 {
		return []*core.Candidate{}, nil
	}

	allUsers, err := r.Store.GetAllUsers(ctx)
	if err != nil {
		return nil, err
	}

	topKSimilar := r.TopKSimilarUsers
	if topKSimilar <= 0 {
		topKSimilar = 50
	}
	minCommon := r.MinCommonItems
	if minCommon <= 0 {
		minCommon = 2
	}
	metric := r.SimilarityMetric
	if metric == "" {
		metric = "cosine"
	}

	type neighbour struct {
		userID     string
		similarity float64
		items      map[string]float64
	}
	neighbours := make([]neighbour, 0)

	for _, other := range allUsers {
		if other == userID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		otherItems, err := r.Store.GetUserItems(ctx, other)
		if err != nil || len(otherItems) == 0 {
			continue
		}

		targetScores := make([]float64, 0)
		otherScores := make([]float64, 0)
		for itemID, ts := range targetItems {
			if os, ok := otherItems[itemID]; ok {
				targetScores = append(targetScores, ts)
				otherScores = append(otherScores, os)
			}
		}
		if len(targetScores) < minCommon {
			continue
		}

		var sim float64
		switch metric {
		case "pearson":
			sim = pearsonCorrelation(targetScores, otherScores)
		default:
			sim = cosineSimilarity(targetScores, otherScores)
		}
		if sim > 0 { // 只保留正相似度
			neighbours = append(neighbours, neighbour{userID: other, similarity: sim, items: otherItems})
		}
	}

	sort.Slice(neighbours, func(i, j int) bool {
		if neighbours[i].similarity != neighbours[j].similarity {
			return neighbours[i].similarity > neighbours[j].similarity
		}
		return neighbours[i].userID < neighbours[j].userID
	})
	if len(neighbours) > topKSimilar {
		neighbours = neighbours[:topKSimilar]
	}

	// score[itemID] = Σ(similarity * userScore)
	itemScores := make(map[string]float64)
	for _, n := range neighbours {
		for itemID, score := range n.items {
			if _, seen := targetItems[itemID]; seen {
				continue
			}
			itemScores[itemID] += n.similarity * score
		}
	}

	ranked := rankNormalized(itemScores)
	cands := make([]*core.Candidate, 0, len(ranked))
	for _, s := range ranked {
		cands = append(cands, newCandidate(s.id, r.Name(), r.Component(), s.score))
	}
	return refine(ctx, r.Metadata, cands, filters, k)
}

// rankNormalized 按分数降序（同分按 ID 升序）排序，并按最高分归一化到 [0,1]。
// 非正分数的物品被丢弃。
func rankNormalized(scores map[string]float64) []scored {
	out := make([]scored, 0, len(scores))
	maxScore := 0.0
	for id, s := range scores {
		if s <= 0 || math.IsNaN(s) {
			continue
		}
		out = append(out, scored{id: id, score: s})
		if s > maxScore {
			maxScore = s
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].id < out[j].id
	})
	if maxScore > 0 {
		for i := range out {
			out[i].score /= maxScore
		}
	}
	return out
}

// cosineSimilarity 计算两个等长向量的余弦相似度
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// pearsonCorrelation 计算皮尔逊相关系数
func pearsonCorrelation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	n := float64(len(a))
	var sumA, sumB float64
	for i := range a {
		sumA += a[i]
		sumB += b[i]
	}
	meanA, meanB := sumA/n, sumB/n

	var num, denA, denB float64
	for i := range a {
		da, db := a[i]-meanA, b[i]-meanB
		num += da * db
		denA += da * da
		denB += db * db
	}
	if denA == 0 || denB == 0 {
		return 0
	}
	return num / (math.Sqrt(denA) * math.Sqrt(denB))
}
