package rerank

import (
	"math"

	"github.com/rushteam/hybridrec/core"
)

// DefaultLambda 是 MMR 的默认相关性/多样性权衡系数。
const DefaultLambda = 0.7

// scoreEpsilon 是 MMR 分数判等的容差。
const scoreEpsilon = 1e-12

// MMR 是最大边际相关（Maximal Marginal Relevance）重排。
//
//	mmr(d) = λ × relevance(d) − (1−λ) × max_{s∈selected} sim(d, s)
//
// λ=1 退化为纯相关性排序，λ=0 只考虑与已选集合的差异。
//
// 选择过程：
//  1. 第一个选分数最高的候选
//  2. 之后每轮在剩余候选中选 mmr 最大者；平局时选相关性更高的，再平局选 ID 更小的
//  3. 直到选满 topK 或候选耗尽
//
// 候选数 ≤ topK 时原样返回，不做重排。
type MMR struct {
	Lambda float64

	// Similarity 可注入的相似度函数，nil 时使用元数据特征向量余弦相似度
	Similarity SimilarityFunc
}

func (m *MMR) Name() string { return "rerank.mmr" }

// Select 从已按分数排序的候选中选出 topK 个。不修改输入切片。
func (m *MMR) Select(cands []core.ScoredCandidate, topK int) []core.ScoredCandidate {
	return m.SelectWithLambda(cands, topK, m.Lambda)
}

// SelectWithLambda 使用请求级 λ 执行选择（λ 截断到 [0,1]）。
func (m *MMR) SelectWithLambda(cands []core.ScoredCandidate, topK int, lambda float64) []core.ScoredCandidate {
	return m.SelectSeeded(cands, nil, topK, lambda)
}

// SelectSeeded 先按顺序放入 seed（来自 cands，超出 topK 的部分丢弃），
// 再以 seed 作为已选集合用 MMR 选择剩余名额。seed 为空时等同 SelectWithLambda。
// 候选数 ≤ topK 时返回 seed + 其余候选（保持输入顺序）。
func (m *MMR) SelectSeeded(cands, seed []core.ScoredCandidate, topK int, lambda float64) []core.ScoredCandidate {
	n := len(cands)
	if n == 0 || topK <= 0 {
		return []core.ScoredCandidate{}
	}

	pinned := make(map[string]bool, len(seed))
	selected := make([]core.ScoredCandidate, 0, min(n, topK))
	for _, c := range seed {
		if len(selected) < topK && !pinned[c.ID] {
			pinned[c.ID] = true
			selected = append(selected, c)
		}
	}
	if n <= topK {
		for _, c := range cands {
			if !pinned[c.ID] {
				selected = append(selected, c)
			}
		}
		return selected
	}

	lambda = core.ClampUnit(lambda)
	sim := pairwise(cands, m.Similarity)

	// maxSim[i] 是候选 i 与已选集合的最大相似度，每选一个只需与新选中的比较
	maxSim := make([]float64, n)
	remaining := make([]bool, n)
	var chosen []int
	for i, c := range cands {
		if pinned[c.ID] {
			chosen = append(chosen, i)
		} else {
			remaining[i] = true
		}
	}
	if len(chosen) == 0 {
		first := 0
		for i := 1; i < n; i++ {
			if better(cands[i], cands[first]) {
				first = i
			}
		}
		remaining[first] = false
		chosen = append(chosen, first)
		selected = append(selected, cands[first])
	}
	observe := func(j int) {
		for i := 0; i < n; i++ {
			if !remaining[i] {
				continue
			}
			if s := sim(i, j); s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}
	for _, j := range chosen {
		observe(j)
	}

	for len(selected) < topK {
		best := -1
		bestScore := math.Inf(-1)
		for i := 0; i < n; i++ {
			if !remaining[i] {
				continue
			}
			score := MarginalScore(lambda, cands[i].Score, maxSim[i])
			switch {
			case best < 0 || score > bestScore+scoreEpsilon:
				best, bestScore = i, score
			case math.Abs(score-bestScore) <= scoreEpsilon && better(cands[i], cands[best]):
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		remaining[best] = false
		selected = append(selected, cands[best])
		observe(best)
	}
	return selected
}

// MarginalScore 计算 λ × relevance − (1−λ) × maxSim。
func MarginalScore(lambda, relevance, maxSim float64) float64 {
	return lambda*relevance - (1-lambda)*maxSim
}

// better 判断 a 是否应排在 b 前：相关性更高，或相关性相同且 ID 更小。
func better(a, b core.ScoredCandidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}
