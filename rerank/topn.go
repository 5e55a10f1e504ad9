package rerank

import "github.com/rushteam/hybridrec/core"

// TopN 是 Top-N 截断策略，用于在重排后截取前 N 个物品。
//
// 使用场景：
//   - MMR 关闭时，辅助策略之后截取 TopK
//   - 控制推荐结果数量
type TopN struct {
	// N 要保留的物品数量（Top N）
	// 如果 N <= 0，则返回所有物品（不截断）
	N int
}

func (n *TopN) Name() string { return "rerank.topn" }

func (n *TopN) Apply(cands []core.ScoredCandidate) []core.ScoredCandidate {
	if n.N <= 0 || len(cands) <= n.N {
		return cands
	}
	return cands[:n.N]
}
