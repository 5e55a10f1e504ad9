package rerank

import "github.com/rushteam/hybridrec/core"

// Optimizer 组合多样性重排：
//
//	Pre 策略（作用于完整排序列表） → MMR 选择 TopK → Post 策略（只重排已选结果）
//
// 实现了 Seeder 的 Pre 策略给出的头部候选会先进入结果，MMR 只填充剩余名额。
// MMR 为 nil 时，Pre 策略之后直接截断到 TopK（即"代替 MMR"的用法）。
// 输出长度 ≤ topK，且不含重复 ID。
type Optimizer struct {
	Pre  []Policy
	MMR  *MMR
	Post []Policy
}

func (o *Optimizer) Name() string { return "rerank.optimizer" }

// Diversify 执行重排。lambda 为本次请求实际使用的 λ（仅 MMR 使用）。
func (o *Optimizer) Diversify(ranked []core.ScoredCandidate, topK int, lambda float64) []core.ScoredCandidate {
	if topK <= 0 || len(ranked) == 0 {
		return []core.ScoredCandidate{}
	}

	cands := make([]core.ScoredCandidate, len(ranked))
	copy(cands, ranked)
	var seed []core.ScoredCandidate
	for _, p := range o.Pre {
		cands = p.Apply(cands)
		if s, ok := p.(Seeder); ok {
			seed = append(seed, s.Seed(cands)...)
		}
	}
	seed = dedupe(seed)

	var selected []core.ScoredCandidate
	if o.MMR != nil {
		selected = o.MMR.SelectSeeded(cands, seed, topK, lambda)
	} else {
		selected = (&TopN{N: topK}).Apply(withSeedFirst(cands, seed))
	}

	for _, p := range o.Post {
		selected = p.Apply(selected)
	}
	return dedupe((&TopN{N: topK}).Apply(selected))
}

// Policies 返回已启用策略名称，用于日志。
func (o *Optimizer) Policies() []string {
	names := make([]string, 0, len(o.Pre)+len(o.Post)+1)
	for _, p := range o.Pre {
		names = append(names, p.Name())
	}
	if o.MMR != nil {
		names = append(names, o.MMR.Name())
	}
	for _, p := range o.Post {
		names = append(names, p.Name())
	}
	return names
}

// withSeedFirst 把 seed 移到最前，其余候选保持原顺序。
func withSeedFirst(cands, seed []core.ScoredCandidate) []core.ScoredCandidate {
	if len(seed) == 0 {
		return cands
	}
	pinned := make(map[string]bool, len(seed))
	out := make([]core.ScoredCandidate, 0, len(cands))
	for _, c := range seed {
		pinned[c.ID] = true
		out = append(out, c)
	}
	for _, c := range cands {
		if !pinned[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func dedupe(cands []core.ScoredCandidate) []core.ScoredCandidate {
	seen := make(map[string]struct{}, len(cands))
	out := make([]core.ScoredCandidate, 0, len(cands))
	for _, c := range cands {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
