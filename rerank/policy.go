package rerank

import "github.com/rushteam/hybridrec/core"

// Policy 是辅助多样性策略：输入已排序候选，输出重排后的候选。
// 实现不得复制候选；除非显式截断，输出与输入是同一个多重集合。
type Policy interface {
	Name() string
	Apply(cands []core.ScoredCandidate) []core.ScoredCandidate
}

// PolicyFunc 把函数适配为 Policy。
type PolicyFunc struct {
	PolicyName string
	Fn         func(cands []core.ScoredCandidate) []core.ScoredCandidate
}

func (p *PolicyFunc) Name() string { return p.PolicyName }

func (p *PolicyFunc) Apply(cands []core.ScoredCandidate) []core.ScoredCandidate {
	return p.Fn(cands)
}

// Seeder 由需要约束 MMR 的预处理策略实现：返回必须排在结果最前面的候选（按顺序）。
// Optimizer 先放入这些候选，再由 MMR 选择剩余名额。
type Seeder interface {
	Seed(cands []core.ScoredCandidate) []core.ScoredCandidate
}
