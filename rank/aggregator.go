package rank

import (
	"maps"

	"github.com/rushteam/hybridrec/core"
)

// Aggregator 把候选的组件分按权重融合为单一分数。
//
//	score = Σ weight(component) × component
//
// 缺失的组件按 0 计（偏保守），结果截断到 [0,1]。
// context 组件由 ContextScorer 根据请求场景计算后写入。
type Aggregator struct {
	weights core.Weights
	context ContextScorer
}

func NewAggregator(weights core.Weights) *Aggregator {
	return &Aggregator{weights: weights}
}

// WithContextScorer 替换 context 组件的计算规则。
func (a *Aggregator) WithContextScorer(s ContextScorer) *Aggregator {
	a.context = s
	return a
}

func (a *Aggregator) Name() string { return "rank.weighted" }

func (a *Aggregator) Weights() core.Weights { return a.weights }

// Score 计算单个候选的融合分。Components 是参与计算的完整组件表（含 context），
// 由新 map 承载，不修改候选本身。
func (a *Aggregator) Score(req *core.Request, c *core.Candidate) core.ScoredCandidate {
	components := make(map[string]float64, len(c.Scores)+1)
	for k, v := range c.Scores {
		components[k] = core.ClampUnit(v)
	}
	var reqCtx map[string]any
	if req != nil {
		reqCtx = req.Context
	}
	if s, ok := a.context.Score(reqCtx, c.Meta); ok {
		components[core.ComponentContext] = s
	}

	var total float64
	for _, comp := range core.Components() {
		total += a.weights.Of(comp) * components[comp]
	}

	return core.ScoredCandidate{
		ID:         c.ID,
		Score:      core.ClampUnit(total),
		Components: components,
		Meta:       maps.Clone(c.Meta),
	}
}

// Rank 为所有候选打分，并按分数降序、ID 升序排序。召回来源 Label 不进入 Meta。
func (a *Aggregator) Rank(req *core.Request, cands []*core.Candidate) []core.ScoredCandidate {
	out := make([]core.ScoredCandidate, 0, len(cands))
	for _, c := range cands {
		if c == nil {
			continue
		}
		out = append(out, a.Score(req, c))
	}
	core.SortScored(out)
	return out
}
