package core

import (
	"maps"
	"math"
	"slices"
	"sort"

	"github.com/rushteam/hybridrec/pkg/utils"
)

// 组件名称：每个信号在融合、解释、置信度计算中都以此为 key。
const (
	ComponentCollaborative = "collaborative"
	ComponentContent       = "content"
	ComponentGraph         = "graph"
	ComponentSentiment     = "sentiment"
	ComponentPopularity    = "popularity"
	ComponentContext       = "context"
)

// componentOrder 是组件的固定遍历顺序，用于需要确定性的场景（主导因子平局等）。
var componentOrder = []string{
	ComponentCollaborative,
	ComponentContent,
	ComponentGraph,
	ComponentSentiment,
	ComponentPopularity,
	ComponentContext,
}

// Components 返回全部组件名（固定顺序的副本）。
func Components() []string {
	out := make([]string, len(componentOrder))
	copy(out, componentOrder)
	return out
}

// Candidate 是召回阶段产出的候选物品。
// Scores 为各召回源贡献的组件分（均在 [0,1]）；Meta 仅用于多样性与解释，不落库；
// Labels 记录召回来源等可追踪信息，不进入缓存。
type Candidate struct {
	ID     string
	Scores map[string]float64
	Meta   map[string]any
	Labels map[string]utils.Label
}

func NewCandidate(id string) *Candidate {
	return &Candidate{
		ID:     id,
		Scores: make(map[string]float64),
		Meta:   make(map[string]any),
		Labels: make(map[string]utils.Label),
	}
}

// SetScore 写入组件分，超出 [0,1] 的值会被截断，NaN 视为 0。
func (c *Candidate) SetScore(component string, score float64) {
	if c.Scores == nil {
		c.Scores = make(map[string]float64)
	}
	c.Scores[component] = ClampUnit(score)
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (c *Candidate) PutLabel(key string, lbl utils.Label) {
	if c.Labels == nil {
		c.Labels = make(map[string]utils.Label)
	}
	if old, ok := c.Labels[key]; ok {
		c.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	c.Labels[key] = lbl
}

// Clone 返回深拷贝（Meta 只拷贝第一层）。阶段之间通过拷贝传递，避免修改上游产物。
func (c *Candidate) Clone() *Candidate {
	if c == nil {
		return nil
	}
	out := &Candidate{
		ID:     c.ID,
		Scores: make(map[string]float64, len(c.Scores)),
		Meta:   make(map[string]any, len(c.Meta)),
		Labels: make(map[string]utils.Label, len(c.Labels)),
	}
	for k, v := range c.Scores {
		out.Scores[k] = v
	}
	for k, v := range c.Meta {
		out.Meta[k] = v
	}
	for k, v := range c.Labels {
		out.Labels[k] = v
	}
	return out
}

// ScoredCandidate 是融合后的候选：聚合分 + 参与计算的完整组件分。
type ScoredCandidate struct {
	ID         string
	Score      float64
	Components map[string]float64
	Meta       map[string]any
}

// SortScored 按聚合分降序、ID 升序排序（原地）。
func SortScored(items []ScoredCandidate) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
}

// Recommendation 是最终输出，同时也是缓存的序列化结构。生成后不可修改。
type Recommendation struct {
	ItemID      string             `json:"item_id"`
	Score       float64            `json:"score"`
	Components  map[string]float64 `json:"components"`
	Confidence  float64            `json:"confidence"`
	Explanation string             `json:"explanation"`
	Meta        map[string]any     `json:"metadata,omitempty"`
}

// Clone 深拷贝 Components 与 Meta（含 Meta 中的切片值），调用方可以随意修改副本。
func (r Recommendation) Clone() Recommendation {
	r.Components = maps.Clone(r.Components)
	if r.Meta != nil {
		meta := make(map[string]any, len(r.Meta))
		for k, v := range r.Meta {
			switch val := v.(type) {
			case []string:
				meta[k] = slices.Clone(val)
			case []any:
				meta[k] = slices.Clone(val)
			default:
				meta[k] = v
			}
		}
		r.Meta = meta
	}
	return r
}

// CloneRecommendations 逐条 Clone，nil 保持为 nil。
func CloneRecommendations(recs []Recommendation) []Recommendation {
	if recs == nil {
		return nil
	}
	out := make([]Recommendation, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}

// ClampUnit 把分数截断到 [0,1]。
func ClampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
