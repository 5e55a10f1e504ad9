package core

import (
	"fmt"
	"math"
)

// WeightSumTolerance 是权重和与 1.0 之间允许的偏差。
const WeightSumTolerance = 0.01

// normalizeEpsilon 以内的偏差视为浮点误差，不做归一。
const normalizeEpsilon = 1e-9

// Weights 是融合权重：固定的命名字段，构造时校验，之后只读。
// 不使用 map，避免配置里出现拼写错误的 key 被静默忽略。
type Weights struct {
	collaborative float64
	content       float64
	graph         float64
	sentiment     float64
	popularity    float64
	context       float64
}

// WeightsConfig 是 Weights 的可序列化形式（配置文件 / 环境变量）。
type WeightsConfig struct {
	Collaborative float64 `yaml:"collaborative" json:"collaborative" koanf:"collaborative"`
	Content       float64 `yaml:"content" json:"content" koanf:"content"`
	Graph         float64 `yaml:"graph" json:"graph" koanf:"graph"`
	Sentiment     float64 `yaml:"sentiment" json:"sentiment" koanf:"sentiment"`
	Popularity    float64 `yaml:"popularity" json:"popularity" koanf:"popularity"`
	Context       float64 `yaml:"context" json:"context" koanf:"context"`
}

// DefaultWeightsConfig 返回默认权重：0.35/0.25/0.20/0.10/0.05/0.05。
func DefaultWeightsConfig() WeightsConfig {
	return WeightsConfig{
		Collaborative: 0.35,
		Content:       0.25,
		Graph:         0.20,
		Sentiment:     0.10,
		Popularity:    0.05,
		Context:       0.05,
	}
}

// NewWeights 校验并构造权重：不允许负数、NaN，且总和需在 1±WeightSumTolerance 内。
// 通过校验的权重会归一到总和为 1。
func NewWeights(cfg WeightsConfig) (Weights, error) {
	values := map[string]float64{
		ComponentCollaborative: cfg.Collaborative,
		ComponentContent:       cfg.Content,
		ComponentGraph:         cfg.Graph,
		ComponentSentiment:     cfg.Sentiment,
		ComponentPopularity:    cfg.Popularity,
		ComponentContext:       cfg.Context,
	}
	var sum float64
	for _, name := range componentOrder {
		v := values[name]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Weights{}, fmt.Errorf("weight %s must be a non-negative number, got %v", name, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > WeightSumTolerance {
		return Weights{}, fmt.Errorf("weights must sum to 1.0 (±%.2f), got %.4f", WeightSumTolerance, sum)
	}
	// 容差内的偏差按比例归一，保证融合分 = Σ wᵢcᵢ 不会因截断而失真
	scale := 1.0
	if math.Abs(sum-1) > normalizeEpsilon {
		scale = 1 / sum
	}
	return Weights{
		collaborative: cfg.Collaborative * scale,
		content:       cfg.Content * scale,
		graph:         cfg.Graph * scale,
		sentiment:     cfg.Sentiment * scale,
		popularity:    cfg.Popularity * scale,
		context:       cfg.Context * scale,
	}, nil
}

// MustWeights 用于测试和静态默认值，校验失败直接 panic。
func MustWeights(cfg WeightsConfig) Weights {
	w, err := NewWeights(cfg)
	if err != nil {
		panic(err)
	}
	return w
}

// Of 返回某个组件的权重，未知组件为 0。
func (w Weights) Of(component string) float64 {
	switch component {
	case ComponentCollaborative:
		return w.collaborative
	case ComponentContent:
		return w.content
	case ComponentGraph:
		return w.graph
	case ComponentSentiment:
		return w.sentiment
	case ComponentPopularity:
		return w.popularity
	case ComponentContext:
		return w.context
	default:
		return 0
	}
}

// Config 导出为可序列化形式（归一后的值）。
func (w Weights) Config() WeightsConfig {
	return WeightsConfig{
		Collaborative: w.collaborative,
		Content:       w.content,
		Graph:         w.graph,
		Sentiment:     w.sentiment,
		Popularity:    w.popularity,
		Context:       w.context,
	}
}
