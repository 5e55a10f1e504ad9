package explain

import (
	"math"

	"github.com/rushteam/hybridrec/core"
)

// NeutralConfidence 是没有任何非零组件分时的置信度。
const NeutralConfidence = 0.5

// Confidence 根据组件分的一致性估计置信度：各信号越一致，置信度越高。
//
//	CV = σ / μ（只统计非零组件，σ 为总体标准差）
//	confidence = 1 / (1 + CV)
//
// 没有非零组件时返回 0.5。结果截断到 [0,1]。
func Confidence(components map[string]float64) float64 {
	values := make([]float64, 0, len(components))
	for _, v := range components {
		if v != 0 && !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return NeutralConfidence
	}

	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if mean <= 0 {
		return NeutralConfidence
	}

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(values)))

	cv := std / mean
	return core.ClampUnit(1 / (1 + cv))
}
