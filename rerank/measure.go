package rerank

import (
	"math"

	"github.com/rushteam/hybridrec/core"
)

// Metrics 是推荐列表的多样性指标。
type Metrics struct {
	GenreEntropy     float64 `json:"genre_diversity"`   // 类别分布的香农熵（log2）
	TemporalSpread   float64 `json:"temporal_spread"`   // 上映年份标准差
	RatingVariance   float64 `json:"rating_variance"`   // 评分方差
	AvgDissimilarity float64 `json:"avg_dissimilarity"` // 两两 1-相似度 的均值
}

// Measure 计算多样性指标。年份、评分缺失时分别按 2000、5.0 计。
func Measure(cands []core.ScoredCandidate) Metrics {
	if len(cands) == 0 {
		return Metrics{}
	}

	genreCounts := make(map[string]int)
	total := 0
	years := make([]float64, len(cands))
	ratings := make([]float64, len(cands))
	vecs := make([][]float64, len(cands))

	for i, c := range cands {
		for _, g := range core.MetaStrings(c.Meta, core.MetaGenres) {
			genreCounts[g]++
			total++
		}
		y, ok := core.MetaFloat(c.Meta, core.MetaReleaseYear)
		if !ok {
			y = DefaultYear
		}
		r, ok := core.MetaFloat(c.Meta, core.MetaRating)
		if !ok {
			r = DefaultRating
		}
		years[i], ratings[i] = y, r
		vecs[i] = FeatureVector(c.Meta)
	}

	var m Metrics
	for _, n := range genreCounts {
		p := float64(n) / float64(total)
		m.GenreEntropy -= p * math.Log2(p)
	}
	m.TemporalSpread = math.Sqrt(variance(years))
	m.RatingVariance = variance(ratings)

	var sum float64
	pairs := 0
	for i := 0; i < len(vecs); i++ {
		for j := i + 1; j < len(vecs); j++ {
			sum += 1 - Cosine(vecs[i], vecs[j])
			pairs++
		}
	}
	if pairs > 0 {
		m.AvgDissimilarity = sum / float64(pairs)
	}
	return m
}

// variance 计算总体方差
func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var v float64
	for _, x := range xs {
		v += (x - mean) * (x - mean)
	}
	return v / float64(len(xs))
}
