package rerank

import (
	"math"

	"github.com/rushteam/hybridrec/core"
)

// GenreVocabulary 是特征向量使用的封闭类别表，顺序即 one-hot 维度顺序。
var GenreVocabulary = []string{
	"Action", "Adventure", "Animation", "Comedy", "Crime",
	"Documentary", "Drama", "Family", "Fantasy", "History",
	"Horror", "Music", "Mystery", "Romance", "Science Fiction",
	"TV Movie", "Thriller", "War", "Western",
}

// 元数据缺失时使用的默认值
const (
	DefaultYear       = 2000
	DefaultRating     = 5.0
	DefaultPopularity = 50.0
)

var genreIndex = func() map[string]int {
	m := make(map[string]int, len(GenreVocabulary))
	for i, g := range GenreVocabulary {
		m[g] = i
	}
	return m
}()

// FeatureVector 把物品元数据编码为相似度计算使用的向量：
//
//	[genre one-hot ×19, (year-1900)/125, rating/10, popularity/100]
//
// 不在类别表中的类别被忽略。
func FeatureVector(meta map[string]any) []float64 {
	n := len(GenreVocabulary)
	v := make([]float64, n+3)
	for _, g := range core.MetaStrings(meta, core.MetaGenres) {
		if i, ok := genreIndex[g]; ok {
			v[i] = 1
		}
	}

	year, ok := core.MetaFloat(meta, core.MetaReleaseYear)
	if !ok {
		year = DefaultYear
	}
	rating, ok := core.MetaFloat(meta, core.MetaRating)
	if !ok {
		rating = DefaultRating
	}
	pop, ok := core.MetaFloat(meta, core.MetaPopularity)
	if !ok {
		pop = DefaultPopularity
	}

	v[n] = (year - 1900) / 125
	v[n+1] = rating / 10
	v[n+2] = pop / 100
	return v
}

// Cosine 计算余弦相似度，任一向量为零向量时返回 0。
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SimilarityFunc 计算两个候选的相似度，值域应在 [0,1]。
type SimilarityFunc func(a, b core.ScoredCandidate) float64

// MetadataSimilarity 是默认相似度：元数据特征向量的余弦相似度。
// 每次调用都会重新编码向量；批量场景使用 pairwise。
func MetadataSimilarity(a, b core.ScoredCandidate) float64 {
	return Cosine(FeatureVector(a.Meta), FeatureVector(b.Meta))
}

// pairwise 返回按下标访问的相似度函数。未注入 SimilarityFunc 时，
// 特征向量在此一次性计算，供整个选择过程复用。
func pairwise(cands []core.ScoredCandidate, sim SimilarityFunc) func(i, j int) float64 {
	if sim != nil {
		return func(i, j int) float64 { return sim(cands[i], cands[j]) }
	}
	vecs := make([][]float64, len(cands))
	for i := range cands {
		vecs[i] = FeatureVector(cands[i].Meta)
	}
	return func(i, j int) float64 { return Cosine(vecs[i], vecs[j]) }
}
