package rerank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/hybridrec/core"
)

func scored(id string, score float64, meta map[string]any) core.ScoredCandidate {
	return core.ScoredCandidate{ID: id, Score: score, Meta: meta}
}

func idsOf(cs []core.ScoredCandidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

// A 与 B 几乎相同，C 与两者都不相似
func abcSimilarity(a, b core.ScoredCandidate) float64 {
	pair := a.ID + b.ID
	switch pair {
	case "AB", "BA":
		return 0.95
	case "AC", "CA":
		return 0.1
	case "BC", "CB":
		return 0.2
	}
	return 1
}

func abc() []core.ScoredCandidate {
	return []core.ScoredCandidate{
		scored("A", 0.9, nil),
		scored("B", 0.85, nil),
		scored("C", 0.7, nil),
	}
}

func TestMMR_PrefersDissimilarCandidate(t *testing.T) {
	m := &MMR{Lambda: 0.7, Similarity: abcSimilarity}
	got := m.Select(abc(), 2)
	// B: 0.7×0.85 − 0.3×0.95 = 0.31；C: 0.7×0.7 − 0.3×0.1 = 0.46
	assert.Equal(t, []string{"A", "C"}, idsOf(got))
}

func TestMMR_LambdaOneIsRelevanceOrder(t *testing.T) {
	m := &MMR{Similarity: abcSimilarity}
	assert.Equal(t, []string{"A", "B"}, idsOf(m.SelectWithLambda(abc(), 2, 1)))
}

func TestMMR_LambdaZeroIsPureDiversity(t *testing.T) {
	m := &MMR{Similarity: abcSimilarity}
	in := append(abc(), scored("D", 0.6, nil)) // D 与所有候选相似度为 1
	got := m.SelectWithLambda(in, 3, 0)
	// 第一个总是最高分；之后只看与已选集合的最大相似度
	assert.Equal(t, []string{"A", "C", "B"}, idsOf(got))
}

func TestMMR_WorkedExample(t *testing.T) {
	sim := func(a, b core.ScoredCandidate) float64 {
		switch a.ID + b.ID {
		case "AB", "BA":
			return 0.8
		case "AC", "CA":
			return 0.1
		}
		return 0.5
	}
	in := []core.ScoredCandidate{
		scored("A", 0.90, nil),
		scored("B", 0.85, nil),
		scored("C", 0.50, nil),
	}
	assert.InDelta(t, 0.025, MarginalScore(0.5, 0.85, 0.8), 1e-9)
	assert.InDelta(t, 0.200, MarginalScore(0.5, 0.50, 0.1), 1e-9)

	got := (&MMR{Lambda: 0.5, Similarity: sim}).Select(in, 2)
	assert.Equal(t, []string{"A", "C"}, idsOf(got))
}

func TestMMR_SelectSeeded(t *testing.T) {
	m := &MMR{Similarity: abcSimilarity}
	in := append(abc(), scored("D", 0.6, nil))

	got := m.SelectSeeded(in, []core.ScoredCandidate{in[1]}, 2, 0.7)
	// B 先占位；A 与 B 高度相似（0.95），C 胜出
	assert.Equal(t, []string{"B", "C"}, idsOf(got))

	got = m.SelectSeeded(in[:3], []core.ScoredCandidate{in[2]}, 5, 0.7)
	assert.Equal(t, []string{"C", "A", "B"}, idsOf(got))

	seed := []core.ScoredCandidate{in[3], in[2], in[1]}
	assert.Equal(t, []string{"D", "C"}, idsOf(m.SelectSeeded(in, seed, 2, 0.7)), "seed is capped at topK")
}

func TestMMR_FewCandidatesReturnedAsIs(t *testing.T) {
	m := &MMR{Lambda: 0.5, Similarity: abcSimilarity}
	in := abc()
	got := m.Select(in, 5)
	assert.Equal(t, []string{"A", "B", "C"}, idsOf(got))

	got[0].ID = "mutated"
	assert.Equal(t, "A", in[0].ID, "input slice is not shared")

	assert.Empty(t, m.Select(nil, 3))
	assert.Empty(t, m.Select(in, 0))
}

func TestMMR_TieBreaksByRelevanceThenID(t *testing.T) {
	same := func(core.ScoredCandidate, core.ScoredCandidate) float64 { return 0.5 }
	m := &MMR{Lambda: 0.5, Similarity: same}
	in := []core.ScoredCandidate{
		scored("top", 0.9, nil),
		scored("z", 0.4, nil),
		scored("a", 0.4, nil),
		scored("m", 0.6, nil),
	}
	assert.Equal(t, []string{"top", "m", "a"}, idsOf(m.Select(in, 3)))
}

func TestMMR_MetadataSimilarity(t *testing.T) {
	m := &MMR{Lambda: 0.5}
	in := []core.ScoredCandidate{
		scored("heat", 0.9, map[string]any{"genres": []string{"Crime", "Thriller"}, "release_year": 1995, "rating": 8.3, "popularity": 70}),
		scored("ronin", 0.88, map[string]any{"genres": []string{"Crime", "Thriller"}, "release_year": 1998, "rating": 7.2, "popularity": 60}),
		scored("up", 0.8, map[string]any{"genres": []string{"Animation", "Family"}, "release_year": 2009, "rating": 8.2, "popularity": 80}),
	}
	assert.Equal(t, []string{"heat", "up"}, idsOf(m.Select(in, 2)))
}

func TestFeatureVectorAndCosine(t *testing.T) {
	v := FeatureVector(map[string]any{"genres": []string{"Drama", "Unknown"}, "release_year": 2025, "rating": 10, "popularity": 100})
	require.Len(t, v, len(GenreVocabulary)+3)
	assert.Equal(t, 1.0, v[6], "Drama is the seventh genre")
	assert.Equal(t, []float64{1, 1, 1}, v[len(GenreVocabulary):])

	d := FeatureVector(nil)
	assert.InDelta(t, 0.8, d[len(GenreVocabulary)], 1e-9)
	assert.InDelta(t, 0.5, d[len(GenreVocabulary)+1], 1e-9)

	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, Cosine([]float64{1}, []float64{1, 1}))
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2}, []float64{2, 4}), 1e-9)
}

func TestGenreSpread(t *testing.T) {
	in := []core.ScoredCandidate{
		scored("d1", 0.9, map[string]any{"genres": []string{"Drama"}}),
		scored("d2", 0.8, map[string]any{"genres": []string{"Drama"}}),
		scored("c1", 0.7, map[string]any{"genres": []string{"Comedy"}}),
		scored("n1", 0.6, nil),
		scored("h1", 0.5, map[string]any{"genres": []string{"Horror", "Drama"}}),
	}
	got := (&GenreSpread{MinGenres: 3}).Apply(in)
	assert.Equal(t, []string{"d1", "c1", "h1", "d2", "n1"}, idsOf(got))
	assert.ElementsMatch(t, idsOf(in), idsOf(got))
}

func TestTemporalSpread(t *testing.T) {
	in := []core.ScoredCandidate{
		scored("a90", 0.9, map[string]any{"release_year": 1994}),
		scored("b90", 0.8, map[string]any{"release_year": 1997}),
		scored("c90", 0.7, map[string]any{"release_year": 1999}),
		scored("x", 0.65, nil),
		scored("a10", 0.6, map[string]any{"release_year": 2012}),
	}
	// 4 个有年份、2 个年代，配额 2
	got := (&TemporalSpread{}).Apply(in)
	assert.Equal(t, []string{"a90", "b90", "a10", "c90", "x"}, idsOf(got))
}

func TestPopularityBalance(t *testing.T) {
	in := []core.ScoredCandidate{
		scored("p50", 0.9, map[string]any{"popularity": 50}),
		scored("p90", 0.8, map[string]any{"popularity": 90}),
		scored("p10", 0.7, map[string]any{"popularity": 10}),
		scored("p70", 0.6, map[string]any{"popularity": 70}),
	}
	got := (&PopularityBalance{PopularRatio: 0.5}).Apply(in)
	assert.Equal(t, []string{"p90", "p50", "p70", "p10"}, idsOf(got))
}

func TestOptimizer_Diversify(t *testing.T) {
	ranked := []core.ScoredCandidate{
		scored("A", 0.9, nil),
		scored("B", 0.85, nil),
		scored("C", 0.7, nil),
		scored("A", 0.6, nil),
	}
	o := &Optimizer{MMR: &MMR{Similarity: abcSimilarity}}
	got := o.Diversify(ranked, 2, 0.7)
	assert.Equal(t, []string{"A", "C"}, idsOf(got))

	all := o.Diversify(ranked, 10, 0.7)
	assert.Equal(t, []string{"A", "B", "C"}, idsOf(all), "duplicates removed")

	assert.Empty(t, o.Diversify(ranked, 0, 0.7))
	assert.Equal(t, []string{"rerank.mmr"}, o.Policies())
}

func genreCatalog() []core.ScoredCandidate {
	return []core.ScoredCandidate{
		scored("d1", 0.90, map[string]any{"genres": []string{"Drama"}}),
		scored("d2", 0.89, map[string]any{"genres": []string{"Drama"}}),
		scored("d3", 0.88, map[string]any{"genres": []string{"Drama"}}),
		scored("c1", 0.30, map[string]any{"genres": []string{"Comedy"}}),
		scored("h1", 0.20, map[string]any{"genres": []string{"Horror"}}),
	}
}

func TestOptimizer_GenreSpreadBindsMMR(t *testing.T) {
	unrelated := func(core.ScoredCandidate, core.ScoredCandidate) float64 { return 0 }

	plain := &Optimizer{MMR: &MMR{Similarity: unrelated}}
	assert.Equal(t, []string{"d1", "d2", "d3"}, idsOf(plain.Diversify(genreCatalog(), 3, 0.7)))

	o := &Optimizer{Pre: []Policy{&GenreSpread{MinGenres: 3}}, MMR: &MMR{Similarity: unrelated}}
	got := o.Diversify(genreCatalog(), 3, 0.7)
	assert.Equal(t, []string{"d1", "c1", "h1"}, idsOf(got))
	genres := map[string]bool{}
	for _, c := range got {
		for _, g := range core.MetaStrings(c.Meta, core.MetaGenres) {
			genres[g] = true
		}
	}
	assert.GreaterOrEqual(t, len(genres), 3)

	o = &Optimizer{Pre: []Policy{&GenreSpread{MinGenres: 2}}, MMR: &MMR{Similarity: unrelated}}
	assert.Equal(t, []string{"d1", "c1", "d2"}, idsOf(o.Diversify(genreCatalog(), 3, 0.7)), "MMR fills the remaining slots")
}

func TestOptimizer_TemporalSpreadBindsMMR(t *testing.T) {
	unrelated := func(core.ScoredCandidate, core.ScoredCandidate) float64 { return 0 }
	in := []core.ScoredCandidate{
		scored("a", 0.9, map[string]any{"release_year": 2015}),
		scored("b", 0.8, map[string]any{"release_year": 2016}),
		scored("c", 0.7, map[string]any{"release_year": 2018}),
		scored("old", 0.2, map[string]any{"release_year": 1962}),
	}
	o := &Optimizer{Pre: []Policy{&TemporalSpread{}}, MMR: &MMR{Similarity: unrelated}}
	got := o.Diversify(in, 3, 0.7)
	assert.Equal(t, []string{"a", "old", "b"}, idsOf(got))

	noMMR := &Optimizer{Pre: []Policy{&GenreSpread{MinGenres: 3}, &TemporalSpread{}}}
	assert.Equal(t, []string{"d1", "c1"}, idsOf(noMMR.Diversify(genreCatalog(), 2, 0.7)))
}

func TestOptimizer_WithoutMMRTruncates(t *testing.T) {
	reverse := &PolicyFunc{PolicyName: "reverse", Fn: func(cs []core.ScoredCandidate) []core.ScoredCandidate {
		out := make([]core.ScoredCandidate, 0, len(cs))
		for i := len(cs) - 1; i >= 0; i-- {
			out = append(out, cs[i])
		}
		return out
	}}
	o := &Optimizer{Pre: []Policy{reverse}}
	assert.Equal(t, []string{"C", "B"}, idsOf(o.Diversify(abc(), 2, 0.7)))
}

func TestMeasure(t *testing.T) {
	assert.Equal(t, Metrics{}, Measure(nil))

	m := Measure([]core.ScoredCandidate{
		scored("a", 1, map[string]any{"genres": []string{"Drama"}, "release_year": 1990, "rating": 8}),
		scored("b", 1, map[string]any{"genres": []string{"Comedy"}, "release_year": 2010, "rating": 6}),
	})
	assert.InDelta(t, 1.0, m.GenreEntropy, 1e-9)
	assert.InDelta(t, 10.0, m.TemporalSpread, 1e-9)
	assert.InDelta(t, 1.0, m.RatingVariance, 1e-9)
	assert.Greater(t, m.AvgDissimilarity, 0.0)
	assert.LessOrEqual(t, m.AvgDissimilarity, 1.0)

	same := Measure([]core.ScoredCandidate{
		scored("a", 1, map[string]any{"genres": []string{"Drama"}}),
		scored("b", 1, map[string]any{"genres": []string{"Drama"}}),
	})
	assert.InDelta(t, 0, same.GenreEntropy, 1e-9)
	assert.InDelta(t, 0, same.AvgDissimilarity, 1e-9)
}
