package rerank

import (
	"sort"

	"github.com/rushteam/hybridrec/core"
)

// GenreSpread 保证在出现重复类别之前，先出现至少 MinGenres 个不同类别。
//
// 每一轮从剩余候选中（保持原顺序）取第一个能带来新类别的候选，
// 直到覆盖 MinGenres 个类别或没有候选能带来新类别；其余候选按原顺序追加。
// 只重排不丢弃。
type GenreSpread struct {
	MinGenres int // 默认 3
}

func (p *GenreSpread) Name() string { return "rerank.genre_spread" }

func (p *GenreSpread) Apply(cands []core.ScoredCandidate) []core.ScoredCandidate {
	if len(cands) <= 1 {
		return cands
	}
	picks := p.head(cands)
	used := make([]bool, len(cands))
	out := make([]core.ScoredCandidate, 0, len(cands))
	for _, i := range picks {
		used[i] = true
		out = append(out, cands[i])
	}
	for i, c := range cands {
		if !used[i] {
			out = append(out, c)
		}
	}
	return out
}

// Seed 返回覆盖 MinGenres 个类别的头部候选。
func (p *GenreSpread) Seed(cands []core.ScoredCandidate) []core.ScoredCandidate {
	picks := p.head(cands)
	out := make([]core.ScoredCandidate, 0, len(picks))
	for _, i := range picks {
		out = append(out, cands[i])
	}
	return out
}

// head 每轮取第一个能带来新类别的候选下标，直到覆盖 MinGenres 个类别。
func (p *GenreSpread) head(cands []core.ScoredCandidate) []int {
	minGenres := p.MinGenres
	if minGenres <= 0 {
		minGenres = 3
	}
	used := make([]bool, len(cands))
	covered := make(map[string]bool, minGenres)
	var picks []int
	for len(covered) < minGenres {
		pick := -1
		for i, c := range cands {
			if !used[i] && addsGenre(c, covered) {
				pick = i
				break
			}
		}
		if pick < 0 {
			break
		}
		used[pick] = true
		for _, g := range core.MetaStrings(cands[pick].Meta, core.MetaGenres) {
			covered[g] = true
		}
		picks = append(picks, pick)
	}
	return picks
}

func addsGenre(c core.ScoredCandidate, covered map[string]bool) bool {
	for _, g := range core.MetaStrings(c.Meta, core.MetaGenres) {
		if !covered[g] {
			return true
		}
	}
	return false
}

// TemporalSpread 按年代（decade）分桶，按比例从各桶采样，避免单一年代主导结果。
//
// 每个年代的配额为 有年份候选数 / 年代数；配额内的候选按原顺序排在前面，
// 超出配额的候选随后按原顺序排列，没有年份的候选放在最后。只重排不丢弃。
type TemporalSpread struct{}

func (p *TemporalSpread) Name() string { return "rerank.temporal_spread" }

func (p *TemporalSpread) Apply(cands []core.ScoredCandidate) []core.ScoredCandidate {
	if len(cands) <= 1 {
		return cands
	}

	decadeOf := make([]int, len(cands))
	hasYear := make([]bool, len(cands))
	buckets := make(map[int]int)
	withYear := 0
	for i, c := range cands {
		y, ok := core.MetaFloat(c.Meta, core.MetaReleaseYear)
		if !ok {
			continue
		}
		d := (int(y) / 10) * 10
		decadeOf[i], hasYear[i] = d, true
		buckets[d]++
		withYear++
	}
	if len(buckets) == 0 {
		return cands
	}

	quota := withYear / len(buckets)
	if quota < 1 {
		quota = 1
	}

	taken := make(map[int]int, len(buckets))
	head := make([]core.ScoredCandidate, 0, len(cands))
	var overflow, undated []core.ScoredCandidate
	for i, c := range cands {
		switch {
		case !hasYear[i]:
			undated = append(undated, c)
		case taken[decadeOf[i]] < quota:
			taken[decadeOf[i]]++
			head = append(head, c)
		default:
			overflow = append(overflow, c)
		}
	}
	head = append(head, overflow...)
	return append(head, undated...)
}

// Seed 返回每个年代排在最前的一个候选（按出现顺序），保证各年代至少有一个代表进入结果。
func (p *TemporalSpread) Seed(cands []core.ScoredCandidate) []core.ScoredCandidate {
	seen := make(map[int]bool)
	var out []core.ScoredCandidate
	for _, c := range cands {
		y, ok := core.MetaFloat(c.Meta, core.MetaReleaseYear)
		if !ok {
			continue
		}
		d := (int(y) / 10) * 10
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, c)
	}
	return out
}

// PopularityBalance 把候选按元数据 popularity 分为热门（前 PopularRatio）和长尾两组，交错输出。
// 组内按热度降序，热度相同保持原顺序。只重排不丢弃。
type PopularityBalance struct {
	PopularRatio float64 // 默认 0.6
}

func (p *PopularityBalance) Name() string { return "rerank.popularity_balance" }

func (p *PopularityBalance) Apply(cands []core.ScoredCandidate) []core.ScoredCandidate {
	if len(cands) <= 1 {
		return cands
	}
	ratio := p.PopularRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.6
	}

	sorted := make([]core.ScoredCandidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, _ := core.MetaFloat(sorted[i].Meta, core.MetaPopularity)
		pj, _ := core.MetaFloat(sorted[j].Meta, core.MetaPopularity)
		return pi > pj
	})

	numPopular := int(float64(len(sorted)) * ratio)
	popular, niche := sorted[:numPopular], sorted[numPopular:]

	out := make([]core.ScoredCandidate, 0, len(sorted))
	for i := 0; i < len(popular) || i < len(niche); i++ {
		if i < len(popular) {
			out = append(out, popular[i])
		}
		if i < len(niche) {
			out = append(out, niche[i])
		}
	}
	return out
}
