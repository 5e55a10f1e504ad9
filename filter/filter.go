package filter

import (
	"fmt"
	"sort"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/conv"
	"github.com/rushteam/hybridrec/pkg/dsl"
)

// 请求 filters 中识别的 key，其他 key 忽略。
const (
	KeyGenres     = "genres"      // 任一类别命中即保留
	KeyExcludeIDs = "exclude_ids" // 黑名单
	KeyMinYear    = "min_year"
	KeyMaxYear    = "max_year"
	KeyMinRating  = "min_rating"
	KeyExpr       = "expr" // CEL 表达式，返回 true 保留
)

// Filter 是过滤器的抽象接口，用于判断一个候选是否应该被过滤掉。
// 返回 true 表示应该过滤（移除），false 表示保留。
type Filter interface {
	// Name 返回过滤器名称
	Name() string

	// ShouldFilter 判断候选是否应该被过滤
	ShouldFilter(c *core.Candidate) (bool, error)
}

// Matcher 是一组过滤器的组合：任何一个过滤器返回 true，候选就会被移除。
// 由请求 filters 编译而来，单次请求内复用，可被多个召回源并发使用（只读）。
type Matcher struct {
	filters []Filter
	reqCtx  map[string]any
}

// Compile 把请求 filters 编译为 Matcher。未知 key 忽略；expr 编译失败返回错误。
// reqCtx 作为 CEL 表达式中的 ctx 变量。
func Compile(filters map[string]any, reqCtx map[string]any) (*Matcher, error) {
	return compile(filters, reqCtx, true)
}

// Prefilter 编译除 expr 以外的条件，供召回源补齐元数据后预过滤。
// expr 可能引用 ctx，只在流水线的过滤阶段执行。
func Prefilter(filters map[string]any) (*Matcher, error) {
	return compile(filters, nil, false)
}

func compile(filters map[string]any, reqCtx map[string]any, withExpr bool) (*Matcher, error) {
	m := &Matcher{reqCtx: reqCtx}
	if len(filters) == 0 {
		return m, nil
	}

	if ids := conv.ToStringSlice(filters[KeyExcludeIDs]); len(ids) > 0 {
		m.filters = append(m.filters, NewBlacklistFilter(ids))
	}
	if genres := conv.ToStringSlice(filters[KeyGenres]); len(genres) > 0 {
		m.filters = append(m.filters, &GenreFilter{Genres: genres})
	}
	if v, ok := filters[KeyMinYear]; ok {
		y, ok := conv.ToFloat64(v)
		if !ok {
			return nil, fmt.Errorf("filter %s: not a number: %v", KeyMinYear, v)
		}
		m.filters = append(m.filters, &RangeFilter{Field: core.MetaReleaseYear, Min: &y})
	}
	if v, ok := filters[KeyMaxYear]; ok {
		y, ok := conv.ToFloat64(v)
		if !ok {
			return nil, fmt.Errorf("filter %s: not a number: %v", KeyMaxYear, v)
		}
		m.filters = append(m.filters, &RangeFilter{Field: core.MetaReleaseYear, Max: &y})
	}
	if v, ok := filters[KeyMinRating]; ok {
		r, ok := conv.ToFloat64(v)
		if !ok {
			return nil, fmt.Errorf("filter %s: not a number: %v", KeyMinRating, v)
		}
		m.filters = append(m.filters, &RangeFilter{Field: core.MetaRating, Min: &r})
	}
	if v, ok := filters[KeyExpr]; ok && withExpr {
		expr, ok := conv.ToString(v)
		if !ok {
			return nil, fmt.Errorf("filter %s: not a string: %v", KeyExpr, v)
		}
		if expr != "" {
			prg, err := dsl.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("filter %s: %w", KeyExpr, err)
			}
			m.filters = append(m.filters, &ExprFilter{Program: prg, ReqCtx: reqCtx})
		}
	}
	return m, nil
}

// Empty 表示没有任何过滤条件。
func (m *Matcher) Empty() bool {
	return m == nil || len(m.filters) == 0
}

// Names 返回已启用过滤器名称（排序，用于日志）。
func (m *Matcher) Names() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.filters))
	for _, f := range m.filters {
		names = append(names, f.Name())
	}
	sort.Strings(names)
	return names
}

// Keep 判断候选是否保留。过滤器报错视为不保留（表达式无法求值的候选不应出现在结果里）。
func (m *Matcher) Keep(c *core.Candidate) bool {
	if c == nil {
		return false
	}
	if m.Empty() {
		return true
	}
	for _, f := range m.filters {
		drop, err := f.ShouldFilter(c)
		if err != nil || drop {
			return false
		}
	}
	return true
}

// Apply 过滤候选列表，保持原有顺序。
func (m *Matcher) Apply(cands []*core.Candidate) []*core.Candidate {
	if m.Empty() {
		return cands
	}
	out := make([]*core.Candidate, 0, len(cands))
	for _, c := range cands {
		if m.Keep(c) {
			out = append(out, c)
		}
	}
	return out
}
