package filter

import (
	"fmt"
	"strings"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/dsl"
)

// GenreFilter 保留至少命中一个指定类别的候选（大小写不敏感）。没有类别信息的候选会被过滤。
type GenreFilter struct {
	Genres []string
}

func (f *GenreFilter) Name() string { return "filter.genre" }

func (f *GenreFilter) ShouldFilter(c *core.Candidate) (bool, error) {
	genres := core.MetaStrings(c.Meta, core.MetaGenres)
	for _, g := range genres {
		for _, want := range f.Genres {
			if strings.EqualFold(g, want) {
				return false, nil
			}
		}
	}
	return true, nil
}

// RangeFilter 按数值型元数据做区间过滤（闭区间）。字段缺失时过滤。
type RangeFilter struct {
	Field string
	Min   *float64
	Max   *float64
}

func (f *RangeFilter) Name() string { return "filter.range." + f.Field }

func (f *RangeFilter) ShouldFilter(c *core.Candidate) (bool, error) {
	v, ok := core.MetaFloat(c.Meta, f.Field)
	if !ok {
		return true, nil
	}
	if f.Min != nil && v < *f.Min {
		return true, nil
	}
	if f.Max != nil && v > *f.Max {
		return true, nil
	}
	return false, nil
}

// ExprFilter 使用 CEL 表达式过滤：表达式为 true 时保留。
type ExprFilter struct {
	Program *dsl.Program
	ReqCtx  map[string]any
}

func (f *ExprFilter) Name() string { return "filter.expr" }

func (f *ExprFilter) ShouldFilter(c *core.Candidate) (bool, error) {
	if f.Program == nil {
		return false, fmt.Errorf("expr filter: program is nil")
	}
	keep, err := f.Program.Eval(c, f.ReqCtx)
	if err != nil {
		return true, err
	}
	return !keep, nil
}
