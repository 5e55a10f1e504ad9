package recall

import (
	"context"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/feature"
	"github.com/rushteam/hybridrec/filter"
	"github.com/rushteam/hybridrec/pkg/utils"
)

// Source 表示一个可复用的候选召回源（协同过滤/内容/图/热门/...）。
// 你可以把它理解为“可并发 fan-out 的策略单元”。
//
// Fetch 返回至多 k 个满足 filters 的候选，按源内相关度降序；
// 没有结果时返回空切片和 nil。每个候选只携带本源的组件分（Component()）。
type Source interface {
	Name() string
	Component() string
	Fetch(ctx context.Context, userID string, k int, filters map[string]any) ([]*core.Candidate, error)
}

// SourceFunc 把函数适配为 Source，主要用于测试和简单的规则召回。
type SourceFunc struct {
	SourceName string
	Comp       string
	Fn         func(ctx context.Context, userID string, k int, filters map[string]any) ([]*core.Candidate, error)
}

func (s *SourceFunc) Name() string      { return s.SourceName }
func (s *SourceFunc) Component() string { return s.Comp }

func (s *SourceFunc) Fetch(ctx context.Context, userID string, k int, filters map[string]any) ([]*core.Candidate, error) {
	return s.Fn(ctx, userID, k, filters)
}

// scored 是源内部排序使用的中间结构。
type scored struct {
	id    string
	score float64
}

// refine 是所有内置召回源共用的收尾步骤：
//  1. 从 MetadataProvider 补齐元数据（配置了的话）
//  2. 按请求 filters 预过滤（保持顺序，expr 除外）
//  3. 截断到 k
//
// 存在过滤条件时元数据获取失败视为本源失败；无过滤条件时忽略元数据错误。
func refine(
	ctx context.Context,
	meta feature.MetadataProvider,
	cands []*core.Candidate,
	filters map[string]any,
	k int,
) ([]*core.Candidate, error) {
	matcher, err := filter.Prefilter(filters)
	if err != nil {
		return nil, err
	}

	if meta != nil && len(cands) > 0 {
		m, err := meta.Metadata(ctx, feature.IDs(cands))
		switch {
		case err != nil && !matcher.Empty():
			return nil, err
		case err == nil:
			cands = feature.Attach(cands, m)
		}
	}

	cands = matcher.Apply(cands)
	if k >= 0 && len(cands) > k {
		cands = cands[:k]
	}
	if cands == nil {
		cands = []*core.Candidate{}
	}
	return cands, nil
}

// newCandidate 构造带来源 label 的候选。
func newCandidate(id, source, component string, score float64) *core.Candidate {
	c := core.NewCandidate(id)
	c.SetScore(component, score)
	c.PutLabel(utils.LabelRecallSource, utils.Label{Value: source, Source: "recall"})
	return c
}
