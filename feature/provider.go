package feature

import (
	"context"
	"maps"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/logging"
)

// MetadataProvider 批量获取物品元数据（title / genres / release_year / rating / ...）。
// 不存在的物品不出现在返回值中，不视为错误。
type MetadataProvider interface {
	Metadata(ctx context.Context, ids []string) (map[string]map[string]any, error)
}

// MetadataFunc 把函数适配为 MetadataProvider。
type MetadataFunc func(ctx context.Context, ids []string) (map[string]map[string]any, error)

func (f MetadataFunc) Metadata(ctx context.Context, ids []string) (map[string]map[string]any, error) {
	return f(ctx, ids)
}

// MapProvider 是内存中的元数据表，用于测试与 CLI 的静态目录。
type MapProvider map[string]map[string]any

func (m MapProvider) Metadata(_ context.Context, ids []string) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		if meta, ok := m[id]; ok {
			out[id] = maps.Clone(meta)
		}
	}
	return out, nil
}

// Attach 为候选补齐元数据（已有的 key 不覆盖），返回新的候选切片。
// 调用方应已处理 provider 错误；meta 为 nil 时原样返回。
func Attach(cands []*core.Candidate, meta map[string]map[string]any) []*core.Candidate {
	if len(meta) == 0 {
		return cands
	}
	out := make([]*core.Candidate, 0, len(cands))
	for _, c := range cands {
		m, ok := meta[c.ID]
		if !ok {
			out = append(out, c)
			continue
		}
		cp := c.Clone()
		for k, v := range m {
			if _, exists := cp.Meta[k]; !exists {
				cp.Meta[k] = v
			}
		}
		out = append(out, cp)
	}
	return out
}

// IDs 提取候选 ID 列表。
func IDs(cands []*core.Candidate) []string {
	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		if c != nil {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Enricher 在召回之后为候选补齐元数据，并把 sentiment_score 提升为 sentiment 组件分。
// 元数据获取失败时记录日志，候选保持不变。
type Enricher struct {
	provider MetadataProvider
	logger   zerolog.Logger
}

func NewEnricher(provider MetadataProvider, logger zerolog.Logger) *Enricher {
	return &Enricher{
		provider: provider,
		logger:   logging.WithComponent(logger, "feature.enricher"),
	}
}

// Enrich 返回补齐后的新切片；原切片中的候选不会被修改。
func (e *Enricher) Enrich(ctx context.Context, cands []*core.Candidate) []*core.Candidate {
	if e == nil || len(cands) == 0 {
		return cands
	}

	out := cands
	if e.provider != nil {
		meta, err := e.provider.Metadata(ctx, IDs(cands))
		if err != nil {
			e.logger.Warn().Err(err).Int("candidates", len(cands)).Msg("metadata enrichment failed")
		} else {
			out = Attach(cands, meta)
		}
	}
	return LiftSentiment(out)
}

// LiftSentiment 对尚无 sentiment 组件分的候选，用元数据中的 sentiment_score 补齐。
func LiftSentiment(cands []*core.Candidate) []*core.Candidate {
	out := make([]*core.Candidate, len(cands))
	for i, c := range cands {
		out[i] = c
		if _, ok := c.Scores[core.ComponentSentiment]; ok {
			continue
		}
		s, ok := core.MetaFloat(c.Meta, core.MetaSentiment)
		if !ok {
			continue
		}
		cp := c.Clone()
		cp.SetScore(core.ComponentSentiment, s)
		out[i] = cp
	}
	return out
}
