// Package hybridrec 是一个混合推荐编排流水线。
//
// 设计要点：
// - 多路召回：协同过滤、内容、图嵌入、热门并发扇出，单路失败不影响请求
// - 加权融合：固定组件权重，缺失组件按 0 计
// - 多样性：MMR + 可组合的类别/年代/热度重排策略
// - 可解释：模板或外部生成服务，超时回退到模板
// - 结果缓存：按请求指纹缓存，TTL 过期
package hybridrec

import (
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
)

// 轻量 facade：便于直接 import "hybridrec" 使用核心抽象。
type (
	Orchestrator   = pipeline.Orchestrator
	Request        = core.Request
	Recommendation = core.Recommendation
	Kind           = pipeline.Kind
)

const (
	KindRecall      = pipeline.KindRecall
	KindFilter      = pipeline.KindFilter
	KindRank        = pipeline.KindRank
	KindReRank      = pipeline.KindReRank
	KindPostProcess = pipeline.KindPostProcess
)

// New 是 pipeline.New 的别名。
var New = pipeline.New
