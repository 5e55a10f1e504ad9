package pipeline

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/metrics"
)

// Kind 用于标记阶段类型，方便观测/治理（例如按阶段打点）。
type Kind string

const (
	KindRecall      Kind = "recall"      // 召回阶段：生成候选集
	KindFilter      Kind = "filter"      // 过滤阶段：剔除不符合约束的候选
	KindRank        Kind = "rank"        // 排序阶段：对候选打分并排序
	KindReRank      Kind = "rerank"      // 重排阶段：在排序结果上做多样性/业务调优
	KindPostProcess Kind = "postprocess" // 后处理阶段：补充特征或最终结果修饰
)

// 阶段名称
const (
	StageGenerate  = "generate"
	StageEnrich    = "enrich"
	StageFilter    = "filter"
	StageRank      = "rank"
	StageDiversify = "diversify"
	StageExplain   = "explain"
)

// stage 记录一次阶段执行的耗时：写入阶段耗时直方图，并输出 debug 日志。
type stage struct {
	name    string
	kind    Kind
	start   time.Time
	logger  *zerolog.Logger
	metrics *metrics.Metrics
}

func startStage(name string, kind Kind, logger *zerolog.Logger, m *metrics.Metrics) *stage {
	return &stage{name: name, kind: kind, start: time.Now(), logger: logger, metrics: m}
}

// done 结束阶段，n 为该阶段输出的条目数。
func (s *stage) done(n int) {
	d := time.Since(s.start)
	s.metrics.ObserveStage(s.name, string(s.kind), d)
	s.logger.Debug().
		Str("stage", s.name).
		Str("kind", string(s.kind)).
		Int("items", n).
		Dur("latency", d).
		Msg("stage finished")
}
