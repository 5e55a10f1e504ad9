package rank

import (
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/conv"
)

// 请求 Context 中识别的 key。
const (
	CtxHour      = "hour"       // 0-23
	CtxIsWeekend = "is_weekend" // bool
	CtxMood      = "mood"       // string，与物品 moods 匹配
	CtxDevice    = "device"     // mobile / tv / desktop ...
)

// ContextScorer 根据请求场景（时间、设备、情绪）和物品元数据计算 context 组件分。
//
// 规则：
//   - 基础分 0.5
//   - 提供了 hour：hour ≥ 22 且片长 < 100 分钟 +0.2；周末且片长 > 140 分钟 +0.1
//   - mood 命中物品 moods +0.3
//   - device 为 mobile 且摄影评分 > 4.0 +0.1
//
// 结果截断到 [0,1]。片长缺失按 120 分钟处理。
type ContextScorer struct {
	// DefaultRuntime 片长缺失时使用的默认值，0 表示 120
	DefaultRuntime float64
}

// Score 计算 context 组件分。请求没有任何场景参数时返回 ok=false，组件视为缺失。
func (s ContextScorer) Score(reqCtx map[string]any, meta map[string]any) (float64, bool) {
	if len(reqCtx) == 0 {
		return 0, false
	}

	score := 0.5

	if hour, ok := conv.ToFloat64(reqCtx[CtxHour]); ok {
		runtime, ok := core.MetaFloat(meta, core.MetaRuntime)
		if !ok {
			runtime = s.DefaultRuntime
			if runtime <= 0 {
				runtime = 120
			}
		}
		if hour >= 22 && runtime < 100 {
			score += 0.2
		}
		if weekend, _ := conv.ToBool(reqCtx[CtxIsWeekend]); weekend && runtime > 140 {
			score += 0.1
		}
	}

	if mood, ok := conv.ToString(reqCtx[CtxMood]); ok && mood != "" {
		for _, m := range core.MetaStrings(meta, core.MetaMoods) {
			if m == mood {
				score += 0.3
				break
			}
		}
	}

	if device, _ := conv.ToString(reqCtx[CtxDevice]); device == "mobile" {
		if cine, ok := core.MetaFloat(meta, core.MetaCinematography); ok && cine > 4.0 {
			score += 0.1
		}
	}

	return core.ClampUnit(score), true
}
