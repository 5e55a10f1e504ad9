package utils

// Label 是推荐链路中的可追踪标记：记录候选从哪个召回源来、在哪个阶段被处理。
// Value 与 Source 的语义由上层决定；这里只提供标准化的合并规则。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // recall / rank / rerank / explain ...
}

// 常用 Label key
const (
	LabelRecallSource   = "recall_source"   // 召回源名称
	LabelRecallPriority = "recall_priority" // 召回源合并优先级
	LabelRecallMetric   = "recall_metric"   // 召回使用的相似度度量
	LabelRerankPolicy   = "rerank_policy"   // 经过的重排策略
)

// MergeLabel 用于合并同名 Label，遵循"保留历史、可追踪"的默认策略。
// - Value: 以 '|' 累积，重复值不再追加
// - Source: 以 ',' 累积
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" || incoming.Value == existing.Value {
		return existing
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "" || incoming.Source == existing.Source:
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}
