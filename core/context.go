package core

import "fmt"

// Request 承载一次推荐请求：用户、返回数量、过滤条件、场景上下文与多样性系数。
// 贯穿整个 Pipeline 只读透传。
type Request struct {
	UserID string
	TopK   int

	// Filters 透传给每个召回源，例如 genres / min_year / min_rating / expr
	Filters map[string]any

	// Context 请求级上下文参数：hour / is_weekend / mood / device 等
	Context map[string]any

	// Lambda 是 MMR 多样性系数，nil 时使用配置默认值
	Lambda *float64

	// RequestID 仅用于日志关联，不参与缓存指纹
	RequestID string
}

// Validate 校验请求的必要字段。
func (r *Request) Validate() error {
	if r == nil {
		return NewDomainError(ModulePipeline, ErrorCodeInvalidInput, "request is nil")
	}
	if r.UserID == "" {
		return WrapDomainError(ErrInvalidRequest, "user_id is required")
	}
	if r.TopK < 1 {
		return WrapDomainError(ErrInvalidRequest, fmt.Sprintf("top_k must be >= 1, got %d", r.TopK))
	}
	return nil
}

// EffectiveLambda 返回实际使用的 λ（截断到 [0,1]）。
func (r *Request) EffectiveLambda(def float64) float64 {
	if r == nil || r.Lambda == nil {
		return ClampUnit(def)
	}
	return ClampUnit(*r.Lambda)
}

// Lambda 是构造 *float64 的小工具，便于 Request{Lambda: core.Lambda(0.5)}。
func Lambda(v float64) *float64 {
	return &v
}
