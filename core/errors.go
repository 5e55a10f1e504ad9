package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）、模块（Module）和消息（Message）
//   - Err 保存底层原因，支持 errors.Is / errors.As 穿透
//
// 错误分级：
//   - 可恢复：SourceUnavailable、ExplanationTimeout、CacheUnavailable（内部吸收并记录）
//   - 致命：NoCandidates、InvalidRequest（返回给调用方）
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "UNAVAILABLE"）
	Message string // 错误消息
	Module  string // 模块名称（如 "recall", "cache"）
	Err     error  // 底层原因
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is 以 Module + Code 判等，这样 WrapDomainError 产出的错误仍能匹配哨兵错误。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的 DomainError，如果不存在则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 基于哨兵错误派生一个带上下文的新错误（Module/Code 不变）。
func WrapDomainError(sentinel *DomainError, detail string) *DomainError {
	return &DomainError{
		Module:  sentinel.Module,
		Code:    sentinel.Code,
		Message: sentinel.Message + ": " + detail,
	}
}

// WithCause 基于哨兵错误包装一个底层原因。
func WithCause(sentinel *DomainError, cause error) *DomainError {
	return &DomainError{
		Module:  sentinel.Module,
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Err:     cause,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeTimeout       = "TIMEOUT"        // 超时
	ErrorCodeNotReady      = "NOT_READY"      // 模型未就绪
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误
)

// 模块名称常量
const (
	ModuleStore    = "store"
	ModuleRecall   = "recall"
	ModuleCache    = "cache"
	ModuleExplain  = "explain"
	ModulePipeline = "pipeline"
	ModuleFeature  = "feature"
)

var (
	// ErrSourceUnavailable 单个召回源失败或超时，流水线继续
	ErrSourceUnavailable = NewDomainError(ModuleRecall, ErrorCodeUnavailable, "recall: source unavailable")

	// ErrModelNotReady 召回源背后的模型未训练/未加载。显式报错，不返回随机结果
	ErrModelNotReady = NewDomainError(ModuleRecall, ErrorCodeNotReady, "recall: model not ready")

	// ErrNoCandidates 所有召回源都没有产出候选，请求失败
	ErrNoCandidates = NewDomainError(ModulePipeline, ErrorCodeNotFound, "pipeline: no candidates")

	// ErrInvalidRequest 请求参数不合法
	ErrInvalidRequest = NewDomainError(ModulePipeline, ErrorCodeInvalidInput, "pipeline: invalid request")

	// ErrExplanationTimeout 解释生成超时，回退到模板
	ErrExplanationTimeout = NewDomainError(ModuleExplain, ErrorCodeTimeout, "explain: generation timeout")

	// ErrCacheUnavailable 缓存不可用，绕过缓存
	ErrCacheUnavailable = NewDomainError(ModuleCache, ErrorCodeUnavailable, "cache: unavailable")

	// ErrFeatureUnavailable 特征/元数据服务不可用
	ErrFeatureUnavailable = NewDomainError(ModuleFeature, ErrorCodeUnavailable, "feature: unavailable")
)

// IsNoCandidates 检查错误是否为 NoCandidates
func IsNoCandidates(err error) bool {
	return errors.Is(err, ErrNoCandidates)
}

// IsSourceUnavailable 检查错误是否为召回源不可用
func IsSourceUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

// IsModelNotReady 检查错误是否为模型未就绪
func IsModelNotReady(err error) bool {
	return errors.Is(err, ErrModelNotReady)
}

// IsCacheUnavailable 检查错误是否为缓存不可用
func IsCacheUnavailable(err error) bool {
	return errors.Is(err, ErrCacheUnavailable)
}

// IsExplanationTimeout 检查错误是否为解释超时
func IsExplanationTimeout(err error) bool {
	return errors.Is(err, ErrExplanationTimeout)
}

// IsInvalidRequest 检查错误是否为请求参数不合法
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsNotFound 检查错误是否为 NOT_FOUND（任意模块）
func IsNotFound(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}

// IsUnavailable 检查错误是否为 UNAVAILABLE（任意模块）
func IsUnavailable(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeUnavailable
	}
	return false
}
