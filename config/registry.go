package config

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/feature"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/recall"
)

// Deps 是构建召回源时可用的共享依赖。
type Deps struct {
	// Store 共享数据存储（Redis 或内存）：热门榜、元数据 hash、交互/特征数据、结果缓存
	Store core.KeyValueStore

	// Metadata 物品元数据；为 nil 时由 BuildMetadata 按配置创建
	Metadata feature.MetadataProvider

	// CF / Content 为 nil 时使用基于 Store 的适配器
	CF      recall.CFStore
	Content recall.ContentStore

	// Publisher 反馈事件发布通道；为 nil 时反馈只写日志
	Publisher message.Publisher

	HTTPClient *http.Client
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// SourceBuilder 根据 options 构建召回源。
// 各召回源在 init 中调用 Register(typeName, builder) 即可被配置驱动。
type SourceBuilder func(options map[string]any, deps Deps) (recall.Source, error)

var (
	defaultBuilders   = make(map[string]SourceBuilder)
	defaultBuildersMu sync.RWMutex
)

// Register 注册一种召回源的构建逻辑，重复注册会覆盖。
func Register(typeName string, builder SourceBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	defaultBuildersMu.Lock()
	defer defaultBuildersMu.Unlock()
	defaultBuilders[typeName] = builder
}

// IsRegistered 报告类型是否已注册。
func IsRegistered(typeName string) bool {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	_, ok := defaultBuilders[typeName]
	return ok
}

// SupportedTypes 返回当前已注册的召回源类型列表（排序），用于错误提示与校验。
func SupportedTypes() []string {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	types := make([]string, 0, len(defaultBuilders))
	for t := range defaultBuilders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// BuildSource 按类型构建单个召回源。
//
//nolint:gocritic // Deps 按值传递
func BuildSource(sc SourceConfig, deps Deps) (recall.Source, error) {
	defaultBuildersMu.RLock()
	builder, ok := defaultBuilders[sc.Type]
	defaultBuildersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported source type %q (supported: %v)", sc.Type, SupportedTypes())
	}
	opts := sc.Options
	if opts == nil {
		opts = map[string]any{}
	}
	src, err := builder(opts, deps)
	if err != nil {
		return nil, fmt.Errorf("build source %s: %w", sc.Type, err)
	}
	return src, nil
}
