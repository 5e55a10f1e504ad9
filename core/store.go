package core

import (
	"context"
	"time"
)

// Store 是存储的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 领域层不依赖基础设施层，避免循环依赖
//
// 使用场景：
//   - 结果缓存：序列化后的推荐列表
//   - 物品元数据、热门榜单
//
// 实现：
//   - store.MemoryStore
//   - store.RedisStore
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值，不存在时返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value，ttl <= 0 表示不过期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete 删除 key（任意类型），不存在不报错
	Delete(ctx context.Context, keys ...string) error

	// Close 关闭连接/释放资源
	Close() error
}

// ScoredMember 是有序集合中的一个成员。
type ScoredMember struct {
	Member string
	Score  float64
}

// KeyValueStore 是 Store 的扩展接口，支持更丰富的 KV 操作。
//
//   - 有序集合（SortedSet）：热门榜单
//   - 哈希表（Hash）：物品元数据、缓存索引
type KeyValueStore interface {
	Store

	// ZAdd 向有序集合添加成员
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRevRangeWithScores 按分数降序获取 [start, stop] 区间的成员（stop=-1 表示到末尾）
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)

	// HGet 读取 Hash 字段
	HGet(ctx context.Context, key, field string) ([]byte, error)

	// HSet 写入 Hash 字段
	HSet(ctx context.Context, key, field string, value []byte) error

	// HGetAll 读取整个 Hash
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)

	// Expire 为 key 设置过期时间
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Store 错误定义（使用统一的 DomainError）
var (
	// ErrStoreNotFound 表示 key 不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

	// ErrStoreNotSupported 表示操作不支持
	ErrStoreNotSupported = NewDomainError(ModuleStore, ErrorCodeNotSupported, "store: operation not supported")
)

// IsStoreNotFound 检查错误是否为 key 不存在
func IsStoreNotFound(err error) bool {
	domainErr := GetDomainError(err)
	if domainErr != nil && domainErr.Module == ModuleStore {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}

// IsStoreNotSupported 检查错误是否为操作不支持
func IsStoreNotSupported(err error) bool {
	domainErr := GetDomainError(err)
	if domainErr != nil && domainErr.Module == ModuleStore {
		return domainErr.Code == ErrorCodeNotSupported
	}
	return false
}
