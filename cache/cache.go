// Package cache 缓存最终推荐结果。
//
// key 由 Fingerprint 生成，包含用户、返回数量、过滤条件哈希与 λ；
// 缓存只按 TTL 过期，不做主动刷新。任何缓存错误都只导致绕过缓存。
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
)

// KeyPrefix 是推荐结果缓存 key 的前缀。
const KeyPrefix = "recs"

// DefaultTTL 是推荐结果默认缓存时长。
const DefaultTTL = time.Hour

// Cache 是推荐结果缓存。
// Get 未命中时返回 (nil, false, nil)；只有后端故障才返回错误。
type Cache interface {
	Get(ctx context.Context, key string) ([]core.Recommendation, bool, error)
	Set(ctx context.Context, key string, recs []core.Recommendation, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Invalidator 按用户批量失效缓存，供评分/收藏等外部事件调用。
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// Fingerprint 生成缓存 key：recs:<user>:<k>:<filterhash>:<λ>。
// filters 以排序后的 key 编码再做 xxhash64，空 filters 与 nil 等价。
func Fingerprint(userID string, topK int, filters map[string]any, lambda float64) string {
	return fmt.Sprintf("%s:%s:%d:%s:%.4f", KeyPrefix, userID, topK, FilterHash(filters), lambda)
}

// FilterHash 返回 filters 的规范化哈希（16 位十六进制）。
func FilterHash(filters map[string]any) string {
	if len(filters) == 0 {
		filters = map[string]any{}
	}
	// map key 在编码时按字典序输出，嵌套 map 同样如此
	raw, err := json.Marshal(filters)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", filters))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(raw))
}

// UserFromKey 从 Fingerprint 生成的 key 中解析出 userID（userID 本身可以包含冒号）。
func UserFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, KeyPrefix+":")
	if !ok {
		return "", false
	}
	// 末尾固定为 <k>:<filterhash>:<λ> 三段
	for i := 0; i < 3; i++ {
		idx := strings.LastIndexByte(rest, ':')
		if idx < 0 {
			return "", false
		}
		rest = rest[:idx]
	}
	return rest, rest != ""
}

// unavailable 把后端错误包装为 ErrCacheUnavailable。
func unavailable(op string, err error) error {
	return core.WithCause(core.ErrCacheUnavailable, fmt.Errorf("%s: %w", op, err))
}
