package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/logging"
)

// IndexPrefix 是用户 → 缓存 key 索引（Hash）的前缀。
const IndexPrefix = KeyPrefix + ":idx:"

// StoreCache 基于 core.Store（Redis 或内存）的结果缓存，值以 JSON 编码。
//
// 底层为 core.KeyValueStore 时，额外维护 recs:idx:<user> 索引，支持 InvalidateUser。
type StoreCache struct {
	store  core.Store
	kv     core.KeyValueStore
	logger zerolog.Logger
}

// StoreCacheOption 配置 StoreCache。
type StoreCacheOption func(*StoreCache)

//nolint:gocritic // zerolog.Logger 按值传递
func WithStoreLogger(l zerolog.Logger) StoreCacheOption {
	return func(c *StoreCache) { c.logger = logging.WithComponent(l, "cache.store") }
}

func NewStoreCache(store core.Store, opts ...StoreCacheOption) *StoreCache {
	c := &StoreCache{store: store, logger: logging.Nop()}
	if kv, ok := store.(core.KeyValueStore); ok {
		c.kv = kv
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *StoreCache) Get(ctx context.Context, key string) ([]core.Recommendation, bool, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil, false, nil
		}
		return nil, false, unavailable("get", err)
	}

	var recs []core.Recommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("malformed cache entry, treating as miss")
		return nil, false, nil
	}
	return recs, true, nil
}

func (c *StoreCache) Set(ctx context.Context, key string, recs []core.Recommendation, ttl time.Duration) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return unavailable("encode", err)
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		return unavailable("set", err)
	}
	if c.kv == nil {
		return nil
	}

	user, ok := UserFromKey(key)
	if !ok {
		return nil
	}
	idx := IndexPrefix + user
	if err := c.kv.HSet(ctx, idx, key, []byte("1")); err != nil {
		return unavailable("index", err)
	}
	if ttl > 0 {
		if err := c.kv.Expire(ctx, idx, ttl); err != nil {
			return unavailable("index expire", err)
		}
	}
	return nil
}

func (c *StoreCache) Delete(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// InvalidateUser 删除该用户所有已索引的缓存结果。
func (c *StoreCache) InvalidateUser(ctx context.Context, userID string) error {
	if c.kv == nil {
		return unavailable("invalidate", core.ErrStoreNotSupported)
	}
	idx := IndexPrefix + userID
	fields, err := c.kv.HGetAll(ctx, idx)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil
		}
		return unavailable("invalidate", err)
	}
	keys := make([]string, 0, len(fields)+1)
	for k := range fields {
		keys = append(keys, k)
	}
	keys = append(keys, idx)
	if err := c.kv.Delete(ctx, keys...); err != nil {
		return unavailable("invalidate", err)
	}
	return nil
}

var (
	_ Cache       = (*StoreCache)(nil)
	_ Invalidator = (*StoreCache)(nil)
)
