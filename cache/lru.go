package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rushteam/hybridrec/core"
)

// DefaultLRUSize 是进程内缓存默认容量。
const DefaultLRUSize = 4096

// LRU 是进程内的过期 LRU 缓存。存取都做深拷贝，调用方修改结果不会影响缓存条目。
// 构造时的 ttl 是上限；Set 传入更短的 ttl 时按条目单独过期。
type LRU struct {
	lru *expirable.LRU[string, lruEntry]
	now func() time.Time
}

type lruEntry struct {
	recs      []core.Recommendation
	expiresAt time.Time // 零值表示只受全局 ttl 约束
}

func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = DefaultLRUSize
	}
	return &LRU{
		lru: expirable.NewLRU[string, lruEntry](size, nil, ttl),
		now: time.Now,
	}
}

func (c *LRU) Get(_ context.Context, key string) ([]core.Recommendation, bool, error) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.lru.Remove(key)
		return nil, false, nil
	}
	return core.CloneRecommendations(e.recs), true, nil
}

func (c *LRU) Set(_ context.Context, key string, recs []core.Recommendation, ttl time.Duration) error {
	e := lruEntry{recs: core.CloneRecommendations(recs)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.lru.Add(key, e)
	return nil
}

func (c *LRU) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// InvalidateUser 删除该用户的全部条目。
func (c *LRU) InvalidateUser(_ context.Context, userID string) error {
	for _, key := range c.lru.Keys() {
		if u, ok := UserFromKey(key); ok && u == userID {
			c.lru.Remove(key)
		}
	}
	return nil
}

func (c *LRU) Len() int {
	return c.lru.Len()
}

var (
	_ Cache       = (*LRU)(nil)
	_ Invalidator = (*LRU)(nil)
)
