package cache

import (
	"context"
	"time"

	"github.com/rushteam/hybridrec/core"
)

// Tiered 是两级缓存：L1 进程内 LRU，L2 共享存储（通常是 Redis）。
// L2 命中会回填 L1；写入同时写两级，以 L2 的结果为准。
type Tiered struct {
	l1    *LRU
	l2    Cache
	l1TTL time.Duration
}

// NewTiered 创建两级缓存；l1TTL 为回填 L1 时使用的 ttl（<=0 时沿用写入 ttl）。
func NewTiered(l1 *LRU, l2 Cache, l1TTL time.Duration) *Tiered {
	return &Tiered{l1: l1, l2: l2, l1TTL: l1TTL}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]core.Recommendation, bool, error) {
	if recs, ok, _ := t.l1.Get(ctx, key); ok {
		return recs, true, nil
	}
	recs, ok, err := t.l2.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = t.l1.Set(ctx, key, recs, t.l1TTL)
	return recs, true, nil
}

func (t *Tiered) Set(ctx context.Context, key string, recs []core.Recommendation, ttl time.Duration) error {
	l1TTL := t.l1TTL
	if l1TTL <= 0 || (ttl > 0 && ttl < l1TTL) {
		l1TTL = ttl
	}
	_ = t.l1.Set(ctx, key, recs, l1TTL)
	return t.l2.Set(ctx, key, recs, ttl)
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	_ = t.l1.Delete(ctx, key)
	return t.l2.Delete(ctx, key)
}

func (t *Tiered) InvalidateUser(ctx context.Context, userID string) error {
	_ = t.l1.InvalidateUser(ctx, userID)
	if i, ok := t.l2.(Invalidator); ok {
		return i.InvalidateUser(ctx, userID)
	}
	return nil
}

var (
	_ Cache       = (*Tiered)(nil)
	_ Invalidator = (*Tiered)(nil)
)
