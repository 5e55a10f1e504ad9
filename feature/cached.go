package feature

import (
	"context"
	"maps"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedProvider 在远程元数据源前加一层本地 LRU，减少对特征服务的访问。
// 只缓存命中的物品；不存在的物品每次都会回源。
type CachedProvider struct {
	next  MetadataProvider
	cache *expirable.LRU[string, map[string]any]
}

func NewCachedProvider(next MetadataProvider, size int, ttl time.Duration) *CachedProvider {
	if size <= 0 {
		size = 10000
	}
	return &CachedProvider{
		next:  next,
		cache: expirable.NewLRU[string, map[string]any](size, nil, ttl),
	}
}

func (p *CachedProvider) Metadata(ctx context.Context, ids []string) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any, len(ids))
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if meta, ok := p.cache.Get(id); ok {
			out[id] = maps.Clone(meta)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := p.next.Metadata(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, meta := range fetched {
		p.cache.Add(id, maps.Clone(meta))
		out[id] = meta
	}
	return out, nil
}

// Len 返回缓存条目数。
func (p *CachedProvider) Len() int {
	return p.cache.Len()
}
