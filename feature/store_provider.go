package feature

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
)

// DefaultMetaKeyPrefix 是物品元数据 hash 的 key 前缀：item:meta:{itemID}
const DefaultMetaKeyPrefix = "item:meta:"

// StoreProvider 是基于 KeyValueStore 的元数据提供者，采用适配器模式。
// 每个物品对应一个 hash，field 为元数据名，value 为 JSON 编码的值。
type StoreProvider struct {
	store     core.KeyValueStore
	keyPrefix string
}

func NewStoreProvider(store core.KeyValueStore, keyPrefix string) *StoreProvider {
	if keyPrefix == "" {
		keyPrefix = DefaultMetaKeyPrefix
	}
	return &StoreProvider{store: store, keyPrefix: keyPrefix}
}

func (p *StoreProvider) Name() string {
	return fmt.Sprintf("store.%s", p.store.Name())
}

func (p *StoreProvider) key(itemID string) string {
	return p.keyPrefix + itemID
}

// Metadata 逐个读取物品 hash。单个物品解码失败时跳过该字段。
func (p *StoreProvider) Metadata(ctx context.Context, ids []string) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		fields, err := p.store.HGetAll(ctx, p.key(id))
		if err != nil {
			return nil, core.WithCause(core.ErrFeatureUnavailable, fmt.Errorf("hgetall %s: %w", p.key(id), err))
		}
		if len(fields) == 0 {
			continue
		}
		meta := make(map[string]any, len(fields))
		for field, raw := range fields {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				continue
			}
			meta[field] = v
		}
		out[id] = meta
	}
	return out, nil
}

// Put 写入一个物品的元数据（覆盖同名字段）。
func (p *StoreProvider) Put(ctx context.Context, itemID string, meta map[string]any) error {
	for field, v := range meta {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s.%s: %w", itemID, field, err)
		}
		if err := p.store.HSet(ctx, p.key(itemID), field, raw); err != nil {
			return err
		}
	}
	return nil
}
