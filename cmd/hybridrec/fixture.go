package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/feature"
	"github.com/rushteam/hybridrec/recall"
)

// fixture 是一份可离线运行的目录数据。
//
//	{
//	  "items":   [{"id":"m1","title":"...","genres":["Action"],"release_year":1999,
//	               "rating":8.1,"popularity":72,"runtime":136,"features":{"action":1}}],
//	  "ratings": [{"user_id":"u1","item_id":"m1","score":5}],
//	  "preferences": {"u1": {"action": 0.9}},
//	  "trending": {"m1": 120}
//	}
//
// 没有 preferences 的用户，由评分 ≥ 4 的物品特征按评分加权平均得到偏好向量。
type fixture struct {
	Items       []fixtureItem                 `json:"items"`
	Ratings     []recall.Interaction          `json:"ratings"`
	Preferences map[string]map[string]float64 `json:"preferences"`
	Trending    map[string]float64            `json:"trending"`
}

type fixtureItem struct {
	ID       string             `json:"id"`
	Features map[string]float64 `json:"features"`
	Meta     map[string]any     `json:"-"`
}

func (it *fixtureItem) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, _ := raw["id"].(string)
	if id == "" {
		return fmt.Errorf("fixture item without id")
	}
	it.ID = id
	if f, ok := raw["features"].(map[string]any); ok {
		it.Features = make(map[string]float64, len(f))
		for k, v := range f {
			if x, ok := v.(float64); ok {
				it.Features[k] = x
			}
		}
	}
	delete(raw, "id")
	delete(raw, "features")
	it.Meta = raw
	return nil
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &fx, nil
}

// seeded 是装载 fixture 后的数据源。
type seeded struct {
	cf      *recall.MemoryCFStore
	content *recall.MemoryContentStore
}

// seed 把 fixture 写入数据存储：元数据写 hash，热门榜写有序集合，交互与特征留在内存。
func (fx *fixture) seed(ctx context.Context, kv core.KeyValueStore, metaPrefix, trendingKey string) (*seeded, error) {
	meta := feature.NewStoreProvider(kv, metaPrefix)
	content := recall.NewMemoryContentStore()
	features := make(map[string]map[string]float64, len(fx.Items))
	for _, it := range fx.Items {
		if err := meta.Put(ctx, it.ID, it.Meta); err != nil {
			return nil, fmt.Errorf("seed metadata %s: %w", it.ID, err)
		}
		if len(it.Features) > 0 {
			content.SetItemFeatures(it.ID, it.Features)
			features[it.ID] = it.Features
		}
	}

	for id, score := range fx.Trending {
		if err := kv.ZAdd(ctx, trendingKey, score, id); err != nil {
			return nil, fmt.Errorf("seed trending: %w", err)
		}
	}

	cf := recall.NewMemoryCFStore(fx.Ratings...)
	for user, prefs := range fx.Preferences {
		content.SetUserPreferences(user, prefs)
	}
	for user, prefs := range derivePreferences(fx.Ratings, features) {
		if _, ok := fx.Preferences[user]; !ok {
			content.SetUserPreferences(user, prefs)
		}
	}
	return &seeded{cf: cf, content: content}, nil
}

func derivePreferences(ratings []recall.Interaction, features map[string]map[string]float64) map[string]map[string]float64 {
	sums := make(map[string]map[string]float64)
	weights := make(map[string]float64)
	for _, r := range ratings {
		f, ok := features[r.ItemID]
		if !ok || r.Score < 4 {
			continue
		}
		if sums[r.UserID] == nil {
			sums[r.UserID] = make(map[string]float64)
		}
		for k, v := range f {
			sums[r.UserID][k] += v * r.Score
		}
		weights[r.UserID] += r.Score
	}
	for user, s := range sums {
		for k := range s {
			s[k] /= weights[user]
		}
	}
	return sums
}
