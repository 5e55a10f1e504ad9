package recall

import (
	"context"
	"maps"
	"math"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/feature"
	"github.com/rushteam/hybridrec/pkg/utils"
)

// ContentStore 是基于内容的推荐的存储接口。
type ContentStore interface {
	// GetItemFeatures 获取物品的内容特征（类别、关键词、导演等）
	GetItemFeatures(ctx context.Context, itemID string) (map[string]float64, error)

	// GetUserPreferences 获取用户的偏好特征（喜欢的类别、关键词等）
	GetUserPreferences(ctx context.Context, userID string) (map[string]float64, error)

	// GetAllItems 获取所有物品 ID 列表
	GetAllItems(ctx context.Context) ([]string, error)
}

// ContentSource 是基于内容的召回源（Content-Based Recommendation）。
//
// 核心思想："用户喜欢具有某些特征的物品，推荐具有相似特征的其他物品"
type ContentSource struct {
	Store ContentStore

	// Metadata 用于请求过滤的物品元数据（可选）
	Metadata feature.MetadataProvider

	// Seen 用于排除用户已交互过的物品（可选）
	Seen CFStore

	// Metric 距离度量方式：cosine / jaccard，默认 cosine
	Metric string
}

func (r *ContentSource) Name() string      { return "recall.content" }
func (r *ContentSource) Component() string { return core.ComponentContent }

func (r *ContentSource) Fetch(ctx context.Context, userID string, k int, filters map[string]any) ([]*core.Candidate, error) {
	if r.Store == nil {
		return nil, core.WrapDomainError(core.ErrModelNotReady, "content store is not configured")
	}
	if userID == "" || k <= 0 {
		return []*core.Candidate{}, nil
	}

	userPrefs, err := r.Store.GetUserPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(userPrefs) == 0 {
		return []*core.Candidate{}, nil
	}

	var seen map[string]float64
	if r.Seen != nil {
		if seen, err = r.Seen.GetUserItems(ctx, userID); err != nil {
			return nil, err
		}
	}

	allItems, err := r.Store.GetAllItems(ctx)
	if err != nil {
		return nil, err
	}

	metric := r.Metric
	if metric == "" {
		metric = "cosine"
	}

	scores := make([]scored, 0, len(allItems))
	for _, itemID := range allItems {
		if _, ok := seen[itemID]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		itemFeatures, err := r.Store.GetItemFeatures(ctx, itemID)
		if err != nil || len(itemFeatures) == 0 {
			continue
		}

		var score float64
		switch metric {
		case "jaccard":
			score = jaccardSimilarity(userPrefs, itemFeatures)
		default:
			score = cosineSimilarityForMaps(userPrefs, itemFeatures)
		}
		if score > 0 {
			scores = append(scores, scored{id: itemID, score: score})
		}
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].id < scores[j].id
	})

	cands := make([]*core.Candidate, 0, len(scores))
	for _, s := range scores {
		c := newCandidate(s.id, r.Name(), r.Component(), s.score)
		c.PutLabel(utils.LabelRecallMetric, utils.Label{Value: metric, Source: "recall"})
		cands = append(cands, c)
	}
	return refine(ctx, r.Metadata, cands, filters, k)
}

// cosineSimilarityForMaps 计算两个稀疏特征向量的余弦相似度
func cosineSimilarityForMaps(a, b map[string]float64) float64 {
	var dot, normA, normB float64
	for k, va := range a {
		normA += va * va
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// jaccardSimilarity 计算两个特征向量的加权 Jaccard 相似度：Σmin / Σmax
func jaccardSimilarity(a, b map[string]float64) float64 {
	var intersection, union float64
	for k, va := range a {
		vb := b[k]
		intersection += math.Min(va, vb)
		union += math.Max(va, vb)
	}
	for k, vb := range b {
		if _, ok := a[k]; !ok {
			union += vb
		}
	}
	if union == 0 {
		return 0
	}
	return intersection / union
}

// MemoryContentStore 是内存实现的 ContentStore。
type MemoryContentStore struct {
	mu    sync.RWMutex
	items map[string]map[string]float64
	users map[string]map[string]float64
}

func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{
		items: make(map[string]map[string]float64),
		users: make(map[string]map[string]float64),
	}
}

func (s *MemoryContentStore) SetItemFeatures(itemID string, features map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[itemID] = maps.Clone(features)
}

func (s *MemoryContentStore) SetUserPreferences(userID string, prefs map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = maps.Clone(prefs)
}

func (s *MemoryContentStore) GetItemFeatures(_ context.Context, itemID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.items[itemID]), nil
}

func (s *MemoryContentStore) GetUserPreferences(_ context.Context, userID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.users[userID]), nil
}

func (s *MemoryContentStore) GetAllItems(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// StoreContentAdapter 是基于 core.Store 接口的内容推荐存储适配器。
//
// key 约定：
//   - 物品特征：{KeyPrefix}:item:{itemID}
//   - 用户偏好：{KeyPrefix}:user:{userID}
//   - 所有物品列表：{KeyPrefix}:items
type StoreContentAdapter struct {
	store     core.Store
	KeyPrefix string
}

func NewStoreContentAdapter(s core.Store, keyPrefix string) *StoreContentAdapter {
	if keyPrefix == "" {
		keyPrefix = "content"
	}
	return &StoreContentAdapter{store: s, KeyPrefix: keyPrefix}
}

func (a *StoreContentAdapter) GetItemFeatures(ctx context.Context, itemID string) (map[string]float64, error) {
	return a.getVector(ctx, a.KeyPrefix+":item:"+itemID)
}

func (a *StoreContentAdapter) GetUserPreferences(ctx context.Context, userID string) (map[string]float64, error) {
	return a.getVector(ctx, a.KeyPrefix+":user:"+userID)
}

func (a *StoreContentAdapter) GetAllItems(ctx context.Context) ([]string, error) {
	data, err := a.store.Get(ctx, a.KeyPrefix+":items")
	if err != nil {
		if core.IsStoreNotFound(err) {
			return []string{}, nil
		}
		return nil, err
	}
	var result []string
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (a *StoreContentAdapter) getVector(ctx context.Context, key string) (map[string]float64, error) {
	data, err := a.store.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return make(map[string]float64), nil
		}
		return nil, err
	}
	var result map[string]float64
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

var (
	_ ContentStore = (*MemoryContentStore)(nil)
	_ ContentStore = (*StoreContentAdapter)(nil)
)
