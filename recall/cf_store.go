package recall

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
)

// Interaction 是一条用户-物品交互（评分/观看时长等）。
type Interaction struct {
	UserID string  `json:"user_id"`
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// MemoryCFStore 是内存实现的 CFStore，用于测试与单机部署。
type MemoryCFStore struct {
	mu        sync.RWMutex
	userItems map[string]map[string]float64
}

func NewMemoryCFStore(interactions ...Interaction) *MemoryCFStore {
	s := &MemoryCFStore{userItems: make(map[string]map[string]float64)}
	for _, in := range interactions {
		s.Add(in)
	}
	return s
}

// Add 写入（覆盖）一条交互。
func (s *MemoryCFStore) Add(in Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userItems[in.UserID] == nil {
		s.userItems[in.UserID] = make(map[string]float64)
	}
	s.userItems[in.UserID][in.ItemID] = in.Score
}

func (s *MemoryCFStore) GetUserItems(_ context.Context, userID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.userItems[userID]), nil
}

func (s *MemoryCFStore) GetAllUsers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.userItems))
	for u := range s.userItems {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

// StoreCFAdapter 是基于 core.Store 接口的协同过滤数据适配器，从 Redis 等存储中读取交互数据。
//
// key 约定：
//   - 用户物品交互：{KeyPrefix}:user:{userID} -> JSON map[itemID]score
//   - 所有用户列表：{KeyPrefix}:users -> JSON []string
type StoreCFAdapter struct {
	store     core.Store
	KeyPrefix string
}

func NewStoreCFAdapter(s core.Store, keyPrefix string) *StoreCFAdapter {
	if keyPrefix == "" {
		keyPrefix = "cf"
	}
	return &StoreCFAdapter{store: s, KeyPrefix: keyPrefix}
}

func (a *StoreCFAdapter) GetUserItems(ctx context.Context, userID string) (map[string]float64, error) {
	var result map[string]float64
	if err := a.getJSON(ctx, a.KeyPrefix+":user:"+userID, &result); err != nil {
		return nil, err
	}
	if result == nil {
		result = make(map[string]float64)
	}
	return result, nil
}

func (a *StoreCFAdapter) GetAllUsers(ctx context.Context) ([]string, error) {
	var result []string
	if err := a.getJSON(ctx, a.KeyPrefix+":users", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// getJSON 读取并解码；key 不存在时保持 out 为零值。
func (a *StoreCFAdapter) getJSON(ctx context.Context, key string, out any) error {
	data, err := a.store.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, out)
}

// Load 把交互数据写入 Store（覆盖同一用户的已有数据）。
func (a *StoreCFAdapter) Load(ctx context.Context, interactions []Interaction) error {
	userItems := make(map[string]map[string]float64)
	for _, in := range interactions {
		if userItems[in.UserID] == nil {
			userItems[in.UserID] = make(map[string]float64)
		}
		userItems[in.UserID][in.ItemID] = in.Score
	}

	users := make([]string, 0, len(userItems))
	for userID, items := range userItems {
		data, err := json.Marshal(items)
		if err != nil {
			return err
		}
		if err := a.store.Set(ctx, a.KeyPrefix+":user:"+userID, data, 0); err != nil {
			return err
		}
		users = append(users, userID)
	}
	sort.Strings(users)

	data, err := json.Marshal(users)
	if err != nil {
		return err
	}
	return a.store.Set(ctx, a.KeyPrefix+":users", data, 0)
}

var (
	_ CFStore = (*MemoryCFStore)(nil)
	_ CFStore = (*StoreCFAdapter)(nil)
)
