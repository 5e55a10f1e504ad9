package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rushteam/hybridrec/core"
)

// MemoryStore 是内存实现的 KeyValueStore，用于测试/开发/单机部署。
// 支持 TTL（过期时间），进程重启后数据丢失。
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	hashes map[string]map[string][]byte
	zsets  map[string]map[string]float64 // zset key -> member -> score
	expiry map[string]time.Time          // 任意类型 key 的过期时间
	clean  *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		data:   make(map[string][]byte),
		hashes: make(map[string]map[string][]byte),
		zsets:  make(map[string]map[string]float64),
		expiry: make(map[string]time.Time),
		clean:  time.NewTicker(10 * time.Second),
		done:   make(chan struct{}),
	}
	go ms.cleanup()
	return ms
}

func (m *MemoryStore) Name() string { return "memory" }

// expired 判断 key 是否已过期（调用方持有读锁或写锁）
func (m *MemoryStore) expired(key string, now time.Time) bool {
	exp, ok := m.expiry[key]
	return ok && !now.Before(exp)
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok || m.expired(key, time.Now()) {
		return nil, core.ErrStoreNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(value))
	copy(buf, value)
	m.data[key] = buf
	if ttl > 0 {
		m.expiry[key] = time.Now().Add(ttl)
	} else {
		delete(m.expiry, key)
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		m.deleteLocked(key)
	}
	return nil
}

func (m *MemoryStore) deleteLocked(key string) {
	delete(m.data, key)
	delete(m.hashes, key)
	delete(m.zsets, key)
	delete(m.expiry, key)
}

func (m *MemoryStore) Close() error {
	m.once.Do(func() {
		m.clean.Stop()
		close(m.done)
	})
	return nil
}

func (m *MemoryStore) cleanup() {
	for {
		select {
		case <-m.done:
			return
		case <-m.clean.C:
			m.mu.Lock()
			now := time.Now()
			for k := range m.expiry {
				if m.expired(k, now) {
					m.deleteLocked(k)
				}
			}
			m.mu.Unlock()
		}
	}
}

// KeyValueStore 扩展方法

var _ core.KeyValueStore = (*MemoryStore)(nil)

func (m *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.expired(key, time.Now()) {
		m.deleteLocked(key)
	}
	if m.zsets[key] == nil {
		m.zsets[key] = make(map[string]float64)
	}
	m.zsets[key][member] = score
	return nil
}

func (m *MemoryStore) ZRevRangeWithScores(_ context.Context, key string, start, stop int64) ([]core.ScoredMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	zset, ok := m.zsets[key]
	if !ok || len(zset) == 0 || m.expired(key, time.Now()) {
		return nil, nil
	}

	// 按 score 降序，同分按 member 降序（与 Redis ZREVRANGE 一致）
	pairs := make([]core.ScoredMember, 0, len(zset))
	for member, score := range zset {
		pairs = append(pairs, core.ScoredMember{Member: member, Score: score})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Score != pairs[j].Score {
			return pairs[i].Score > pairs[j].Score
		}
		return pairs[i].Member > pairs[j].Member
	})

	n := int64(len(pairs))
	if start < 0 {
		start = 0
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil, nil
	}
	out := make([]core.ScoredMember, 0, stop-start+1)
	out = append(out, pairs[start:stop+1]...)
	return out, nil
}

func (m *MemoryStore) HGet(_ context.Context, key, field string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.hashes[key]
	if !ok || m.expired(key, time.Now()) {
		return nil, core.ErrStoreNotFound
	}
	v, ok := h[field]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStore) HSet(_ context.Context, key, field string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.expired(key, time.Now()) {
		m.deleteLocked(key)
	}
	if m.hashes[key] == nil {
		m.hashes[key] = make(map[string][]byte)
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	m.hashes[key][field] = buf
	return nil
}

func (m *MemoryStore) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]byte)
	h, ok := m.hashes[key]
	if !ok || m.expired(key, time.Now()) {
		return result, nil
	}
	for field, v := range h {
		buf := make([]byte, len(v))
		copy(buf, v)
		result[field] = buf
	}
	return result, nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl <= 0 {
		m.deleteLocked(key)
		return nil
	}
	m.expiry[key] = time.Now().Add(ttl)
	return nil
}
