package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/store"
)

func recs(ids ...string) []core.Recommendation {
	out := make([]core.Recommendation, 0, len(ids))
	for i, id := range ids {
		out = append(out, core.Recommendation{
			ItemID:      id,
			Score:       1 - float64(i)*0.1,
			Components:  map[string]float64{core.ComponentCollaborative: 0.5},
			Confidence:  0.8,
			Explanation: "because",
		})
	}
	return out
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("u1", 10, map[string]any{"genres": []string{"Drama"}, "min_year": 1990}, 0.7)
	b := Fingerprint("u1", 10, map[string]any{"min_year": 1990, "genres": []string{"Drama"}}, 0.7)
	assert.Equal(t, a, b, "key order does not matter")

	assert.Equal(t, Fingerprint("u1", 10, nil, 0.7), Fingerprint("u1", 10, map[string]any{}, 0.7))
	assert.NotEqual(t, a, Fingerprint("u1", 10, nil, 0.7))
	assert.NotEqual(t, a, Fingerprint("u1", 5, map[string]any{"genres": []string{"Drama"}, "min_year": 1990}, 0.7))
	assert.NotEqual(t, Fingerprint("u1", 10, nil, 0.7), Fingerprint("u1", 10, nil, 0.5))
	assert.NotEqual(t, Fingerprint("u1", 10, nil, 0.7), Fingerprint("u2", 10, nil, 0.7))

	assert.Regexp(t, `^recs:u1:10:[0-9a-f]{16}:0\.7000$`, Fingerprint("u1", 10, nil, 0.7))
}

func TestUserFromKey(t *testing.T) {
	u, ok := UserFromKey(Fingerprint("tenant:42", 3, nil, 1))
	require.True(t, ok)
	assert.Equal(t, "tenant:42", u)

	_, ok = UserFromKey("other:u1:1:abc:0.5")
	assert.False(t, ok)
	_, ok = UserFromKey("recs:1:abc")
	assert.False(t, ok)
}

func storeBackends(t *testing.T) map[string]core.KeyValueStore {
	t.Helper()
	mem := store.NewMemoryStore()
	t.Cleanup(func() { _ = mem.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]core.KeyValueStore{"memory": mem, "redis": store.NewRedisStoreFromClient(client)}
}

func TestStoreCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, kv := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			c := NewStoreCache(kv)
			key := Fingerprint("u1", 2, nil, 0.7)

			_, ok, err := c.Get(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)

			want := recs("m1", "m2")
			require.NoError(t, c.Set(ctx, key, want, time.Hour))
			got, ok, err := c.Get(ctx, key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want, got)

			require.NoError(t, c.Delete(ctx, key))
			_, ok, err = c.Get(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreCache_MalformedEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	for name, kv := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			key := Fingerprint("u1", 2, nil, 0.7)
			require.NoError(t, kv.Set(ctx, key, []byte("{not json"), 0))

			_, ok, err := NewStoreCache(kv).Get(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreCache_InvalidateUser(t *testing.T) {
	ctx := context.Background()
	for name, kv := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			c := NewStoreCache(kv)
			k1 := Fingerprint("u1", 2, nil, 0.7)
			k2 := Fingerprint("u1", 5, map[string]any{"genres": []string{"Drama"}}, 0.7)
			other := Fingerprint("u2", 2, nil, 0.7)
			for _, k := range []string{k1, k2, other} {
				require.NoError(t, c.Set(ctx, k, recs("m1"), time.Hour))
			}

			require.NoError(t, c.InvalidateUser(ctx, "u1"))
			for _, k := range []string{k1, k2} {
				_, ok, err := c.Get(ctx, k)
				require.NoError(t, err)
				assert.False(t, ok, k)
			}
			_, ok, err := c.Get(ctx, other)
			require.NoError(t, err)
			assert.True(t, ok)

			idx, err := kv.HGetAll(ctx, IndexPrefix+"u1")
			require.NoError(t, err)
			assert.Empty(t, idx)

			require.NoError(t, c.InvalidateUser(ctx, "nobody"))
		})
	}
}

func TestStoreCache_RedisTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	c := NewStoreCache(store.NewRedisStoreFromClient(client))

	key := Fingerprint("u1", 2, nil, 0.7)
	require.NoError(t, c.Set(ctx, key, recs("m1"), time.Minute))
	assert.True(t, mr.Exists(IndexPrefix+"u1"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(IndexPrefix+"u1"), "index expires with its entries")
}

// brokenStore 模拟后端完全不可用。
type brokenStore struct{}

var errBackend = errors.New("connection refused")

func (brokenStore) Name() string                                             { return "broken" }
func (brokenStore) Get(context.Context, string) ([]byte, error)              { return nil, errBackend }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error { return errBackend }
func (brokenStore) Delete(context.Context, ...string) error                  { return errBackend }
func (brokenStore) Close() error                                             { return nil }

func TestStoreCache_BackendErrors(t *testing.T) {
	ctx := context.Background()
	c := NewStoreCache(brokenStore{})
	key := Fingerprint("u1", 2, nil, 0.7)

	_, ok, err := c.Get(ctx, key)
	assert.False(t, ok)
	assert.True(t, core.IsCacheUnavailable(err))
	assert.ErrorIs(t, err, errBackend)

	assert.True(t, core.IsCacheUnavailable(c.Set(ctx, key, recs("m1"), time.Hour)))
	assert.True(t, core.IsCacheUnavailable(c.Delete(ctx, key)))

	err = c.InvalidateUser(ctx, "u1")
	assert.True(t, core.IsCacheUnavailable(err), "plain stores cannot index users")
}

func TestLRU_EntriesAreDeepCopied(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(4, time.Hour)
	key := Fingerprint("u1", 1, nil, 0.7)

	in := recs("m1")
	in[0].Meta = map[string]any{core.MetaTitle: "Heat", core.MetaGenres: []string{"Crime"}}
	require.NoError(t, c.Set(ctx, key, in, 0))
	in[0].Components[core.ComponentCollaborative] = 0
	in[0].Meta[core.MetaTitle] = "changed"

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	got[0].Components[core.ComponentCollaborative] = 0.99
	got[0].Meta[core.MetaGenres].([]string)[0] = "Horror"
	delete(got[0].Meta, core.MetaTitle)

	again, _, _ := c.Get(ctx, key)
	assert.Equal(t, 0.5, again[0].Components[core.ComponentCollaborative])
	assert.Equal(t, "Heat", again[0].Meta[core.MetaTitle])
	assert.Equal(t, []string{"Crime"}, again[0].Meta[core.MetaGenres])
}

func TestLRU(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }

	k1 := Fingerprint("u1", 1, nil, 0.7)
	k2 := Fingerprint("u1", 2, nil, 0.7)
	k3 := Fingerprint("u2", 1, nil, 0.7)

	in := recs("m1")
	require.NoError(t, c.Set(ctx, k1, in, time.Minute))
	got, ok, err := c.Get(ctx, k1)
	require.NoError(t, err)
	require.True(t, ok)
	got[0].ItemID = "mutated"
	again, _, _ := c.Get(ctx, k1)
	assert.Equal(t, "m1", again[0].ItemID)
	in[0].ItemID = "changed"
	again, _, _ = c.Get(ctx, k1)
	assert.Equal(t, "m1", again[0].ItemID)

	// 按条目 ttl 过期
	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, k1)
	assert.False(t, ok)

	// 容量淘汰
	require.NoError(t, c.Set(ctx, k1, recs("a"), 0))
	require.NoError(t, c.Set(ctx, k2, recs("b"), 0))
	require.NoError(t, c.Set(ctx, k3, recs("c"), 0))
	assert.Equal(t, 2, c.Len())
	_, ok, _ = c.Get(ctx, k1)
	assert.False(t, ok)

	require.NoError(t, c.InvalidateUser(ctx, "u1"))
	assert.Equal(t, 1, c.Len())
	_, ok, _ = c.Get(ctx, k3)
	assert.True(t, ok)
}

func TestTiered(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()
	l1 := NewLRU(16, time.Hour)
	l2 := NewStoreCache(kv)
	c := NewTiered(l1, l2, time.Minute)
	key := Fingerprint("u1", 2, nil, 0.7)

	require.NoError(t, c.Set(ctx, key, recs("m1", "m2"), time.Hour))
	_, ok, _ := l1.Get(ctx, key)
	assert.True(t, ok)

	// L1 丢失后从 L2 回填
	require.NoError(t, l1.Delete(ctx, key))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, l1.Len())

	require.NoError(t, c.InvalidateUser(ctx, "u1"))
	assert.Equal(t, 0, l1.Len())
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTiered_L2Failure(t *testing.T) {
	ctx := context.Background()
	c := NewTiered(NewLRU(4, time.Hour), NewStoreCache(brokenStore{}), 0)
	key := Fingerprint("u1", 2, nil, 0.7)

	err := c.Set(ctx, key, recs("m1"), time.Hour)
	assert.True(t, core.IsCacheUnavailable(err))

	// L1 仍然可用
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, got, 1)
}
