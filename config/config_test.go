package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/hybridrec/cache"
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/feature"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/recall"
	"github.com/rushteam/hybridrec/store"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hybridrec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Recall.Sources, 4)
	assert.InDelta(t, 0.7, cfg.Rerank.Lambda, 1e-9)
	assert.False(t, cfg.UsesRedis())
	assert.Subset(t, SupportedTypes(), []string{SourceCollaborative, SourceContent, SourceGraph, SourceTrending})
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"weights sum":      {func(c *Config) { c.Weights.Collaborative = 0.9 }, "weights"},
		"negative weight":  {func(c *Config) { c.Weights.Context = -0.05; c.Weights.Popularity = 0.15 }, "weights"},
		"pool size":        {func(c *Config) { c.Recall.PoolSize = 0 }, "recall.pool_size"},
		"merge":            {func(c *Config) { c.Recall.Merge = "zip" }, "recall.merge"},
		"unknown source":   {func(c *Config) { c.Recall.Sources[0].Type = "bert" }, "unsupported source type"},
		"fraction":         {func(c *Config) { c.Recall.Sources[1].Fraction = 1.5 }, "fraction"},
		"lambda":           {func(c *Config) { c.Rerank.Lambda = 1.2 }, "rerank.lambda"},
		"popular ratio":    {func(c *Config) { c.Rerank.PopularityBalance.PopularRatio = -1 }, "popular_ratio"},
		"generator":        {func(c *Config) { c.Explain.Generator = "gpt" }, "explain.generator"},
		"cache backend":    {func(c *Config) { c.Cache.Backend = "disk" }, "cache.backend"},
		"cache ttl":        {func(c *Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		"feature backend":  {func(c *Config) { c.Feature.Backend = "s3" }, "feature.backend"},
		"feast incomplete": {func(c *Config) { c.Feature.Backend = "feast" }, "feature.feast"},
		"no sources": {func(c *Config) {
			for i := range c.Recall.Sources {
				c.Recall.Sources[i].Disabled = true
			}
		}, "at least one source"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Recall.PoolSize = 0
	cfg.Rerank.Lambda = 2
	cfg.Cache.Backend = "disk"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recall.pool_size")
	assert.Contains(t, err.Error(), "rerank.lambda")
	assert.Contains(t, err.Error(), "cache.backend")
}

func TestValidate_DisabledCacheIgnoresBackend(t *testing.T) {
	cfg := Default()
	cfg.Cache.Enabled = false
	cfg.Cache.Backend = "disk"
	assert.NoError(t, cfg.Validate())
}

const partialYAML = `
rerank:
  lambda: 0.4
  genre_spread:
    enabled: true
cache:
  backend: tiered
  ttl: 30m
recall:
  pool_size: 50
  sources:
    - type: trending
      fraction: 1
      options:
        key: trending:weekly
`

func TestLoadFromYAML(t *testing.T) {
	cfg, err := LoadFromYAML(writeFile(t, partialYAML))
	require.NoError(t, err)

	assert.InDelta(t, 0.4, cfg.Rerank.Lambda, 1e-9)
	assert.True(t, cfg.Rerank.GenreSpread.Enabled)
	assert.Equal(t, 3, cfg.Rerank.GenreSpread.MinGenres, "unset fields keep defaults")
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 50, cfg.Recall.PoolSize)
	require.Len(t, cfg.Recall.Sources, 1)
	assert.Equal(t, "trending:weekly", cfg.Recall.Sources[0].Options["key"])
	assert.True(t, cfg.UsesRedis())
	assert.Equal(t, core.DefaultWeightsConfig(), cfg.Weights)

	_, err = LoadFromYAML(writeFile(t, "rerank:\n  lambda: 3\n"))
	assert.ErrorContains(t, err, "rerank.lambda")

	_, err = LoadFromYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFromYAML(writeFile(t, "recall:\n  poolsize: 10\n"))
	assert.ErrorContains(t, err, "poolsize", "unknown keys are rejected")

	cfg, err = LoadFromYAML(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, recall.DefaultPoolSize, cfg.Recall.PoolSize)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, partialYAML)
	t.Setenv("HYBRIDREC_RECALL__POOL_SIZE", "200")
	t.Setenv("HYBRIDREC_RERANK__LAMBDA", "0.55")
	t.Setenv("HYBRIDREC_EXPLAIN__TIMEOUT", "750ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Recall.PoolSize)
	assert.InDelta(t, 0.55, cfg.Rerank.Lambda, 1e-9)
	assert.Equal(t, 750*time.Millisecond, cfg.Explain.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL, "file value kept")
	assert.Equal(t, "tiered", cfg.Cache.Backend)
	assert.Equal(t, "info", cfg.Log.Level, "default kept")
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, recall.DefaultPoolSize, cfg.Recall.PoolSize)
	assert.Len(t, cfg.Recall.Sources, 4)
	assert.Equal(t, cache.DefaultTTL, cfg.Cache.TTL)

	t.Setenv("HYBRIDREC_RERANK__LAMBDA", "7")
	_, err = Load("")
	assert.ErrorContains(t, err, "rerank.lambda")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "recall.pool_size", envKey("HYBRIDREC_RECALL__POOL_SIZE"))
	assert.Equal(t, "explain.ollama.base_url", envKey("HYBRIDREC_EXPLAIN__OLLAMA__BASE_URL"))
}

func TestBuildOptimizer(t *testing.T) {
	cfg := Default()
	assert.Equal(t, []string{"rerank.mmr"}, BuildOptimizer(&cfg).Policies())

	cfg.Rerank.GenreSpread.Enabled = true
	cfg.Rerank.TemporalSpread.Enabled = true
	cfg.Rerank.PopularityBalance.Enabled = true
	cfg.Rerank.MMR = false
	o := BuildOptimizer(&cfg)
	assert.Len(t, o.Pre, 2)
	assert.Nil(t, o.MMR)
	assert.Len(t, o.Post, 1)
}

func TestBuildCache(t *testing.T) {
	cfg := Default()
	c, err := BuildCache(&cfg, Deps{})
	require.NoError(t, err)
	assert.IsType(t, &cache.LRU{}, c)

	cfg.Cache.Backend = "redis"
	_, err = BuildCache(&cfg, Deps{})
	assert.Error(t, err, "redis cache needs a store")

	kv := store.NewMemoryStore()
	defer kv.Close()
	c, err = BuildCache(&cfg, Deps{Store: kv})
	require.NoError(t, err)
	assert.IsType(t, &cache.StoreCache{}, c)

	cfg.Cache.Backend = "tiered"
	c, err = BuildCache(&cfg, Deps{Store: kv})
	require.NoError(t, err)
	assert.IsType(t, &cache.Tiered{}, c)

	cfg.Cache.Enabled = false
	c, err = BuildCache(&cfg, Deps{Store: kv})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestBuildSource(t *testing.T) {
	_, err := BuildSource(SourceConfig{Type: "word2vec"}, Deps{})
	assert.ErrorContains(t, err, "unsupported source type")

	_, err = BuildSource(SourceConfig{Type: SourceCollaborative}, Deps{})
	assert.Error(t, err, "collaborative source needs data")

	src, err := BuildSource(SourceConfig{Type: SourceGraph}, Deps{})
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), "u1", 5, nil)
	assert.True(t, core.IsModelNotReady(err), "graph source without endpoint is not ready")

	Register("fixed", func(map[string]any, Deps) (recall.Source, error) {
		return &recall.SourceFunc{SourceName: "fixed", Comp: core.ComponentGraph}, nil
	})
	assert.True(t, IsRegistered("fixed"))
	src, err = BuildSource(SourceConfig{Type: "fixed"}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "fixed", src.Name())
}

func TestBuildOrchestrator(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	defer kv.Close()

	meta := feature.NewStoreProvider(kv, "")
	items := map[string]map[string]any{
		"m1": {"title": "Heat", "genres": []string{"Crime"}, "release_year": 1995, "rating": 8.3},
		"m2": {"title": "Up", "genres": []string{"Animation"}, "release_year": 2009, "rating": 8.2},
		"m3": {"title": "Alien", "genres": []string{"Horror"}, "release_year": 1979, "rating": 8.5},
	}
	for id, m := range items {
		require.NoError(t, meta.Put(ctx, id, m))
	}
	require.NoError(t, kv.ZAdd(ctx, recall.DefaultTrendingKey, 90, "m1"))
	require.NoError(t, kv.ZAdd(ctx, recall.DefaultTrendingKey, 60, "m2"))
	require.NoError(t, kv.ZAdd(ctx, recall.DefaultTrendingKey, 30, "m3"))

	cfg := Default()
	cfg.Recall.Sources = []SourceConfig{
		{Type: SourceTrending, Fraction: 0.5},
		{Type: SourceGraph, Fraction: 0.5},
	}
	rt, err := BuildOrchestrator(&cfg, Deps{
		Store:   kv,
		Logger:  logging.Nop(),
		Metrics: metrics.New(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, rt.Close()) }()
	require.NotNil(t, rt.Metadata)
	assert.Len(t, rt.Fanout.Entries(), 2)

	recs, err := rt.Orchestrator.GetRecommendations(ctx, &core.Request{
		UserID:  "u1",
		TopK:    2,
		Filters: map[string]any{"min_year": 1980},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.ElementsMatch(t, []string{"m1", "m2"}, []string{recs[0].ItemID, recs[1].ItemID})
	for _, r := range recs {
		assert.NotEmpty(t, r.Explanation)
		assert.Contains(t, r.Components, core.ComponentPopularity)
	}

	require.NoError(t, rt.Orchestrator.InvalidateUser(ctx, "u1"))
}

func TestBuildOrchestrator_InvalidConfig(t *testing.T) {
	cfg := Default()
	cfg.Rerank.Lambda = -1
	_, err := BuildOrchestrator(&cfg, Deps{})
	assert.Error(t, err)
}
