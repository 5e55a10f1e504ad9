// Package config 定义 hybridrec 的配置结构、加载方式与组件构建。
//
// 加载顺序（后者覆盖前者）：默认值 → YAML 文件 → 环境变量（HYBRIDREC_ 前缀，
// 层级用双下划线分隔，例如 HYBRIDREC_RECALL__POOL_SIZE=200）。
package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rushteam/hybridrec/cache"
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/explain"
	"github.com/rushteam/hybridrec/feature"
	"github.com/rushteam/hybridrec/feedback"
	"github.com/rushteam/hybridrec/pkg/breaker"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/recall"
	"github.com/rushteam/hybridrec/rerank"
	"github.com/rushteam/hybridrec/store"
)

// Config 是完整配置。
type Config struct {
	Log      logging.Config     `yaml:"log" json:"log" koanf:"log"`
	Weights  core.WeightsConfig `yaml:"weights" json:"weights" koanf:"weights"`
	Recall   RecallConfig       `yaml:"recall" json:"recall" koanf:"recall"`
	Rerank   RerankConfig       `yaml:"rerank" json:"rerank" koanf:"rerank"`
	Explain  ExplainConfig      `yaml:"explain" json:"explain" koanf:"explain"`
	Cache    CacheConfig        `yaml:"cache" json:"cache" koanf:"cache"`
	Redis    store.RedisConfig  `yaml:"redis" json:"redis" koanf:"redis"`
	Feature  FeatureConfig      `yaml:"feature" json:"feature" koanf:"feature"`
	Feedback FeedbackConfig     `yaml:"feedback" json:"feedback" koanf:"feedback"`
	Pipeline PipelineConfig     `yaml:"pipeline" json:"pipeline" koanf:"pipeline"`
}

// RecallConfig 是候选生成（召回扇出）配置。
type RecallConfig struct {
	PoolSize      int            `yaml:"pool_size" json:"pool_size" koanf:"pool_size"`
	Timeout       time.Duration  `yaml:"timeout" json:"timeout" koanf:"timeout"`
	SourceTimeout time.Duration  `yaml:"source_timeout" json:"source_timeout" koanf:"source_timeout"`
	MaxConcurrent int            `yaml:"max_concurrent" json:"max_concurrent" koanf:"max_concurrent"`
	Merge         string         `yaml:"merge" json:"merge" koanf:"merge"` // first / union
	Sources       []SourceConfig `yaml:"sources" json:"sources" koanf:"sources"`
}

// SourceConfig 是单个召回源配置。Type 对应 Register 注册的构建器。
type SourceConfig struct {
	Type     string         `yaml:"type" json:"type" koanf:"type"`
	Fraction float64        `yaml:"fraction" json:"fraction" koanf:"fraction"`
	Priority int            `yaml:"priority" json:"priority" koanf:"priority"`
	Disabled bool           `yaml:"disabled" json:"disabled" koanf:"disabled"`
	Options  map[string]any `yaml:"options" json:"options" koanf:"options"`
}

// RerankConfig 是多样性重排配置。
type RerankConfig struct {
	Lambda            float64                 `yaml:"lambda" json:"lambda" koanf:"lambda"`
	MMR               bool                    `yaml:"mmr" json:"mmr" koanf:"mmr"`
	GenreSpread       GenreSpreadConfig       `yaml:"genre_spread" json:"genre_spread" koanf:"genre_spread"`
	TemporalSpread    TemporalSpreadConfig    `yaml:"temporal_spread" json:"temporal_spread" koanf:"temporal_spread"`
	PopularityBalance PopularityBalanceConfig `yaml:"popularity_balance" json:"popularity_balance" koanf:"popularity_balance"`
}

type GenreSpreadConfig struct {
	Enabled   bool `yaml:"enabled" json:"enabled" koanf:"enabled"`
	MinGenres int  `yaml:"min_genres" json:"min_genres" koanf:"min_genres"`
}

type TemporalSpreadConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" koanf:"enabled"`
}

type PopularityBalanceConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled" koanf:"enabled"`
	PopularRatio float64 `yaml:"popular_ratio" json:"popular_ratio" koanf:"popular_ratio"`
}

// ExplainConfig 是解释生成配置。Generator 为空时只使用模板。
type ExplainConfig struct {
	Generator    string               `yaml:"generator" json:"generator" koanf:"generator"` // "" / ollama
	Timeout      time.Duration        `yaml:"timeout" json:"timeout" koanf:"timeout"`
	HistoryLimit int                  `yaml:"history_limit" json:"history_limit" koanf:"history_limit"`
	Ollama       explain.OllamaConfig `yaml:"ollama" json:"ollama" koanf:"ollama"`
	Breaker      breaker.Config       `yaml:"breaker" json:"breaker" koanf:"breaker"`
}

// CacheConfig 是结果缓存配置。
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled" koanf:"enabled"`
	Backend string        `yaml:"backend" json:"backend" koanf:"backend"` // memory / redis / tiered
	TTL     time.Duration `yaml:"ttl" json:"ttl" koanf:"ttl"`
	LRUSize int           `yaml:"lru_size" json:"lru_size" koanf:"lru_size"`
	L1TTL   time.Duration `yaml:"l1_ttl" json:"l1_ttl" koanf:"l1_ttl"`
}

// FeatureConfig 是物品元数据来源配置。
type FeatureConfig struct {
	Backend   string              `yaml:"backend" json:"backend" koanf:"backend"` // none / store / feast
	KeyPrefix string              `yaml:"key_prefix" json:"key_prefix" koanf:"key_prefix"`
	CacheSize int                 `yaml:"cache_size" json:"cache_size" koanf:"cache_size"`
	CacheTTL  time.Duration       `yaml:"cache_ttl" json:"cache_ttl" koanf:"cache_ttl"`
	Feast     feature.FeastConfig `yaml:"feast" json:"feast" koanf:"feast"`
}

// FeedbackConfig 是反馈收集配置。
type FeedbackConfig struct {
	BufferSize int           `yaml:"buffer_size" json:"buffer_size" koanf:"buffer_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout" koanf:"timeout"`
	Topic      string        `yaml:"topic" json:"topic" koanf:"topic"`
}

// PipelineConfig 是编排行为开关。
type PipelineConfig struct {
	Singleflight         bool `yaml:"singleflight" json:"singleflight" koanf:"singleflight"`
	InvalidateOnFeedback bool `yaml:"invalidate_on_feedback" json:"invalidate_on_feedback" koanf:"invalidate_on_feedback"`
}

// 召回源类型
const (
	SourceCollaborative = "collaborative"
	SourceContent       = "content"
	SourceGraph         = "graph"
	SourceTrending      = "trending"
)

// Default 返回默认配置：四个召回源按 0.40/0.30/0.20/0.10 分配候选池。
func Default() Config {
	return Config{
		Log:     logging.Config{Level: "info", Format: "json"},
		Weights: core.DefaultWeightsConfig(),
		Recall: RecallConfig{
			PoolSize:      recall.DefaultPoolSize,
			Timeout:       recall.DefaultTimeout,
			SourceTimeout: recall.DefaultSourceTimeout,
			Merge:         string(recall.MergeFirst),
			Sources: []SourceConfig{
				{Type: SourceCollaborative, Fraction: 0.40, Priority: 0},
				{Type: SourceContent, Fraction: 0.30, Priority: 1},
				{Type: SourceGraph, Fraction: 0.20, Priority: 2},
				{Type: SourceTrending, Fraction: 0.10, Priority: 3},
			},
		},
		Rerank: RerankConfig{
			Lambda:            rerank.DefaultLambda,
			MMR:               true,
			GenreSpread:       GenreSpreadConfig{MinGenres: 3},
			PopularityBalance: PopularityBalanceConfig{PopularRatio: 0.6},
		},
		Explain: ExplainConfig{
			Timeout:      explain.DefaultTimeout,
			HistoryLimit: explain.MaxPromptHistory,
			Ollama: explain.OllamaConfig{
				BaseURL:     "http://localhost:11434",
				Model:       "mistral",
				Temperature: 0.7,
				NumCtx:      2048,
				Timeout:     30 * time.Second,
			},
			Breaker: breaker.DefaultConfig(),
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "memory",
			TTL:     cache.DefaultTTL,
			LRUSize: cache.DefaultLRUSize,
			L1TTL:   time.Minute,
		},
		Redis: store.RedisConfig{
			Addr:         "localhost:6379",
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Feature: FeatureConfig{
			Backend:   "store",
			KeyPrefix: feature.DefaultMetaKeyPrefix,
			CacheSize: 10000,
			CacheTTL:  10 * time.Minute,
		},
		Feedback: FeedbackConfig{
			BufferSize: feedback.DefaultBufferSize,
			Timeout:    time.Second,
			Topic:      feedback.DefaultTopic,
		},
	}
}

// Validate 校验配置，返回所有问题的合并错误。
func (c *Config) Validate() error {
	var errs []error
	if _, err := core.NewWeights(c.Weights); err != nil {
		errs = append(errs, fmt.Errorf("weights: %w", err))
	}

	if c.Recall.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("recall.pool_size must be >= 1, got %d", c.Recall.PoolSize))
	}
	if c.Recall.Timeout < 0 || c.Recall.SourceTimeout < 0 {
		errs = append(errs, errors.New("recall timeouts must not be negative"))
	}
	switch recall.MergeStrategy(c.Recall.Merge) {
	case "", recall.MergeFirst, recall.MergeUnion:
	default:
		errs = append(errs, fmt.Errorf("recall.merge must be first or union, got %q", c.Recall.Merge))
	}
	enabled := 0
	for i, s := range c.Recall.Sources {
		if s.Disabled {
			continue
		}
		enabled++
		if !IsRegistered(s.Type) {
			errs = append(errs, fmt.Errorf("recall.sources[%d]: unsupported source type %q (supported: %v)", i, s.Type, SupportedTypes()))
		}
		if math.IsNaN(s.Fraction) || s.Fraction < 0 || s.Fraction > 1 {
			errs = append(errs, fmt.Errorf("recall.sources[%d]: fraction must be in [0,1], got %v", i, s.Fraction))
		}
	}
	if enabled == 0 {
		errs = append(errs, errors.New("recall.sources: at least one source must be enabled"))
	}

	if math.IsNaN(c.Rerank.Lambda) || c.Rerank.Lambda < 0 || c.Rerank.Lambda > 1 {
		errs = append(errs, fmt.Errorf("rerank.lambda must be in [0,1], got %v", c.Rerank.Lambda))
	}
	if r := c.Rerank.PopularityBalance.PopularRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("rerank.popularity_balance.popular_ratio must be in [0,1], got %v", r))
	}

	switch c.Explain.Generator {
	case "", "ollama":
	default:
		errs = append(errs, fmt.Errorf("explain.generator must be empty or ollama, got %q", c.Explain.Generator))
	}
	if c.Explain.Timeout < 0 {
		errs = append(errs, errors.New("explain.timeout must not be negative"))
	}

	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case "memory", "redis", "tiered":
		default:
			errs = append(errs, fmt.Errorf("cache.backend must be memory, redis or tiered, got %q", c.Cache.Backend))
		}
		if c.Cache.TTL <= 0 {
			errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL))
		}
	}

	switch c.Feature.Backend {
	case "", "none", "store":
	case "feast":
		if c.Feature.Feast.Project == "" || len(c.Feature.Feast.Features) == 0 {
			errs = append(errs, errors.New("feature.feast requires project and features"))
		}
	default:
		errs = append(errs, fmt.Errorf("feature.backend must be none, store or feast, got %q", c.Feature.Backend))
	}
	return errors.Join(errs...)
}

// UsesRedis 报告是否有组件需要 Redis 连接。
func (c *Config) UsesRedis() bool {
	return c.Cache.Enabled && (c.Cache.Backend == "redis" || c.Cache.Backend == "tiered")
}
