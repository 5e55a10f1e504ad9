package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/hybridrec/core"
)

// RedisConfig 是 Redis 连接配置。
type RedisConfig struct {
	Addr         string        `yaml:"addr" json:"addr" koanf:"addr"`
	Password     string        `yaml:"password" json:"password" koanf:"password"`
	DB           int           `yaml:"db" json:"db" koanf:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout" koanf:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" koanf:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" koanf:"write_timeout"`
}

// RedisStore 是 Redis 实现的 KeyValueStore，生产环境常用。
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore 创建连接并 Ping 校验。
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient 复用外部创建的客户端（集群/哨兵/测试）。
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrStoreNotFound
	}
	return val, err
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return r.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (r *RedisStore) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]core.ScoredMember, error) {
	zs, err := r.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]core.ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, core.ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}

func (r *RedisStore) HGet(ctx context.Context, key, field string) ([]byte, error) {
	val, err := r.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrStoreNotFound
	}
	return val, err
}

func (r *RedisStore) HSet(ctx context.Context, key, field string, value []byte) error {
	return r.client.HSet(ctx, key, field, value).Err()
}

func (r *RedisStore) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	vals, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	result := make(map[string][]byte, len(vals))
	for k, v := range vals {
		result[k] = []byte(v)
	}
	return result, nil
}

func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// 确保 RedisStore 实现了 core.Store 和 core.KeyValueStore 接口
var _ core.Store = (*RedisStore)(nil)
var _ core.KeyValueStore = (*RedisStore)(nil)
