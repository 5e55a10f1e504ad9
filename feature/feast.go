package feature

import (
	"context"
	"fmt"
	"strings"

	feastsdk "github.com/feast-dev/feast/sdk/go"

	"github.com/rushteam/hybridrec/core"
)

// FeastConfig 是 Feast 在线特征服务的连接配置。
type FeastConfig struct {
	Host    string `yaml:"host" json:"host" koanf:"host"`
	Port    int    `yaml:"port" json:"port" koanf:"port"`
	Project string `yaml:"project" json:"project" koanf:"project"`
	Token   string `yaml:"token" json:"token" koanf:"token"`

	// EntityKey 物品实体列名，默认 item_id
	EntityKey string `yaml:"entity_key" json:"entity_key" koanf:"entity_key"`

	// Features 形如 "movie_features:rating"，返回的元数据 key 取冒号后的部分
	Features []string `yaml:"features" json:"features" koanf:"features"`
}

// OnlineFeatureClient 是 Feast SDK 客户端的最小抽象，便于测试替换。
type OnlineFeatureClient interface {
	GetOnlineFeatures(ctx context.Context, req *feastsdk.OnlineFeaturesRequest) (*feastsdk.OnlineFeaturesResponse, error)
}

// FeastProvider 通过 Feast 在线特征服务获取物品元数据。
type FeastProvider struct {
	client    OnlineFeatureClient
	project   string
	entityKey string
	features  []string
}

// NewFeastProvider 创建基于官方 Go SDK gRPC 客户端的提供者。
func NewFeastProvider(cfg FeastConfig) (*FeastProvider, error) {
	port := cfg.Port
	if port == 0 {
		port = 6565 // 默认 gRPC 端口
	}

	var (
		client *feastsdk.GrpcClient
		err    error
	)
	if cfg.Token != "" {
		client, err = feastsdk.NewSecureGrpcClient(cfg.Host, port, feastsdk.SecurityConfig{
			Credential: feastsdk.NewStaticCredential(cfg.Token),
		})
	} else {
		client, err = feastsdk.NewGrpcClient(cfg.Host, port)
	}
	if err != nil {
		return nil, fmt.Errorf("create feast grpc client: %w", err)
	}
	return NewFeastProviderWithClient(client, cfg)
}

// NewFeastProviderWithClient 使用已有客户端创建提供者。
func NewFeastProviderWithClient(client OnlineFeatureClient, cfg FeastConfig) (*FeastProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("feast client is nil")
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("feast project is required")
	}
	if len(cfg.Features) == 0 {
		return nil, fmt.Errorf("feast features are required")
	}
	entityKey := cfg.EntityKey
	if entityKey == "" {
		entityKey = "item_id"
	}
	return &FeastProvider{
		client:    client,
		project:   cfg.Project,
		entityKey: entityKey,
		features:  cfg.Features,
	}, nil
}

func (p *FeastProvider) Name() string { return "feast" }

func (p *FeastProvider) Metadata(ctx context.Context, ids []string) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	entities := make([]feastsdk.Row, len(ids))
	for i, id := range ids {
		entities[i] = feastsdk.Row{p.entityKey: feastsdk.StrVal(id)}
	}

	resp, err := p.client.GetOnlineFeatures(ctx, &feastsdk.OnlineFeaturesRequest{
		Features: p.features,
		Entities: entities,
		Project:  p.project,
	})
	if err != nil {
		return nil, core.WithCause(core.ErrFeatureUnavailable, fmt.Errorf("feast get online features: %w", err))
	}

	rows := resp.Rows()
	if len(rows) != len(ids) {
		return nil, core.WithCause(core.ErrFeatureUnavailable,
			fmt.Errorf("feast row count mismatch: expected %d, got %d", len(ids), len(rows)))
	}

	for i, row := range rows {
		meta := make(map[string]any, len(p.features))
		for _, ref := range p.features {
			val, ok := row[ref]
			if !ok || val == nil {
				continue
			}
			if v := fromFeastValue(val); v != nil {
				meta[featureName(ref)] = v
			}
		}
		if len(meta) > 0 {
			out[ids[i]] = meta
		}
	}
	return out, nil
}

// featureName 去掉 feature view 前缀：movie_features:rating -> rating
func featureName(ref string) string {
	if i := strings.LastIndexByte(ref, ':'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// feastValue 是 SDK 返回值上用到的 getter 集合。
type feastValue interface {
	GetStringVal() string
	GetDoubleVal() float64
	GetFloatVal() float32
	GetInt64Val() int64
	GetInt32Val() int32
	GetBoolVal() bool
}

// fromFeastValue 把 SDK 值转换为元数据值：字符串优先，其次数值。
// 空字符串与 0 无法区分是否设置，统一按数值 0 处理。
func fromFeastValue(val feastValue) any {
	if s := val.GetStringVal(); s != "" {
		return s
	}
	switch {
	case val.GetDoubleVal() != 0:
		return val.GetDoubleVal()
	case val.GetFloatVal() != 0:
		return float64(val.GetFloatVal())
	case val.GetInt64Val() != 0:
		return float64(val.GetInt64Val())
	case val.GetInt32Val() != 0:
		return float64(val.GetInt32Val())
	case val.GetBoolVal():
		return float64(1)
	}
	return float64(0)
}
