package recall

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/feature"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pkg/breaker"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/pkg/utils"
)

// GraphSource 是基于图嵌入（Node2Vec/GraphSAGE）的召回源。
//
// 调用外部图召回服务：POST {Endpoint}，body 为 {"user_id","top_k","filters"}，
// 返回 {"item_ids":[...],"scores":[...]}。scores 缺省时按名次线性衰减。
// 调用经过熔断器；Endpoint 为空表示图模型未部署，返回 ErrModelNotReady。
type GraphSource struct {
	endpoint string
	client   *http.Client
	metadata feature.MetadataProvider
	cb       *gobreaker.CircuitBreaker[graphResponse]
}

type graphRequest struct {
	UserID  string         `json:"user_id"`
	TopK    int            `json:"top_k"`
	Filters map[string]any `json:"filters,omitempty"`
}

type graphResponse struct {
	ItemIDs []string  `json:"item_ids"`
	Scores  []float64 `json:"scores,omitempty"`
}

// GraphConfig 是图召回服务配置。
type GraphConfig struct {
	Endpoint string         `yaml:"endpoint" json:"endpoint" koanf:"endpoint"`
	Timeout  time.Duration  `yaml:"timeout" json:"timeout" koanf:"timeout"`
	Breaker  breaker.Config `yaml:"breaker" json:"breaker" koanf:"breaker"`
}

// GraphOption 配置 GraphSource。
type GraphOption func(*graphOptions)

type graphOptions struct {
	client   *http.Client
	metadata feature.MetadataProvider
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func WithHTTPClient(c *http.Client) GraphOption {
	return func(o *graphOptions) { o.client = c }
}

func WithGraphMetadata(p feature.MetadataProvider) GraphOption {
	return func(o *graphOptions) { o.metadata = p }
}

//nolint:gocritic // zerolog.Logger 按值传递
func WithGraphLogger(l zerolog.Logger) GraphOption {
	return func(o *graphOptions) { o.logger = l }
}

func WithGraphMetrics(m *metrics.Metrics) GraphOption {
	return func(o *graphOptions) { o.metrics = m }
}

func NewGraphSource(cfg GraphConfig, opts ...GraphOption) *GraphSource {
	o := graphOptions{logger: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		t := cfg.Timeout
		if t <= 0 {
			t = 5 * time.Second
		}
		o.client = &http.Client{Timeout: t}
	}
	logger := logging.WithComponent(o.logger, "recall.graph")
	return &GraphSource{
		endpoint: cfg.Endpoint,
		client:   o.client,
		metadata: o.metadata,
		cb:       breaker.New[graphResponse]("graph-recall", cfg.Breaker, logger, o.metrics),
	}
}

func (r *GraphSource) Name() string      { return "recall.graph" }
func (r *GraphSource) Component() string { return core.ComponentGraph }

func (r *GraphSource) Fetch(ctx context.Context, userID string, k int, filters map[string]any) ([]*core.Candidate, error) {
	if r.endpoint == "" {
		return nil, core.WrapDomainError(core.ErrModelNotReady, "graph recall endpoint is not configured")
	}
	if userID == "" || k <= 0 {
		return []*core.Candidate{}, nil
	}

	res, err := r.cb.Execute(func() (graphResponse, error) {
		return r.call(ctx, graphRequest{UserID: userID, TopK: k, Filters: filters})
	})
	if err != nil {
		return nil, err
	}
	return refine(ctx, r.metadata, r.convert(res), filters, k)
}

func (r *GraphSource) call(ctx context.Context, body graphRequest) (graphResponse, error) {
	var res graphResponse
	raw, err := json.Marshal(body)
	if err != nil {
		return res, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(raw))
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return res, fmt.Errorf("graph recall rpc: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return res, fmt.Errorf("graph recall status=%d body=%s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, fmt.Errorf("graph recall decode: %w", err)
	}
	return res, nil
}

// convert 把服务返回转换为候选：有分数时按最高分归一化，否则按名次 1 - i/n。
func (r *GraphSource) convert(res graphResponse) []*core.Candidate {
	n := len(res.ItemIDs)
	if n == 0 {
		return []*core.Candidate{}
	}

	maxScore := 0.0
	if len(res.Scores) == n {
		for _, s := range res.Scores {
			if s > maxScore {
				maxScore = s
			}
		}
	}

	out := make([]*core.Candidate, 0, n)
	seen := make(map[string]struct{}, n)
	for i, id := range res.ItemIDs {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}

		score := 1 - float64(i)/float64(n)
		if maxScore > 0 {
			score = res.Scores[i] / maxScore
		}
		c := newCandidate(id, r.Name(), r.Component(), score)
		c.PutLabel("recall_type", utils.Label{Value: "node2vec", Source: "recall"})
		out = append(out, c)
	}
	return out
}

var _ Source = (*GraphSource)(nil)
