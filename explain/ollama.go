package explain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// OllamaConfig 是本地 Ollama 服务配置。
type OllamaConfig struct {
	BaseURL     string        `yaml:"base_url" json:"base_url" koanf:"base_url"`
	Model       string        `yaml:"model" json:"model" koanf:"model"`
	Temperature float64       `yaml:"temperature" json:"temperature" koanf:"temperature"`
	NumCtx      int           `yaml:"num_ctx" json:"num_ctx" koanf:"num_ctx"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" koanf:"timeout"`
}

// OllamaGenerator 调用 Ollama 的 /api/generate（非流式）生成解释。
type OllamaGenerator struct {
	cfg    OllamaConfig
	client *http.Client
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

func NewOllamaGenerator(cfg OllamaConfig, client *http.Client) *OllamaGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "mistral"
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	if client == nil {
		t := cfg.Timeout
		if t <= 0 {
			t = 30 * time.Second
		}
		client = &http.Client{Timeout: t}
	}
	return &OllamaGenerator{cfg: cfg, client: client}
}

func (g *OllamaGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	raw, err := json.Marshal(ollamaRequest{
		Model:  g.cfg.Model,
		Prompt: p.Text(),
		System: p.System,
		Stream: false,
		Options: ollamaOptions{
			Temperature: g.cfg.Temperature,
			NumCtx:      g.cfg.NumCtx,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/api/generate", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("ollama generate status=%d body=%s", resp.StatusCode, string(b))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama decode: %w", err)
	}
	return strings.TrimSpace(out.Response), nil
}

var _ Generator = (*OllamaGenerator)(nil)
