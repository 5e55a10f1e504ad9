package explain

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rushteam/hybridrec/core"
)

// MaxPromptHistory 是提示词中最多包含的历史喜爱标题数。
const MaxPromptHistory = 5

// SystemPrompt 是交给生成服务的系统提示词。
const SystemPrompt = "You are a movie recommendation assistant. Generate a brief, engaging explanation " +
	"(2-3 sentences max) for why a title is recommended. Be conversational and focus on the most " +
	"relevant factors. Don't mention technical scores."

// Generator 是外部自然语言生成服务（LLM）的抽象。
// 实现应尊重 ctx 的取消与超时。
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// GeneratorFunc 把函数适配为 Generator。
type GeneratorFunc func(ctx context.Context, p Prompt) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// Prompt 是交给生成服务的紧凑上下文。
type Prompt struct {
	Title       string
	LikedTitles []string
	Scores      string // "collaborative: 0.82, content: 0.40"，按组件名排序
	System      string
}

// BuildPrompt 构建提示词：标题缺失时为 "Item <id>"，历史最多 5 条。
func BuildPrompt(in Input) Prompt {
	title, ok := core.MetaString(in.Meta, core.MetaTitle)
	if !ok || title == "" {
		title = "Item " + in.ItemID
	}
	liked := in.History
	if len(liked) > MaxPromptHistory {
		liked = liked[:MaxPromptHistory]
	}
	return Prompt{
		Title:       title,
		LikedTitles: append([]string(nil), liked...),
		Scores:      FormatScores(in.Components),
		System:      SystemPrompt,
	}
}

// FormatScores 把组件分格式化为 "name: 0.00"，按名称排序，逗号分隔。
func FormatScores(components map[string]float64) string {
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %.2f", name, components[name]))
	}
	return strings.Join(parts, ", ")
}

// Text 返回用户侧提示词正文。
func (p Prompt) Text() string {
	favorites := "None"
	if len(p.LikedTitles) > 0 {
		favorites = strings.Join(p.LikedTitles, ", ")
	}
	return fmt.Sprintf(
		"Title: %s\nUser's recent favorites: %s\nRecommendation factors: %s\n\n"+
			"Generate a natural explanation for why this title is recommended:",
		p.Title, favorites, p.Scores)
}
