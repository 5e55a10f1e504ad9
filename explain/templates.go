package explain

import (
	"fmt"
	"strings"

	"github.com/rushteam/hybridrec/core"
)

// DefaultExplanation 是没有主导因子时的兜底文案。
const DefaultExplanation = "Recommended based on your viewing preferences and interests."

// Template 根据主导因子生成确定性的解释文案。
func Template(factor string, score float64, components map[string]float64, history []string, meta map[string]any) string {
	switch factor {
	case core.ComponentCollaborative:
		return fmt.Sprintf(
			"Recommended because %d%% of viewers with taste similar to yours rated this highly.",
			percent(score))

	case core.ComponentContent:
		if len(history) == 0 {
			return "Recommended based on matching genres and themes you prefer."
		}
		genres := core.MetaStrings(meta, core.MetaGenres)
		if len(genres) > 2 {
			genres = genres[:2]
		}
		if len(genres) > 0 {
			return fmt.Sprintf(
				"Recommended because you enjoyed %s. This %s title shares similar themes and style.",
				history[0], strings.Join(genres, ", "))
		}
		return fmt.Sprintf(
			"Recommended because you enjoyed %s. It has similar content and themes.", history[0])

	case core.ComponentGraph:
		return "Recommended through connections between this title and your viewing history, " +
			"such as shared cast, directors and themes."

	case core.ComponentSentiment:
		s := components[core.ComponentSentiment]
		if s > 0.7 {
			return fmt.Sprintf(
				"Highly recommended! Viewers praise this title in their reviews. Sentiment score: %d%%.",
				percent(s))
		}
		return "Recommended based on positive viewer sentiment and critical acclaim."

	case core.ComponentPopularity:
		return "Trending now! This title is being watched and highly rated by many viewers with interests like yours."

	case core.ComponentContext:
		return "Recommended as a great fit for your current context."

	default:
		return DefaultExplanation
	}
}

// ComponentBreakdown 为每个组件生成一句贡献说明（只包含已知组件）。
func ComponentBreakdown(components map[string]float64) map[string]string {
	out := make(map[string]string, len(components))
	for comp, score := range components {
		p := percent(score)
		switch comp {
		case core.ComponentCollaborative:
			out[comp] = fmt.Sprintf("Similar users' preferences contribute %d%% to this recommendation", p)
		case core.ComponentContent:
			out[comp] = fmt.Sprintf("Content similarity to your favorites: %d%%", p)
		case core.ComponentGraph:
			out[comp] = fmt.Sprintf("Graph connections (cast, directors, themes): %d%%", p)
		case core.ComponentSentiment:
			out[comp] = fmt.Sprintf("Positive viewer sentiment boost: %d%%", p)
		case core.ComponentPopularity:
			out[comp] = fmt.Sprintf("Current popularity factor: %d%%", p)
		case core.ComponentContext:
			out[comp] = fmt.Sprintf("Contextual relevance: %d%%", p)
		}
	}
	return out
}

// percent 截断为整数百分比
func percent(score float64) int {
	return int(core.ClampUnit(score) * 100)
}
