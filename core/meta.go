package core

import "github.com/rushteam/hybridrec/pkg/conv"

// 常用元数据 key。元数据只用于过滤、多样性与解释，不参与持久化。
const (
	MetaTitle          = "title"
	MetaGenres         = "genres"
	MetaReleaseYear    = "release_year"
	MetaRating         = "rating"     // 0-10
	MetaPopularity     = "popularity" // 0-100
	MetaRuntime        = "runtime"    // 分钟
	MetaMoods          = "moods"
	MetaCinematography = "cinematography_rating" // 0-5
	MetaSentiment      = "sentiment_score"       // 0-1
)

// MetaFloat 读取数值型元数据。
func MetaFloat(meta map[string]any, key string) (float64, bool) {
	if meta == nil {
		return 0, false
	}
	return conv.ToFloat64(meta[key])
}

// MetaStrings 读取字符串列表型元数据（genres / moods）。
func MetaStrings(meta map[string]any, key string) []string {
	if meta == nil {
		return nil
	}
	return conv.ToStringSlice(meta[key])
}

// MetaString 读取字符串型元数据。
func MetaString(meta map[string]any, key string) (string, bool) {
	if meta == nil {
		return "", false
	}
	return conv.ToString(meta[key])
}
