// Package conv 提供类型转换、map/slice 转换等泛型工具。
// 元数据来自 JSON / YAML / Redis / Feast 等不同来源，数字类型并不统一，统一在这里收口。
package conv

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// ToFloat64 将 any 转为 float64。
// 支持各类整型/浮点、json.Number、数字字符串；bool 视为 1.0/0.0。
func ToFloat64(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	case bool:
		if val {
			return 1.0, true
		}
		return 0.0, true
	default:
		return 0, false
	}
}

// ToString 将 any 转为 string。
// 仅支持 string 类型，否则返回 ("", false)。
func ToString(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ToBool 将 any 转为 bool，支持 "true"/"1" 之类的字符串和数字。
func ToBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(val)
		return b, err == nil
	}
	if f, ok := ToFloat64(v); ok {
		return f != 0, true
	}
	return false, false
}

// ToStringSlice 将 []string / []any / 单个 string 统一转为 []string。
func ToStringSlice(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		return SliceAnyToString(val)
	default:
		return nil
	}
}

// ConvertSlice 将 []T 按 convert 转为 []U，convert 返回 false 的元素被跳过。
func ConvertSlice[T, U any](s []T, convert func(T) (U, bool)) []U {
	if s == nil {
		return nil
	}
	out := make([]U, 0, len(s))
	for _, v := range s {
		if u, ok := convert(v); ok {
			out = append(out, u)
		}
	}
	return out
}

// SliceAnyToString 将 []any 转为 []string。
// 元素为 string 直接保留，为数字时格式化为 "%.0f"。
func SliceAnyToString(raw []any) []string {
	return ConvertSlice(raw, func(e any) (string, bool) {
		if s, ok := e.(string); ok {
			return s, true
		}
		if f, ok := ToFloat64(e); ok {
			return fmt.Sprintf("%.0f", f), true
		}
		return "", false
	})
}

// ConfigGet 从 map[string]any（如 YAML/JSON 解析结果）按 key 取 T，取不到或类型不符时返回 defaultVal。
func ConfigGet[T any](m map[string]any, key string, defaultVal T) T {
	if m == nil {
		return defaultVal
	}
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	t, ok := v.(T)
	if !ok {
		return defaultVal
	}
	return t
}

// ConfigGetFloat64 从 config 取 float64，兼容 YAML 解析出的 int。
func ConfigGetFloat64(m map[string]any, key string, defaultVal float64) float64 {
	if m == nil {
		return defaultVal
	}
	if f, ok := ToFloat64(m[key]); ok {
		return f
	}
	return defaultVal
}

// ConfigGetInt64 从 config 取 int64。YAML/JSON 常得到 int 或 float64，此处兼容并统一为 int64。
func ConfigGetInt64(m map[string]any, key string, defaultVal int64) int64 {
	if m == nil {
		return defaultVal
	}
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case int:
		return int64(val)
	case int64:
		return val
	case float64:
		return int64(val)
	case float32:
		return int64(val)
	default:
		return defaultVal
	}
}
