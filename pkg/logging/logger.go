// Package logging 提供基于 zerolog 的日志构造。
//
// 组件不使用全局 logger，由调用方注入 zerolog.Logger（按值传递），
// 组件内部再追加 component 字段：
//
//	logger := logging.New(logging.Config{Level: "info", Format: "json"})
//	fanLog := logging.WithComponent(logger, "recall.fanout")
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config 是日志配置。
type Config struct {
	// Level: trace / debug / info / warn / error，默认 info
	Level string `yaml:"level" json:"level" koanf:"level"`

	// Format: json / console，默认 json
	Format string `yaml:"format" json:"format" koanf:"format"`

	// Caller 是否输出调用位置
	Caller bool `yaml:"caller" json:"caller" koanf:"caller"`

	// Output 默认 os.Stderr
	Output io.Writer `yaml:"-" json:"-" koanf:"-"`
}

// DefaultConfig 返回默认日志配置。
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: os.Stderr}
}

// New 根据配置构造 logger。
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// ParseLevel 解析日志级别，无法识别时返回 info。
func ParseLevel(level string) zerolog.Level {
	if level == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithComponent 追加 component 字段。
//
//nolint:gocritic // zerolog.Logger 按值传递
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// Nop 返回丢弃所有输出的 logger，组件未注入 logger 时使用。
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
