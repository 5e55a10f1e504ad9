// Package breaker 封装 sony/gobreaker，为外部依赖（图召回服务、解释生成服务）提供熔断。
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/hybridrec/metrics"
)

// Config 是熔断器配置。
type Config struct {
	// MaxRequests 半开状态下允许的并发请求数
	MaxRequests uint32 `yaml:"max_requests" json:"max_requests" koanf:"max_requests"`

	// Interval 关闭状态下计数清零周期
	Interval time.Duration `yaml:"interval" json:"interval" koanf:"interval"`

	// Timeout 打开状态持续多久后进入半开
	Timeout time.Duration `yaml:"timeout" json:"timeout" koanf:"timeout"`

	// MinRequests 统计窗口内至少多少请求才会判断是否熔断
	MinRequests uint32 `yaml:"min_requests" json:"min_requests" koanf:"min_requests"`

	// FailureRatio 失败率达到该值时熔断
	FailureRatio float64 `yaml:"failure_ratio" json:"failure_ratio" koanf:"failure_ratio"`
}

// DefaultConfig 返回默认配置：10 个请求内失败率 ≥ 60% 熔断，30 秒后半开。
func DefaultConfig() Config {
	return Config{
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// New 创建熔断器。调用方取消（context.Canceled）不计为失败。
//
//nolint:gocritic // zerolog.Logger 按值传递
func New[T any](name string, cfg Config, logger zerolog.Logger, m *metrics.Metrics) *gobreaker.CircuitBreaker[T] {
	def := DefaultConfig()
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = def.FailureRatio
	}

	m.BreakerState(name, 0)
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state transition")
			m.BreakerState(name, StateValue(to))
		},
	})
}

// StateValue 把状态映射为指标值：0=closed, 1=half-open, 2=open
func StateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// IsOpen 判断错误是否来自熔断拒绝。
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
