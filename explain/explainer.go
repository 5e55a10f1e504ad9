package explain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pkg/breaker"
	"github.com/rushteam/hybridrec/pkg/logging"
)

// DefaultTimeout 是单条解释生成的默认超时。
const DefaultTimeout = 2 * time.Second

// 回退原因，同时作为指标 label。
const (
	ReasonNoGenerator = "no_generator"
	ReasonTimeout     = "timeout"
	ReasonError       = "error"
	ReasonEmpty       = "empty"
	ReasonCircuitOpen = "circuit_open"
)

// Input 是生成一条解释所需的全部信息。
type Input struct {
	ItemID     string
	Components map[string]float64
	History    []string // 用户近期喜爱的标题，越靠前越重要
	Meta       map[string]any
}

// Explainer 为推荐结果生成解释文案。
//
// 配置了 Generator 时优先调用外部生成服务；超时、失败、返回空文本或熔断时
// 回退到确定性模板。Explain 永远不返回错误。
type Explainer struct {
	generator Generator
	timeout   time.Duration
	cb        *gobreaker.CircuitBreaker[string]
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// Option 配置 Explainer。
type Option func(*options)

type options struct {
	generator Generator
	timeout   time.Duration
	breaker   breaker.Config
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func WithGenerator(g Generator) Option {
	return func(o *options) { o.generator = g }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithBreaker(cfg breaker.Config) Option {
	return func(o *options) { o.breaker = cfg }
}

//nolint:gocritic // zerolog.Logger 按值传递
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func NewExplainer(opts ...Option) *Explainer {
	o := options{
		timeout: DefaultTimeout,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	logger := logging.WithComponent(o.logger, "explain")
	e := &Explainer{
		generator: o.generator,
		timeout:   o.timeout,
		logger:    logger,
		metrics:   o.metrics,
	}
	if o.generator != nil {
		e.cb = breaker.New[string]("explain-generator", o.breaker, logger, o.metrics)
	}
	return e
}

// HasGenerator 报告是否配置了外部生成服务。
func (e *Explainer) HasGenerator() bool {
	return e != nil && e.generator != nil
}

// Explain 返回解释文案。
func (e *Explainer) Explain(ctx context.Context, in Input) string {
	factor, score := DominantFactor(in.Components)
	fallback := func(reason string, err error) string {
		e.metrics.ExplanationFallback(reason)
		if err != nil {
			e.logger.Debug().Err(err).
				Str("item_id", in.ItemID).
				Str("reason", reason).
				Msg("explanation fell back to template")
		}
		return Template(factor, score, in.Components, in.History, in.Meta)
	}

	if e == nil || e.generator == nil {
		if e != nil {
			e.metrics.ExplanationFallback(ReasonNoGenerator)
		}
		return Template(factor, score, in.Components, in.History, in.Meta)
	}

	text, err := e.cb.Execute(func() (string, error) {
		return e.generate(ctx, BuildPrompt(in))
	})
	switch {
	case err == nil && text == "":
		return fallback(ReasonEmpty, nil)
	case err == nil:
		return text
	case breaker.IsOpen(err):
		return fallback(ReasonCircuitOpen, err)
	case core.IsExplanationTimeout(err):
		return fallback(ReasonTimeout, err)
	default:
		return fallback(ReasonError, err)
	}
}

// generate 在独立 goroutine 中调用生成服务，超时后不再等待其返回。
func (e *Explainer) generate(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("generator panic: %v", r)}
			}
		}()
		text, err := e.generator.Generate(ctx, p)
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return "", core.WithCause(core.ErrExplanationTimeout, r.err)
		}
		return r.text, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", core.WithCause(core.ErrExplanationTimeout, ctx.Err())
		}
		return "", ctx.Err()
	}
}

// DominantFactor 返回组件分最高的组件及其分数。
// 平局按固定组件顺序取靠前者；未知组件排在已知组件之后并按名称排序。
// 没有组件或最高分不大于 0 时返回空字符串。
func DominantFactor(components map[string]float64) (string, float64) {
	order := core.Components()
	known := make(map[string]bool, len(order))
	for _, c := range order {
		known[c] = true
	}
	var extra []string
	for c := range components {
		if !known[c] {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	best, bestScore := "", 0.0
	for _, c := range order {
		v, ok := components[c]
		if !ok {
			continue
		}
		if v > bestScore {
			best, bestScore = c, v
		}
	}
	return best, bestScore
}
