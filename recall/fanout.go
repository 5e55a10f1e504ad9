package recall

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/pkg/utils"
)

// MergeStrategy 决定重复 ID 如何合并。
type MergeStrategy string

const (
	// MergeFirst 按优先级顺序保留第一次出现的候选（默认）
	MergeFirst MergeStrategy = "first"
	// MergeUnion 保留第一次出现的候选，并把后续重复候选的组件分按最大值并入
	MergeUnion MergeStrategy = "union"
)

// 默认候选池参数
const (
	DefaultPoolSize      = 100
	DefaultTimeout       = 2 * time.Second
	DefaultSourceTimeout = 1500 * time.Millisecond
)

// Entry 是 Fanout 中的一个召回源及其配额。
type Entry struct {
	Source Source

	// Fraction 占候选池的比例，配额 = floor(PoolSize × Fraction)，Fraction > 0 时至少为 1
	Fraction float64

	// Priority 合并优先级，越小越优先；相同优先级按注册顺序
	Priority int
}

// SourceReport 记录单个召回源的执行情况，失败不会中断请求。
type SourceReport struct {
	Name      string
	Component string
	Allotment int
	Count     int
	Err       error
	Latency   time.Duration
}

func (r SourceReport) Failed() bool { return r.Err != nil }

// Result 是一次 fan-out 的结果：去重后的候选（按合并顺序）和每个源的执行报告（按优先级顺序）。
type Result struct {
	Candidates []*core.Candidate
	Reports    []SourceReport
}

// Failures 返回失败的召回源报告。
func (r *Result) Failures() []SourceReport {
	var out []SourceReport
	for _, rep := range r.Reports {
		if rep.Failed() {
			out = append(out, rep)
		}
	}
	return out
}

// Fanout 并发执行多个召回源，并合并结果。
// 支持整体超时、单源超时、限流和合并策略。
type Fanout struct {
	entries       []Entry
	poolSize      int
	timeout       time.Duration // 整体超时
	sourceTimeout time.Duration // 每个召回源的超时时间
	maxConcurrent int           // 最大并发数（0 表示无限制）
	merge         MergeStrategy
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

// FanoutOption 配置 Fanout。
type FanoutOption func(*Fanout)

func WithPoolSize(n int) FanoutOption {
	return func(f *Fanout) { f.poolSize = n }
}

func WithTimeout(d time.Duration) FanoutOption {
	return func(f *Fanout) { f.timeout = d }
}

func WithSourceTimeout(d time.Duration) FanoutOption {
	return func(f *Fanout) { f.sourceTimeout = d }
}

func WithMaxConcurrent(n int) FanoutOption {
	return func(f *Fanout) { f.maxConcurrent = n }
}

func WithMergeStrategy(s MergeStrategy) FanoutOption {
	return func(f *Fanout) { f.merge = s }
}

//nolint:gocritic // zerolog.Logger 按值传递
func WithLogger(l zerolog.Logger) FanoutOption {
	return func(f *Fanout) { f.logger = logging.WithComponent(l, "recall.fanout") }
}

func WithMetrics(m *metrics.Metrics) FanoutOption {
	return func(f *Fanout) { f.metrics = m }
}

// NewFanout 创建 Fanout。entries 按 Priority 稳定排序后固定下来。
func NewFanout(entries []Entry, opts ...FanoutOption) *Fanout {
	sorted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Source != nil {
			sorted = append(sorted, e)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	f := &Fanout{
		entries:       sorted,
		poolSize:      DefaultPoolSize,
		timeout:       DefaultTimeout,
		sourceTimeout: DefaultSourceTimeout,
		merge:         MergeFirst,
		logger:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fanout) Name() string { return "recall.fanout" }

// Entries 返回按优先级排序后的召回源。
func (f *Fanout) Entries() []Entry {
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Allotment 计算单个源的配额：floor(pool × fraction)，fraction > 0 时至少为 1。
func Allotment(pool int, fraction float64) int {
	if pool <= 0 || fraction <= 0 {
		return 0
	}
	n := int(float64(pool) * fraction)
	if n < 1 {
		n = 1
	}
	return n
}

// Generate 并发调用所有召回源并合并。单个源的失败或超时只记录在 Reports 中；
// 仅当调用方的 ctx 被取消时返回错误。
func (f *Fanout) Generate(ctx context.Context, req *core.Request) (*Result, error) {
	res := &Result{Reports: make([]SourceReport, len(f.entries))}
	if len(f.entries) == 0 {
		return res, ctx.Err()
	}

	fanCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		fanCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	var (
		slots = make([][]*core.Candidate, len(f.entries))
		mu    sync.Mutex
		eg, _ = errgroup.WithContext(fanCtx)
	)
	if f.maxConcurrent > 0 {
		eg.SetLimit(f.maxConcurrent)
	}

	for i, e := range f.entries {
		allot := Allotment(f.poolSize, e.Fraction)
		res.Reports[i] = SourceReport{Name: e.Source.Name(), Component: e.Source.Component(), Allotment: allot}
		if allot == 0 {
			continue
		}
		priority := i
		entry := e
		eg.Go(func() error {
			start := time.Now()
			cands, err := f.call(fanCtx, entry.Source, req, allot)
			latency := time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			rep := &res.Reports[priority]
			rep.Latency = latency
			if err != nil {
				rep.Err = core.WithCause(core.ErrSourceUnavailable, fmt.Errorf("%s: %w", entry.Source.Name(), err))
				return nil
			}
			if len(cands) > allot {
				cands = cands[:allot]
			}
			// 拷贝后再打 label，避免修改召回源持有的对象
			owned := make([]*core.Candidate, 0, len(cands))
			for _, c := range cands {
				if c == nil {
					continue
				}
				cp := c.Clone()
				cp.PutLabel(utils.LabelRecallSource, utils.Label{Value: entry.Source.Name(), Source: "recall"})
				cp.PutLabel(utils.LabelRecallPriority, utils.Label{Value: strconv.Itoa(priority), Source: "recall"})
				owned = append(owned, cp)
			}
			rep.Count = len(owned)
			slots[priority] = owned
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, rep := range res.Reports {
		if rep.Allotment == 0 {
			continue
		}
		f.metrics.ObserveSource(rep.Name, rep.Count, rep.Latency)
		if rep.Failed() {
			reason := failureReason(rep.Err)
			f.metrics.SourceFailure(rep.Name, reason)
			f.logger.Warn().
				Err(rep.Err).
				Str("source", rep.Name).
				Str("reason", reason).
				Str("user_id", req.UserID).
				Dur("latency", rep.Latency).
				Msg("candidate source failed")
		}
	}

	res.Candidates = f.mergeSlots(slots)
	return res, nil
}

// call 调用单个召回源，受单源超时约束；源即使忽略 ctx 也会在超时后被放弃。
// 召回源 panic 会被恢复并作为错误返回。
func (f *Fanout) call(ctx context.Context, src Source, req *core.Request, k int) ([]*core.Candidate, error) {
	if f.sourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.sourceTimeout)
		defer cancel()
	}

	type outcome struct {
		cands []*core.Candidate
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		cands, err := src.Fetch(ctx, req.UserID, k, req.Filters)
		ch <- outcome{cands: cands, err: err}
	}()

	select {
	case o := <-ch:
		return o.cands, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case core.IsModelNotReady(err):
		return "model_not_ready"
	default:
		return "error"
	}
}

// mergeSlots 按优先级顺序展开并去重。
func (f *Fanout) mergeSlots(slots [][]*core.Candidate) []*core.Candidate {
	total := 0
	for _, s := range slots {
		total += len(s)
	}
	all := make([]*core.Candidate, 0, total)
	for _, s := range slots {
		all = append(all, s...)
	}

	switch f.merge {
	case MergeUnion:
		return mergeUnion(all)
	default:
		return mergeFirst(all)
	}
}

// mergeFirst 按 ID 去重，保留第一个出现的（默认策略）。后续重复项只合并 labels。
func mergeFirst(all []*core.Candidate) []*core.Candidate {
	seen := make(map[string]*core.Candidate, len(all))
	out := make([]*core.Candidate, 0, len(all))
	for _, c := range all {
		if c == nil || c.ID == "" {
			continue
		}
		if old, ok := seen[c.ID]; ok {
			for k, v := range c.Labels {
				old.PutLabel(k, v)
			}
			continue
		}
		seen[c.ID] = c
		out = append(out, c)
	}
	return out
}

// mergeUnion 与 mergeFirst 位置相同，但重复项的组件分按最大值并入首个实例，元数据补齐缺失 key。
func mergeUnion(all []*core.Candidate) []*core.Candidate {
	seen := make(map[string]*core.Candidate, len(all))
	out := make([]*core.Candidate, 0, len(all))
	for _, c := range all {
		if c == nil || c.ID == "" {
			continue
		}
		old, ok := seen[c.ID]
		if !ok {
			seen[c.ID] = c
			out = append(out, c)
			continue
		}
		for comp, s := range c.Scores {
			if cur, exists := old.Scores[comp]; !exists || s > cur {
				old.SetScore(comp, s)
			}
		}
		for k, v := range c.Meta {
			if _, exists := old.Meta[k]; !exists {
				old.Meta[k] = v
			}
		}
		for k, v := range c.Labels {
			old.PutLabel(k, v)
		}
	}
	return out
}
