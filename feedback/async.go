package feedback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/metrics"
	"github.com/rushteam/hybridrec/pkg/logging"
)

// DefaultBufferSize 是 AsyncSink 默认队列长度。
const DefaultBufferSize = 1024

// ErrSinkClosed 表示 AsyncSink 已关闭。
var ErrSinkClosed = errors.New("feedback: sink closed")

// AsyncSink 把事件放入有界队列，由单个 worker 转发给下游 Sink。
// 队列满时丢弃事件，Record 从不阻塞。
type AsyncSink struct {
	next    Sink
	queue   chan Event
	logger  zerolog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncSink 启动 worker；timeout 为下游单次写入超时（<=0 不限制）。
//
//nolint:gocritic // zerolog.Logger 按值传递
func NewAsyncSink(next Sink, size int, timeout time.Duration, logger zerolog.Logger, m *metrics.Metrics) *AsyncSink {
	if size <= 0 {
		size = DefaultBufferSize
	}
	s := &AsyncSink{
		next:    next,
		queue:   make(chan Event, size),
		logger:  logging.WithComponent(logger, "feedback.async"),
		metrics: m,
		timeout: timeout,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *AsyncSink) Record(_ context.Context, ev Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- ev:
		return nil
	default:
		s.metrics.Feedback("dropped")
		s.logger.Warn().Str("user_id", ev.UserID).Str("item_id", ev.ItemID).Msg("feedback queue full, event dropped")
		return nil
	}
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for ev := range s.queue {
		s.deliver(ev)
	}
}

func (s *AsyncSink) deliver(ev Event) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.next.Record(ctx, ev); err != nil {
		s.metrics.Feedback("error")
		s.logger.Error().Err(err).Str("user_id", ev.UserID).Str("item_id", ev.ItemID).Msg("feedback delivery failed")
		return
	}
	s.metrics.Feedback("recorded")
}

// Close 停止接收新事件，等待队列中的事件处理完毕。
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}
