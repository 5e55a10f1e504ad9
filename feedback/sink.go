// Package feedback 收集用户对推荐结果的反馈（点击、评分、忽略等）。
//
// 记录是尽力而为的：Sink 的错误只记录日志，不影响推荐请求。
package feedback

import (
	"context"
	"time"
)

// 常用反馈类型。
const (
	TypeClick     = "click"
	TypeRate      = "rate"
	TypeWatch     = "watch"
	TypeDismiss   = "dismiss"
	TypeWatchlist = "watchlist"
)

// Event 是一条反馈事件。
type Event struct {
	UserID    string         `json:"user_id"`
	ItemID    string         `json:"item_id"`
	Type      string         `json:"type"`
	Accepted  bool           `json:"accepted"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink 接收反馈事件。
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// SinkFunc 把函数适配为 Sink。
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Record(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// MultiSink 依次写入多个 Sink，返回第一个错误，但每个 Sink 都会被调用。
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, ev Event) error {
	var first error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
