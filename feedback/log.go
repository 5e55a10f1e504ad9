package feedback

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/pkg/logging"
)

// LogSink 把反馈事件写入日志。
type LogSink struct {
	logger zerolog.Logger
}

//nolint:gocritic // zerolog.Logger 按值传递
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logging.WithComponent(logger, "feedback")}
}

func (s *LogSink) Record(_ context.Context, ev Event) error {
	s.logger.Info().
		Str("user_id", ev.UserID).
		Str("item_id", ev.ItemID).
		Str("type", ev.Type).
		Bool("accepted", ev.Accepted).
		Time("timestamp", ev.Timestamp).
		Interface("context", ev.Context).
		Msg("feedback")
	return nil
}
