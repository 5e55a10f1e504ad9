package feedback

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// DefaultTopic 是反馈事件默认主题。
const DefaultTopic = "hybridrec.feedback"

// PublisherSink 把反馈事件序列化为 JSON 发布到 watermill Publisher（NATS、Kafka、gochannel 等）。
type PublisherSink struct {
	publisher message.Publisher
	topic     string
}

func NewPublisherSink(p message.Publisher, topic string) *PublisherSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &PublisherSink{publisher: p, topic: topic}
}

func (s *PublisherSink) Record(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serialize feedback: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set("user_id", ev.UserID)
	msg.Metadata.Set("type", ev.Type)
	msg.SetContext(ctx)
	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return fmt.Errorf("publish feedback: %w", err)
	}
	return nil
}

// Close 关闭底层 Publisher。
func (s *PublisherSink) Close() error {
	return s.publisher.Close()
}

// Decode 解析 PublisherSink 发布的消息。
func Decode(msg *message.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ev, fmt.Errorf("decode feedback: %w", err)
	}
	return ev, nil
}
