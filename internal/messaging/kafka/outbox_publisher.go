package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// sender реализуется *Producer.
type sender interface {
	Send(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// TopicPublisher заворачивает событие outbox в Envelope и отправляет в один topic.
type TopicPublisher struct {
	sender sender
	topic  string
	now    func() time.Time
}

// NewEventsPublisher пишет в topic событий заказов; пустой topic означает TopicOrderEvents.
func NewEventsPublisher(producer *Producer, topic string) *TopicPublisher {
	return newTopicPublisher(producer, topic, TopicOrderEvents)
}

// NewDLQPublisher пишет в topic недоставленных событий; пустой topic означает TopicDeadLetterQueue.
func NewDLQPublisher(producer *Producer, topic string) *TopicPublisher {
	return newTopicPublisher(producer, topic, TopicDeadLetterQueue)
}

func newTopicPublisher(producer *Producer, topic, fallback string) *TopicPublisher {
	if topic == "" {
		topic = fallback
	}
	p := &TopicPublisher{topic: topic, now: time.Now}
	if producer != nil {
		p.sender = producer
	}
	return p
}

func (p *TopicPublisher) Topic() string { return p.topic }

func (p *TopicPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p.sender == nil {
		return errors.New("kafka publisher has no producer")
	}

	value, err := json.Marshal(envelopeOf(msg, p.now()))
	if err != nil {
		return fmt.Errorf("encode envelope %s: %w", msg.ID, err)
	}
	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}
	return p.sender.Send(ctx, p.topic, key, value, map[string]string{
		HeaderEventType:     msg.EventType,
		HeaderAggregateType: msg.AggregateType,
		HeaderMessageID:     msg.ID,
	})
}

func envelopeOf(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt.UTC(),
	}
}

var _ domain.OutboxPublisher = (*TopicPublisher)(nil)
