package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topics по умолчанию.
const (
	TopicOrderEvents     = "shop.order.events"
	TopicDeadLetterQueue = "shop.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderMessageID     = "x-message-id"
	HeaderReplayedAt    = "x-replayed-at"
)

// Envelope: формат сообщения в topic событий заказов.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// DeadLetter лежит в Payload конверта DLQ и хранит исходное событие вместе с причиной сбоя.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt string          `json:"dlq_published_at"`
}

// Key возвращает ключ партиционирования: события одного заказа попадают в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// ParseEnvelope разбирает сообщение topic событий.
func ParseEnvelope(value []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return envelope, nil
}

// ParseDeadLetter разбирает сообщение DLQ и возвращает исходное событие.
func ParseDeadLetter(value []byte) (DeadLetter, error) {
	envelope, err := ParseEnvelope(value)
	if err != nil {
		return DeadLetter{}, err
	}
	if len(envelope.Payload) == 0 {
		return DeadLetter{}, fmt.Errorf("dead letter envelope has no payload")
	}

	var letter DeadLetter
	if err := json.Unmarshal(envelope.Payload, &letter); err != nil {
		return DeadLetter{}, fmt.Errorf("failed to unmarshal dead letter: %w", err)
	}
	if len(letter.Payload) == 0 {
		return DeadLetter{}, fmt.Errorf("dead letter does not contain original event payload")
	}
	letter.OutboxID = firstNonEmpty(letter.OutboxID, envelope.ID)
	letter.AggregateType = firstNonEmpty(letter.AggregateType, envelope.AggregateType)
	letter.AggregateID = firstNonEmpty(letter.AggregateID, envelope.AggregateID)
	letter.EventType = firstNonEmpty(letter.EventType, envelope.EventType)
	return letter, nil
}

// Envelope восстанавливает конверт исходного события для повторной публикации.
func (d DeadLetter) Envelope(publishedAt time.Time) Envelope {
	return Envelope{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       d.Payload,
		PublishedAt:   publishedAt.UTC(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
