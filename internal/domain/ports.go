package domain

import (
	"context"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, msg OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// HistoryRepository хранит историю статусов заказа.
type HistoryRepository interface {
	Append(ctx context.Context, change StatusChange) error
	List(ctx context.Context, orderID string) ([]StatusChange, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	// Reserve занимает ключ под запрос. Живой ключ возвращается вместе с ошибкой
	// из IdempotencyRecord.Collision; просроченный занимается заново.
	Reserve(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	// Complete сохраняет ответ; статус выбирается по OutcomeStatus(httpStatus).
	Complete(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	// Release снимает незавершённую резервацию, чтобы запрос можно было повторить.
	// Завершённые записи и чужой requestHash не трогаются.
	Release(ctx context.Context, key, requestHash string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
