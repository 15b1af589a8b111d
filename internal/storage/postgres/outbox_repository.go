package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"

	defaultOutboxPullLimit = 100
)

// OutboxRepository хранит события заказов в таблице outbox_messages.
type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{db: store.DB()}
}

// Enqueue сохраняет событие в статусе pending; пустые ID и CreatedAt заполняются.
func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := nowUTC()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.CreatedAt = msg.CreatedAt.UTC()

	const q = `
		INSERT INTO outbox_messages
			(id, aggregate_type, aggregate_id, event_type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, q,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, outboxPending, msg.CreatedAt, now,
	); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox %s: %w", msg.EventType, err)
	}
	return msg, nil
}

// PullPending отдаёт не больше limit pending-событий в порядке создания.
func (r *OutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = defaultOutboxPullLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2`, outboxPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox: %w", err)
	}
	defer rows.Close()

	var batch []domain.OutboxMessage
	for rows.Next() {
		msg, err := scanOutboxMessage(rows)
		if err != nil {
			return nil, err
		}
		batch = append(batch, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read pending outbox: %w", err)
	}
	return batch, nil
}

func scanOutboxMessage(row rowScanner) (domain.OutboxMessage, error) {
	var msg domain.OutboxMessage
	if err := row.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload, &msg.CreatedAt); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("scan outbox message: %w", err)
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, nil
}

func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(created_at) FROM outbox_messages WHERE status = $1`, outboxPending,
	).Scan(&stats.PendingCount, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.transition(ctx, id, outboxSent)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.transition(ctx, id, outboxFailed)
}

// transition переводит событие в конечный статус и считает попытку доставки.
func (r *OutboxRepository) transition(ctx context.Context, id, status string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var updated string
	err := r.db.QueryRowContext(ctx, `
		UPDATE outbox_messages
		SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
		WHERE id = $1
		RETURNING id`, id, status, nowUTC()).Scan(&updated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %s", domain.ErrOutboxMessageNotFound, id)
	case err != nil:
		return fmt.Errorf("mark outbox %s as %s: %w", id, status, err)
	}
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
