package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type historyRepository struct {
	db *sql.DB
}

// NewHistoryRepository создаёт PostgreSQL-реализацию HistoryRepository.
func NewHistoryRepository(store *Store) domain.HistoryRepository {
	return &historyRepository{db: store.DB()}
}

func (r *historyRepository) Append(ctx context.Context, change domain.StatusChange) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if change.Occurred.IsZero() {
		change.Occurred = nowUTC()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, reason, occurred)
		VALUES ($1,$2,$3,$4,$5)
	`, change.OrderID, string(change.From), string(change.To), change.Reason, change.Occurred.UTC()); err != nil {
		return fmt.Errorf("append status change: %w", err)
	}
	return nil
}

// List возвращает историю в порядке записи.
func (r *historyRepository) List(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, from_status, to_status, reason, occurred
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY occurred ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	changes := make([]domain.StatusChange, 0)
	for rows.Next() {
		var (
			change   domain.StatusChange
			from, to string
		)
		if err := rows.Scan(&change.OrderID, &from, &to, &change.Reason, &change.Occurred); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		change.From = domain.OrderStatus(from)
		change.To = domain.OrderStatus(to)
		change.Occurred = change.Occurred.UTC()
		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}
	return changes, nil
}

var _ domain.HistoryRepository = (*historyRepository)(nil)
