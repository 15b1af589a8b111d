package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const cartColumns = `id, user_id, items, total, created_at, updated_at`

// cartItemRecord: позиция корзины в колонке items (JSONB).
type cartItemRecord struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	TotalPrice  int64  `json:"total_price"`
}

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) Create(ctx context.Context, cart domain.Cart) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	items, err := encodeCartItems(cart.Items)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO carts (`+cartColumns+`) VALUES ($1,$2,$3,$4,$5,$6)
	`, cart.ID, cart.UserID, items, cart.Total, cart.CreatedAt.UTC(), cart.UpdatedAt.UTC()); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateID
		}
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

func (r *cartRepository) Get(ctx context.Context, id string) (domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return scanCart(r.db.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id))
}

func (r *cartRepository) Update(ctx context.Context, id string, fn func(*domain.Cart) error) (domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var updated domain.Cart
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := scanCart(tx.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		next.ID = current.ID

		items, err := encodeCartItems(next.Items)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE carts SET user_id = $2, items = $3, total = $4, updated_at = $5 WHERE id = $1
		`, next.ID, next.UserID, items, next.Total, next.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("update cart: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return updated, nil
}

func (r *cartRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for cart delete: %w", err)
	}
	if affected == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}

func scanCart(row rowScanner) (domain.Cart, error) {
	var (
		c   domain.Cart
		raw []byte
	)
	if err := row.Scan(&c.ID, &c.UserID, &raw, &c.Total, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("scan cart: %w", err)
	}

	var records []cartItemRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart items: %w", err)
	}
	c.Items = make([]domain.CartItem, 0, len(records))
	for _, rec := range records {
		c.Items = append(c.Items, domain.CartItem{
			ProductID:   rec.ProductID,
			ProductName: rec.ProductName,
			UnitPrice:   rec.UnitPrice,
			Quantity:    rec.Quantity,
			TotalPrice:  rec.TotalPrice,
		})
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func encodeCartItems(items []domain.CartItem) (string, error) {
	records := make([]cartItemRecord, 0, len(items))
	for _, item := range items {
		records = append(records, cartItemRecord{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			TotalPrice:  item.TotalPrice,
		})
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode cart items: %w", err)
	}
	return string(raw), nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
