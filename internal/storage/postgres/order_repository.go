package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const orderColumns = `id, order_number, user_id, status, subtotal, tax, shipping_cost, discount, total_amount,
	shipping_method, payment_method, coupon_code, shipping_address, billing_address, notes,
	tracking_number, estimated_delivery_date, version, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		`,
			order.ID, order.OrderNumber, order.UserID, string(order.Status),
			order.Subtotal, order.Tax, order.ShippingCost, order.Discount, order.TotalAmount,
			string(order.ShippingMethod), string(order.PaymentMethod), order.CouponCode,
			order.ShippingAddress, order.BillingAddress, order.Notes, order.TrackingNumber,
			nullableTime(order.EstimatedDeliveryDate), order.Version, order.CreatedAt.UTC(), order.UpdatedAt.UTC(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateID
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return insertOrderItemsTx(ctx, tx, order)
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return domain.Order{}, err
	}
	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// List фильтрует в SQL, сортирует доменными ключами и подгружает позиции только для страницы.
func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter, page domain.PageRequest) (domain.Page[domain.Order], error) {
	if !domain.OrderSortKeys.Has(page.SortBy) {
		return domain.Page[domain.Order]{}, domain.InvalidSortKey(page.SortBy, domain.OrderSortKeys.Names())
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var where conditions
	if filter.UserID != "" {
		where.add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		where.add("status = $%d", string(filter.Status))
	}
	if filter.DateFrom != nil {
		where.add("created_at >= $%d", filter.DateFrom.UTC())
	}
	if filter.DateTo != nil {
		where.add("created_at <= $%d", filter.DateTo.UTC())
	}
	if filter.MinAmount != nil {
		where.add("total_amount >= $%d", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		where.add("total_amount <= $%d", *filter.MaxAmount)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders`+where.sql(), where.args...)
	if err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("iterate order rows: %w", err)
	}
	_ = rows.Close()

	if err := domain.OrderSortKeys.Sort(orders, page); err != nil {
		return domain.Page[domain.Order]{}, err
	}
	result := domain.Paginate(orders, page)
	for i := range result.Items {
		if result.Items[i].Items, err = r.loadItems(ctx, result.Items[i].ID); err != nil {
			return domain.Page[domain.Order]{}, err
		}
	}
	return result, nil
}

// Save обновляет заказ, если версия в базе совпадает с order.Version, и увеличивает её.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		return saveOrderTx(ctx, tx, order)
	})
}

// SaveWithRestock сохраняет заказ и возвращает остатки в одной транзакции.
func (r *orderRepository) SaveWithRestock(ctx context.Context, order domain.Order, restock []domain.StockAdjustment) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := saveOrderTx(ctx, tx, order); err != nil {
			return err
		}
		if len(restock) == 0 {
			return nil
		}
		if _, err := adjustStockTx(ctx, tx, restock); err != nil {
			return fmt.Errorf("restock order %s: %w", order.ID, err)
		}
		return nil
	})
}

func saveOrderTx(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $3,
		    subtotal = $4,
		    tax = $5,
		    shipping_cost = $6,
		    discount = $7,
		    total_amount = $8,
		    shipping_method = $9,
		    payment_method = $10,
		    coupon_code = $11,
		    shipping_address = $12,
		    billing_address = $13,
		    notes = $14,
		    tracking_number = $15,
		    estimated_delivery_date = $16,
		    version = version + 1,
		    updated_at = $17
		WHERE id = $1
		  AND version = $2
	`,
		order.ID, order.Version, string(order.Status),
		order.Subtotal, order.Tax, order.ShippingCost, order.Discount, order.TotalAmount,
		string(order.ShippingMethod), string(order.PaymentMethod), order.CouponCode,
		order.ShippingAddress, order.BillingAddress, order.Notes, order.TrackingNumber,
		nullableTime(order.EstimatedDeliveryDate), order.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := orderExistsTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return fmt.Errorf("replace order items: %w", err)
	}
	return insertOrderItemsTx(ctx, tx, order)
}

// NextOrderNumber атомарно увеличивает счётчик года через upsert.
func (r *orderRepository) NextOrderNumber(ctx context.Context, year int) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var next int64
	if err := r.db.QueryRowContext(ctx, `
		INSERT INTO order_number_counters (year, value) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET value = order_number_counters.value + 1
		RETURNING value
	`, year).Scan(&next); err != nil {
		return 0, fmt.Errorf("next order number: %w", err)
	}
	return next, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, product_name, sku, quantity, unit_price, total_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ProductID, &item.ProductName, &item.SKU, &item.Quantity, &item.UnitPrice, &item.TotalPrice,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func insertOrderItemsTx(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	for i, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, position, product_id, product_name, sku, quantity, unit_price, total_price
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			order.ID, i, item.ProductID, item.ProductName, item.SKU, item.Quantity, item.UnitPrice, item.TotalPrice,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func orderExistsTx(ctx context.Context, tx *sql.Tx, orderID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                                     domain.Order
		status, shippingMethod, paymentMethod string
		eta                                   sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &status,
		&o.Subtotal, &o.Tax, &o.ShippingCost, &o.Discount, &o.TotalAmount,
		&shippingMethod, &paymentMethod, &o.CouponCode,
		&o.ShippingAddress, &o.BillingAddress, &o.Notes, &o.TrackingNumber,
		&eta, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	o.ShippingMethod = domain.ShippingMethod(shippingMethod)
	o.PaymentMethod = domain.PaymentMethod(paymentMethod)
	if eta.Valid {
		t := eta.Time.UTC()
		o.EstimatedDeliveryDate = &t
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

var (
	_ domain.OrderRepository     = (*orderRepository)(nil)
	_ domain.RestockingOrderSaver = (*orderRepository)(nil)
)
