package orders

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Invoice: счёт по заказу.
type Invoice struct {
	InvoiceNumber string
	Order         domain.Order
	GeneratedAt   time.Time
}

// Get возвращает заказ по идентификатору.
func (e *Engine) Get(ctx context.Context, id string) (domain.Order, error) {
	order, err := e.orders.Get(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.Order{}, domain.Describe(domain.ErrOrderNotFound, "Order with ID %s not found", id)
		}
		return domain.Order{}, err
	}
	return order, nil
}

// List возвращает страницу заказов; по умолчанию новые первыми.
func (e *Engine) List(ctx context.Context, filter domain.OrderFilter, page domain.PageRequest) (domain.Page[domain.Order], error) {
	page, err := page.Normalize("createdAt", domain.SortDesc)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	if !domain.OrderSortKeys.Has(page.SortBy) {
		return domain.Page[domain.Order]{}, domain.InvalidSortKey(page.SortBy, domain.OrderSortKeys.Names())
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.Page[domain.Order]{}, domain.Validationf("Invalid order status: %s", filter.Status)
	}
	return e.orders.List(ctx, filter, page)
}

// Invoice формирует счёт; номер выводится из номера заказа.
func (e *Engine) Invoice(ctx context.Context, id string) (Invoice, error) {
	order, err := e.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	return Invoice{
		InvoiceNumber: order.InvoiceNumber(),
		Order:         order,
		GeneratedAt:   e.now(),
	}, nil
}

// History возвращает историю статусов заказа в порядке записи.
func (e *Engine) History(ctx context.Context, id string) ([]domain.StatusChange, error) {
	if _, err := e.Get(ctx, id); err != nil {
		return nil, err
	}
	if e.history == nil {
		return []domain.StatusChange{}, nil
	}
	return e.history.List(ctx, id)
}
