package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type orderRepositoryInMemory struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	// sequence: последний выданный номер заказа по годам.
	sequence map[int]int64
}

// NewOrderRepository хранит заказы в памяти. Наружу отдаются только копии.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		orders:   make(map[string]domain.Order),
		sequence: make(map[int]int64),
	}
}

// Create сохраняет новый заказ; повтор ID даёт ErrDuplicateID.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.orders[order.ID]; taken {
		return domain.ErrDuplicateID
	}
	r.orders[order.ID] = order.Clone()
	return nil
}

// Get возвращает копию заказа.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if order, ok := r.orders[id]; ok {
		return order.Clone(), nil
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// List фильтрует, сортирует и режет заказы на страницы так же, как postgres.
func (r *orderRepositoryInMemory) List(_ context.Context, filter domain.OrderFilter, page domain.PageRequest) (domain.Page[domain.Order], error) {
	matched := r.snapshot(filter.Match)
	if err := domain.OrderSortKeys.Sort(matched, page); err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return domain.Paginate(matched, page), nil
}

// Save записывает заказ, если его Version совпадает с хранимой, и увеличивает её.
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	switch {
	case !ok:
		return domain.ErrOrderNotFound
	case stored.Version != order.Version:
		return domain.ErrOrderVersionConflict
	}
	order.Version++
	r.orders[order.ID] = order.Clone()
	return nil
}

// NextOrderNumber выдаёт следующий номер в пределах года, начиная с 1.
func (r *orderRepositoryInMemory) NextOrderNumber(_ context.Context, year int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sequence[year]++
	return r.sequence[year], nil
}

func (r *orderRepositoryInMemory) snapshot(keep func(domain.Order) bool) []domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if keep(order) {
			out = append(out, order.Clone())
		}
	}
	return out
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
