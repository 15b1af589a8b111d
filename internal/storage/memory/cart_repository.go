package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type cartRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Cart
}

// NewCartRepository возвращает in-memory репозиторий корзин.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{items: make(map[string]domain.Cart)}
}

func (r *cartRepositoryInMemory) Create(_ context.Context, cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[cart.ID]; exists {
		return domain.ErrDuplicateID
	}
	r.items[cart.ID] = cart.Clone()
	return nil
}

func (r *cartRepositoryInMemory) Get(_ context.Context, id string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.items[id]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (r *cartRepositoryInMemory) Update(_ context.Context, id string, fn func(*domain.Cart) error) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return domain.Cart{}, err
	}
	next.ID = current.ID
	r.items[id] = next
	return next.Clone(), nil
}

func (r *cartRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrCartNotFound
	}
	delete(r.items, id)
	return nil
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
