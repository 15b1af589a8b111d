package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// productRepositoryInMemory хранит товары в памяти. Все изменения остатков идут
// под одной блокировкой записи, поэтому списания сериализованы.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
	bySKU map[string]string
}

// NewProductRepository возвращает in-memory репозиторий товаров.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items: make(map[string]domain.Product),
		bySKU: make(map[string]string),
	}
}

// Create сохраняет новый товар, если ID и SKU свободны.
func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.ErrDuplicateID
	}
	if _, taken := r.bySKU[product.SKU]; taken {
		return domain.ErrDuplicateSKU
	}
	r.items[product.ID] = product.Clone()
	r.bySKU[product.SKU] = product.ID
	return nil
}

// Get возвращает товар или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product.Clone(), nil
}

func (r *productRepositoryInMemory) GetBySKU(ctx context.Context, sku string) (domain.Product, error) {
	r.mu.RLock()
	id, ok := r.bySKU[sku]
	r.mu.RUnlock()
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return r.Get(ctx, id)
}

// List фильтрует, сортирует и режет на страницы.
func (r *productRepositoryInMemory) List(_ context.Context, filter domain.ProductFilter, page domain.PageRequest) (domain.Page[domain.Product], error) {
	r.mu.RLock()
	result := make([]domain.Product, 0, len(r.items))
	for _, product := range r.items {
		if filter.Match(product) {
			result = append(result, product.Clone())
		}
	}
	r.mu.RUnlock()

	if err := domain.ProductSortKeys.Sort(result, page); err != nil {
		return domain.Page[domain.Product]{}, err
	}
	return domain.Paginate(result, page), nil
}

// Update применяет fn к копии товара и сохраняет результат, если fn не вернула ошибку.
func (r *productRepositoryInMemory) Update(_ context.Context, id string, fn func(*domain.Product) error) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return domain.Product{}, err
	}
	next.ID = current.ID
	if next.SKU != current.SKU {
		if owner, taken := r.bySKU[next.SKU]; taken && owner != id {
			return domain.Product{}, domain.ErrDuplicateSKU
		}
		delete(r.bySKU, current.SKU)
		r.bySKU[next.SKU] = id
	}
	r.items[id] = next
	return next.Clone(), nil
}

// AdjustStock проверяет все изменения и только потом применяет их.
func (r *productRepositoryInMemory) AdjustStock(_ context.Context, adjustments []domain.StockAdjustment) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	staged := make(map[string]domain.Product, len(adjustments))
	order := make([]string, 0, len(adjustments))
	for _, adj := range adjustments {
		current, ok := staged[adj.ProductID]
		if !ok {
			current, ok = r.items[adj.ProductID]
			if !ok {
				return nil, domain.Describe(domain.ErrProductNotFound, "Product with ID %s not found", adj.ProductID)
			}
			order = append(order, adj.ProductID)
		}
		next, err := domain.ApplyStock(current, adj.Delta, now)
		if err != nil {
			return nil, err
		}
		staged[adj.ProductID] = next
	}

	result := make([]domain.Product, 0, len(order))
	for _, id := range order {
		r.items[id] = staged[id]
		result = append(result, staged[id].Clone())
	}
	return result, nil
}

// Categories возвращает категории активных товаров без повторов.
func (r *productRepositoryInMemory) Categories(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, product := range r.items {
		if product.IsActive() && product.Category != "" {
			seen[product.Category] = struct{}{}
		}
	}
	result := make([]string, 0, len(seen))
	for category := range seen {
		result = append(result, category)
	}
	slices.Sort(result)
	return result, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
