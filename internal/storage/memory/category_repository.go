package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type categoryRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.Category
	bySlug map[string]string
}

// NewCategoryRepository возвращает in-memory репозиторий категорий.
func NewCategoryRepository() domain.CategoryRepository {
	return &categoryRepositoryInMemory{
		items:  make(map[string]domain.Category),
		bySlug: make(map[string]string),
	}
}

func (r *categoryRepositoryInMemory) Create(_ context.Context, category domain.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[category.ID]; exists {
		return domain.ErrDuplicateID
	}
	if _, taken := r.bySlug[category.Slug]; taken {
		return domain.ErrDuplicateSlug
	}
	r.items[category.ID] = category
	r.bySlug[category.Slug] = category.ID
	return nil
}

func (r *categoryRepositoryInMemory) Get(_ context.Context, id string) (domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	category, ok := r.items[id]
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	return category, nil
}

func (r *categoryRepositoryInMemory) GetBySlug(ctx context.Context, slug string) (domain.Category, error) {
	r.mu.RLock()
	id, ok := r.bySlug[slug]
	r.mu.RUnlock()
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	return r.Get(ctx, id)
}

func (r *categoryRepositoryInMemory) List(_ context.Context, filter domain.CategoryFilter, page domain.PageRequest) (domain.Page[domain.Category], error) {
	r.mu.RLock()
	result := make([]domain.Category, 0, len(r.items))
	for _, category := range r.items {
		if filter.Match(category) {
			result = append(result, category)
		}
	}
	r.mu.RUnlock()

	if err := domain.CategorySortKeys.Sort(result, page); err != nil {
		return domain.Page[domain.Category]{}, err
	}
	return domain.Paginate(result, page), nil
}

func (r *categoryRepositoryInMemory) All(_ context.Context) ([]domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Category, 0, len(r.items))
	for _, category := range r.items {
		result = append(result, category)
	}
	return result, nil
}

func (r *categoryRepositoryInMemory) Update(_ context.Context, id string, fn func(*domain.Category) error) (domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	next := current
	if err := fn(&next); err != nil {
		return domain.Category{}, err
	}
	next.ID = current.ID
	if next.Slug != current.Slug {
		if owner, taken := r.bySlug[next.Slug]; taken && owner != id {
			return domain.Category{}, domain.ErrDuplicateSlug
		}
		delete(r.bySlug, current.Slug)
		r.bySlug[next.Slug] = id
	}
	r.items[id] = next
	return next, nil
}

var _ domain.CategoryRepository = (*categoryRepositoryInMemory)(nil)
