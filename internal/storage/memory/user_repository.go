package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// userRepositoryInMemory хранит пользователей в памяти. Индекс email не
// очищается при деактивации: адрес остаётся занятым.
type userRepositoryInMemory struct {
	mu      sync.RWMutex
	items   map[string]domain.User
	byEmail map[string]string
}

// NewUserRepository возвращает in-memory репозиторий пользователей.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{
		items:   make(map[string]domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *userRepositoryInMemory) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[user.ID]; exists {
		return domain.ErrDuplicateID
	}
	email := domain.NormalizeEmail(user.Email)
	if _, taken := r.byEmail[email]; taken {
		return domain.ErrDuplicateEmail
	}
	r.items[user.ID] = user
	r.byEmail[email] = user.ID
	return nil
}

func (r *userRepositoryInMemory) Get(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.items[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *userRepositoryInMemory) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	r.mu.RUnlock()
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return r.Get(ctx, id)
}

func (r *userRepositoryInMemory) List(_ context.Context, filter domain.UserFilter, page domain.PageRequest) (domain.Page[domain.User], error) {
	r.mu.RLock()
	result := make([]domain.User, 0, len(r.items))
	for _, user := range r.items {
		if filter.Match(user) {
			result = append(result, user)
		}
	}
	r.mu.RUnlock()

	if err := domain.UserSortKeys.Sort(result, page); err != nil {
		return domain.Page[domain.User]{}, err
	}
	return domain.Paginate(result, page), nil
}

// Update применяет fn; при смене email проверяет, что адрес не принадлежит другому пользователю.
func (r *userRepositoryInMemory) Update(_ context.Context, id string, fn func(*domain.User) error) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	next := current
	if err := fn(&next); err != nil {
		return domain.User{}, err
	}
	next.ID = current.ID

	oldEmail := domain.NormalizeEmail(current.Email)
	newEmail := domain.NormalizeEmail(next.Email)
	if newEmail != oldEmail {
		if owner, taken := r.byEmail[newEmail]; taken && owner != id {
			return domain.User{}, domain.ErrDuplicateEmail
		}
		delete(r.byEmail, oldEmail)
		r.byEmail[newEmail] = id
	}
	r.items[id] = next
	return next, nil
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
