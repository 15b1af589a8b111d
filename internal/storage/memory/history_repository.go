package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// historyRepositoryInMemory хранит историю статусов заказов в памяти.
type historyRepositoryInMemory struct {
	mu      sync.RWMutex
	changes map[string][]domain.StatusChange
}

// NewHistoryRepository создаёт in-memory реализацию HistoryRepository.
func NewHistoryRepository() domain.HistoryRepository {
	return &historyRepositoryInMemory{changes: make(map[string][]domain.StatusChange)}
}

// Append добавляет запись, сохраняя хронологический порядок.
func (r *historyRepositoryInMemory) Append(_ context.Context, change domain.StatusChange) error {
	if change.Occurred.IsZero() {
		change.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list := append(r.changes[change.OrderID], change)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Occurred.Before(list[j].Occurred)
	})
	r.changes[change.OrderID] = list
	return nil
}

// List возвращает историю заказа в хронологическом порядке.
func (r *historyRepositoryInMemory) List(_ context.Context, orderID string) ([]domain.StatusChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	changes := r.changes[orderID]
	result := make([]domain.StatusChange, len(changes))
	copy(result, changes)
	return result, nil
}

var _ domain.HistoryRepository = (*historyRepositoryInMemory)(nil)
