package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type idempotencyRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.IdempotencyRecord
	now   func() time.Time
}

// NewIdempotencyRepository держит ответы POST /orders в памяти процесса.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyRepositoryInMemory{
		items: make(map[string]domain.IdempotencyRecord),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Reserve занимает ключ; просроченная запись перезаписывается.
func (r *idempotencyRepositoryInMemory) Reserve(_ context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	rec, err := domain.NewIdempotencyRecord(key, requestHash, ttlAt, r.now())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.items[rec.Key]; ok && !existing.Expired(rec.CreatedAt) {
		return cloneIdempotencyRecord(existing), existing.Collision(rec.RequestHash)
	}
	r.items[rec.Key] = rec
	return cloneIdempotencyRecord(rec), nil
}

func (r *idempotencyRepositoryInMemory) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.items[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return cloneIdempotencyRecord(rec), nil
}

// Complete сохраняет ответ для занятого ключа.
func (r *idempotencyRepositoryInMemory) Complete(_ context.Context, key string, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.items[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	rec.Complete(responseBody, httpStatus, r.now())
	r.items[key] = rec
	return nil
}

func (r *idempotencyRepositoryInMemory) Release(_ context.Context, key, requestHash string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.items[key]; ok && rec.ReleasableBy(requestHash) {
		delete(r.items, key)
	}
	return nil
}

// DeleteExpired удаляет до limit записей с ttl <= before, начиная с самых старых.
func (r *idempotencyRepositoryInMemory) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	expired := make([]domain.IdempotencyRecord, 0)
	for _, rec := range r.items {
		if rec.Expired(before) {
			expired = append(expired, rec)
		}
	}
	slices.SortFunc(expired, func(a, b domain.IdempotencyRecord) int { return a.TTLAt.Compare(b.TTLAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, rec := range expired {
		delete(r.items, rec.Key)
	}
	return len(expired), nil
}

func cloneIdempotencyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.ResponseBody = append([]byte(nil), src.ResponseBody...)
	return dst
}

var _ domain.IdempotencyRepository = (*idempotencyRepositoryInMemory)(nil)
