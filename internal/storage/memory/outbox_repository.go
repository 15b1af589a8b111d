package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type outboxState int

const (
	outboxPending outboxState = iota
	outboxSent
	outboxFailed
)

type outboxEntry struct {
	msg      domain.OutboxMessage
	state    outboxState
	attempts int
}

// outboxRepositoryInMemory: журнал хранится в порядке Enqueue, отметки меняют state на месте.
type outboxRepositoryInMemory struct {
	mu    sync.RWMutex
	log   []*outboxEntry
	index map[string]*outboxEntry
}

// NewOutboxRepository создаёт outbox в памяти.
func NewOutboxRepository() *outboxRepositoryInMemory {
	return &outboxRepositoryInMemory{index: make(map[string]*outboxEntry)}
}

// Enqueue ставит событие в очередь; payload копируется.
func (r *outboxRepositoryInMemory) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, exists := r.index[msg.ID]; exists {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox: duplicate id %s", msg.ID)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)

	entry := &outboxEntry{msg: msg}
	r.log = append(r.log, entry)
	r.index[msg.ID] = entry
	return msg, nil
}

// PullPending отдаёт до limit pending-событий в порядке постановки.
func (r *outboxRepositoryInMemory) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.pending(limit), nil
}

func (r *outboxRepositoryInMemory) Stats(_ context.Context) (domain.OutboxStats, error) {
	pending := r.pending(0)
	stats := domain.OutboxStats{PendingCount: len(pending)}
	for _, msg := range pending {
		if stats.OldestPendingAt.IsZero() || msg.CreatedAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = msg.CreatedAt
		}
	}
	return stats, nil
}

func (r *outboxRepositoryInMemory) MarkSent(_ context.Context, id string) error {
	return r.settle(id, outboxSent)
}

func (r *outboxRepositoryInMemory) MarkFailed(_ context.Context, id string) error {
	return r.settle(id, outboxFailed)
}

// AllPending: все неотправленные события; нужен тестам сервисов.
func (r *outboxRepositoryInMemory) AllPending() []domain.OutboxMessage {
	return r.pending(0)
}

func (r *outboxRepositoryInMemory) settle(id string, state outboxState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOutboxMessageNotFound, id)
	}
	entry.state = state
	entry.attempts++
	return nil
}

// pending копирует pending-события; limit<=0 снимает ограничение.
func (r *outboxRepositoryInMemory) pending(limit int) []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.OutboxMessage
	for _, entry := range r.log {
		if entry.state != outboxPending {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, entry.msg)
	}
	return out
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
