// Package orders реализует жизненный цикл заказа: резервирование остатков,
// расчёт сумм, переходы статусов и возврат товара на склад при отмене.
package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// Customers: то, что движку нужно от сервиса пользователей.
type Customers interface {
	Get(ctx context.Context, id string) (domain.User, error)
	// RecordOrder и RevertOrder поддерживают счётчики orderCount/totalSpent.
	RecordOrder(ctx context.Context, userID string, amount int64) error
	RevertOrder(ctx context.Context, userID string, amount int64) error
}

// Engine координирует заказы, товары и пользователей.
type Engine struct {
	orders    domain.OrderRepository
	products  domain.ProductRepository
	customers Customers
	history   domain.HistoryRepository
	outbox    domain.OutboxRepository
	pricing   domain.Pricing
	metrics   *metrics.OrderMetrics
	logger    *log.Entry
	now       func() time.Time
	newID     func() string
}

// Option настраивает Engine.
type Option func(*Engine)

// WithPricing задаёт правила расчёта суммы заказа.
func WithPricing(p domain.Pricing) Option {
	return func(e *Engine) { e.pricing = p }
}

// WithMetrics подключает метрики заказов.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHistory подключает хранилище истории статусов.
func WithHistory(h domain.HistoryRepository) Option {
	return func(e *Engine) { e.history = h }
}

// WithOutbox подключает transactional outbox для событий заказа.
func WithOutbox(o domain.OutboxRepository) Option {
	return func(e *Engine) { e.outbox = o }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine создаёт движок заказов.
func NewEngine(orders domain.OrderRepository, products domain.ProductRepository, customers Customers, opts ...Option) *Engine {
	e := &Engine{
		orders:    orders,
		products:  products,
		customers: customers,
		pricing:   domain.DefaultPricing(),
		logger:    log.New().WithField("component", "orders"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pricing возвращает действующие правила расчёта.
func (e *Engine) Pricing() domain.Pricing {
	return e.pricing
}
