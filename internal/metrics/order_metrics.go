package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики жизненного цикла заказов и складских резервов.
// Методы безопасно вызывать на nil.
type OrderMetrics struct {
	// Счётчики операций
	ordersCreated   prometheus.Counter
	ordersCancelled prometheus.Counter
	transitions     *prometheus.CounterVec

	// Ошибки резервирования
	stockRejected prometheus.Counter

	// Суммы заказов в центах
	orderValue prometheus.Histogram

	historyEvents prometheus.Counter
	outboxEvents  prometheus.Counter
}

// NewOrderMetrics регистрирует метрики заказов в registerer (nil: DefaultRegisterer).
func NewOrderMetrics(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_cancelled_total",
			Help: "Total number of orders cancelled with stock restored",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_status_transitions_total",
			Help: "Order status transitions by source and target status",
		}, []string{"from", "to"}),
		stockRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_stock_reservations_rejected_total",
			Help: "Order creations rejected because of insufficient stock",
		}),
		orderValue: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_order_total_amount_cents",
			Help:    "Distribution of order totals in cents",
			Buckets: prometheus.ExponentialBuckets(500, 2, 12),
		}),
		historyEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_order_history_events_total",
			Help: "Total number of order history entries recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_order_outbox_events_total",
			Help: "Total number of order events enqueued to the outbox",
		}),
	}
}

// RecordOrderCreated учитывает новый заказ и его сумму.
func (m *OrderMetrics) RecordOrderCreated(totalCents int64) {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
	m.orderValue.Observe(float64(totalCents))
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *OrderMetrics) RecordOrderCancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

// RecordTransition учитывает переход статуса.
func (m *OrderMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordStockRejected учитывает отказ из-за нехватки остатка.
func (m *OrderMetrics) RecordStockRejected() {
	if m == nil {
		return
	}
	m.stockRejected.Inc()
}

// RecordHistoryEvent увеличивает счётчик записей истории.
func (m *OrderMetrics) RecordHistoryEvent() {
	if m == nil {
		return
	}
	m.historyEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
