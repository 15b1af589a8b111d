package orders

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Типы событий заказа в outbox.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
	EventOrderUpdated       = "order.updated"
)

const aggregateOrder = "order"

// orderEvent: payload события заказа. Общие поля заполняет emit, остальные зависят от типа.
type orderEvent struct {
	OrderID   string             `json:"order_id"`
	Status    domain.OrderStatus `json:"status"`
	Version   int64              `json:"version"`
	Timestamp string             `json:"ts"`

	From           domain.OrderStatus    `json:"from,omitempty"`
	Reason         string                `json:"reason,omitempty"`
	TrackingNumber string                `json:"tracking_number,omitempty"`
	OrderNumber    string                `json:"order_number,omitempty"`
	UserID         string                `json:"user_id,omitempty"`
	TotalAmount    int64                 `json:"total_amount,omitempty"`
	Items          int                   `json:"items,omitempty"`
	ShippingMethod domain.ShippingMethod `json:"shipping_method,omitempty"`
}

func createdEvent(order domain.Order) orderEvent {
	return orderEvent{
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       len(order.Items),
	}
}

func transitionEvent(order domain.Order, from domain.OrderStatus, reason string) orderEvent {
	return orderEvent{From: from, Reason: reason, TrackingNumber: order.TrackingNumber}
}

func updatedEvent(order domain.Order) orderEvent {
	return orderEvent{ShippingMethod: order.ShippingMethod, TotalAmount: order.TotalAmount}
}

// emit кладёт событие в outbox. Ошибки только логируются: заказ к этому моменту уже сохранён.
func (e *Engine) emit(ctx context.Context, order domain.Order, eventType string, event orderEvent) {
	if e.outbox == nil {
		return
	}
	event.OrderID = order.ID
	event.Status = order.Status
	event.Version = order.Version
	event.Timestamp = order.UpdatedAt.Format(time.RFC3339Nano)

	entry := e.logger.WithFields(log.Fields{"order_id": order.ID, "event": eventType})
	data, err := json.Marshal(event)
	if err != nil {
		entry.WithError(err).Error("encode order event failed")
		return
	}
	_, err = e.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     e.now(),
	})
	if err != nil {
		entry.WithError(err).Error("enqueue order event failed")
		return
	}
	e.metrics.RecordOutboxEvent()
}

// recordChange дописывает переход в историю статусов, если она подключена.
func (e *Engine) recordChange(ctx context.Context, order domain.Order, from domain.OrderStatus, reason string) {
	if e.history == nil {
		return
	}
	err := e.history.Append(ctx, domain.StatusChange{
		OrderID:  order.ID,
		From:     from,
		To:       order.Status,
		Reason:   reason,
		Occurred: order.UpdatedAt,
	})
	if err != nil {
		e.logger.WithError(err).WithField("order_id", order.ID).Warn("append status history failed")
		return
	}
	e.metrics.RecordHistoryEvent()
}
