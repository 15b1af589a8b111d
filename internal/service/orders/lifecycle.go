package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/textutil"
)

const (
	maxSaveAttempts = 3
	baseRetryDelay  = 10 * time.Millisecond
)

// StatusInput: запрос на смену статуса.
type StatusInput struct {
	Status         string
	TrackingNumber string
	Notes          *string
	Reason         string
}

// UpdateInput перечисляет изменяемые поля заказа в статусе pending; nil оставляет поле как есть.
type UpdateInput struct {
	ShippingAddress *string
	BillingAddress  *string
	Notes           *string
	ShippingMethod  *string
}

// UpdateStatus переводит заказ по таблице переходов. Переход в cancelled
// выполняется через Cancel, чтобы вернуть остатки на склад.
func (e *Engine) UpdateStatus(ctx context.Context, id string, in StatusInput) (domain.Order, error) {
	to, err := domain.ParseOrderStatus(in.Status)
	if err != nil {
		return domain.Order{}, err
	}
	if to == domain.OrderStatusCancelled {
		return e.Cancel(ctx, id, in.Reason)
	}

	var from domain.OrderStatus
	order, err := e.mutate(ctx, id, func(o *domain.Order) error {
		from = o.Status
		now := e.now()
		if err := o.TransitionTo(to, now); err != nil {
			return err
		}
		if tracking := strings.TrimSpace(in.TrackingNumber); tracking != "" {
			o.TrackingNumber = tracking
		}
		if in.Notes != nil {
			o.Notes = textutil.Sanitize(*in.Notes)
		}
		if to == domain.OrderStatusShipped {
			eta := e.pricing.EstimatedDelivery(o.ShippingMethod, now)
			o.EstimatedDeliveryDate = &eta
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	e.metrics.RecordTransition(string(from), string(to))
	e.recordChange(ctx, order, from, in.Reason)
	e.emit(ctx, order, EventOrderStatusChanged, transitionEvent(order, from, in.Reason))
	return order, nil
}

// Cancel отменяет заказ и возвращает зарезервированные остатки.
// Доставленный или уже отменённый заказ отменить нельзя.
func (e *Engine) Cancel(ctx context.Context, id, reason string) (domain.Order, error) {
	save := e.orders.Save
	txSaver, inTx := e.orders.(domain.RestockingOrderSaver)
	if inTx {
		save = func(ctx context.Context, o domain.Order) error {
			return txSaver.SaveWithRestock(ctx, o, restockFor(o))
		}
	}

	var from domain.OrderStatus
	order, err := e.mutateWith(ctx, id, save, func(o *domain.Order) error {
		switch o.Status {
		case domain.OrderStatusCancelled:
			return domain.ErrOrderAlreadyCancelled
		case domain.OrderStatusDelivered:
			return domain.ErrOrderDelivered
		}
		from = o.Status
		return o.TransitionTo(domain.OrderStatusCancelled, e.now())
	})
	if err != nil {
		return domain.Order{}, err
	}

	// Без общей транзакции остатки возвращаются после сохранения статуса:
	// повторная отмена не вернёт товар дважды.
	if !inTx {
		if err := e.releaseStock(ctx, restockFor(order), order.ID); err != nil {
			return order, fmt.Errorf("cancel order %s: %w", order.ID, err)
		}
	}

	if err := e.customers.RevertOrder(ctx, order.UserID, order.TotalAmount); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"user_id":  order.UserID,
		}).Warn("revert user stats failed")
	}

	e.metrics.RecordOrderCancelled()
	e.metrics.RecordTransition(string(from), string(domain.OrderStatusCancelled))
	e.recordChange(ctx, order, from, reason)
	e.emit(ctx, order, EventOrderCancelled, transitionEvent(order, from, reason))
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     from,
	}).Info("order cancelled")
	return order, nil
}

// Update меняет адреса, заметки и тариф доставки заказа в статусе pending.
func (e *Engine) Update(ctx context.Context, id string, in UpdateInput) (domain.Order, error) {
	var method domain.ShippingMethod
	if in.ShippingMethod != nil {
		parsed, err := e.pricing.ParseShippingMethod(*in.ShippingMethod)
		if err != nil {
			return domain.Order{}, err
		}
		method = parsed
	}
	if in.ShippingAddress != nil && strings.TrimSpace(*in.ShippingAddress) == "" {
		return domain.Order{}, domain.Validationf("Shipping address must not be empty")
	}

	order, err := e.mutate(ctx, id, func(o *domain.Order) error {
		if o.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotModifiable
		}
		if in.ShippingAddress != nil {
			o.ShippingAddress = strings.TrimSpace(*in.ShippingAddress)
		}
		if in.BillingAddress != nil {
			o.BillingAddress = strings.TrimSpace(*in.BillingAddress)
		}
		if in.Notes != nil {
			o.Notes = textutil.Sanitize(*in.Notes)
		}
		if method != "" && method != o.ShippingMethod {
			o.ShippingMethod = method
			if err := o.ApplyTotals(e.pricing); err != nil {
				return err
			}
		}
		o.UpdatedAt = e.now()
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	e.emit(ctx, order, EventOrderUpdated, updatedEvent(order))
	return order, nil
}

// mutate загружает заказ, применяет fn и сохраняет результат. При конфликте
// версий заказ перечитывается и fn применяется заново.
func (e *Engine) mutate(ctx context.Context, id string, fn func(*domain.Order) error) (domain.Order, error) {
	return e.mutateWith(ctx, id, e.orders.Save, fn)
}

// mutateWith работает как mutate, но пишет заказ через save.
func (e *Engine) mutateWith(ctx context.Context, id string, save func(context.Context, domain.Order) error, fn func(*domain.Order) error) (domain.Order, error) {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		order, err := e.Get(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		if err := fn(&order); err != nil {
			return domain.Order{}, err
		}
		if err := checkInvariants(order); err != nil {
			e.logger.WithError(err).WithField("order_id", id).Error("order invariants violated")
			return domain.Order{}, err
		}

		err = save(ctx, order)
		if err == nil {
			order.Version++
			return order, nil
		}
		if !domain.IsVersionConflict(err) {
			e.logger.WithError(err).WithFields(log.Fields{
				"order_id": id,
				"attempt":  attempt + 1,
			}).Error("failed to persist order")
			return domain.Order{}, fmt.Errorf("save order %s: %w", id, err)
		}

		e.logger.WithFields(log.Fields{
			"order_id": id,
			"attempt":  attempt + 1,
			"version":  order.Version,
		}).Warn("version conflict detected, retrying")

		delay := baseRetryDelay * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return domain.Order{}, errors.Join(ctx.Err(), domain.ErrOrderVersionConflict)
		case <-time.After(delay):
		}
	}
	return domain.Order{}, domain.ErrOrderVersionConflict
}

// restockFor возвращает позиции заказа на склад.
func restockFor(order domain.Order) []domain.StockAdjustment {
	quantities := order.Quantities()
	restock := make([]domain.StockAdjustment, 0, len(quantities))
	for productID, qty := range quantities {
		restock = append(restock, domain.StockAdjustment{ProductID: productID, Delta: qty})
	}
	return restock
}

// checkInvariants не даёт записать заказ с несходящимися суммами или без позиций.
func checkInvariants(order domain.Order) error {
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return fmt.Errorf("order %s: %w", order.ID, errors.Join(errs...))
	}
	return nil
}
