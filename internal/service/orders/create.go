package orders

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/textutil"
)

// ItemInput: позиция нового заказа.
type ItemInput struct {
	ProductID string
	Quantity  int
}

// CreateInput: данные для создания заказа.
type CreateInput struct {
	UserID          string
	Items           []ItemInput
	ShippingAddress string
	BillingAddress  string
	Notes           string
	CouponCode      string
	ShippingMethod  string
	PaymentMethod   string
}

// Create проверяет пользователя и товары, резервирует остатки одним пакетом,
// считает суммы по текущим ценам и сохраняет заказ в статусе pending.
func (e *Engine) Create(ctx context.Context, in CreateInput) (domain.Order, error) {
	user, err := e.customers.Get(ctx, in.UserID)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.Order{}, domain.Describe(domain.ErrUserNotFound, "User with ID %s not found", in.UserID)
		}
		return domain.Order{}, err
	}
	if !user.IsActive {
		return domain.Order{}, domain.Validationf("User %s is inactive", in.UserID)
	}
	if len(in.Items) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return domain.Order{}, domain.Validationf("Shipping address is required")
	}
	method, err := e.pricing.ParseShippingMethod(in.ShippingMethod)
	if err != nil {
		return domain.Order{}, err
	}
	payment := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(in.PaymentMethod)))
	if !payment.Valid() {
		return domain.Order{}, domain.Validationf("Invalid payment method: %s", in.PaymentMethod)
	}

	// Одинаковые товары в разных строках резервируются суммарно.
	requested := make(map[string]int, len(in.Items))
	var ids []string
	for i, item := range in.Items {
		if item.Quantity < 1 {
			return domain.Order{}, domain.Validationf("Item %d: quantity must be at least 1", i+1)
		}
		if _, seen := requested[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}

	products := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		product, err := e.products.Get(ctx, id)
		if err != nil {
			if domain.IsNotFound(err) {
				return domain.Order{}, domain.Describe(domain.ErrProductNotFound, "Product with ID %s not found", id)
			}
			return domain.Order{}, err
		}
		if !product.IsActive() {
			return domain.Order{}, domain.Validationf("Product %s is not available", product.Name)
		}
		if product.Stock < requested[id] {
			e.metrics.RecordStockRejected()
			return domain.Order{}, &domain.InsufficientStockError{
				ProductID:   id,
				ProductName: product.Name,
				Available:   product.Stock,
				Requested:   requested[id],
			}
		}
		products[id] = product
	}

	adjustments := make([]domain.StockAdjustment, 0, len(ids))
	restore := make([]domain.StockAdjustment, 0, len(ids))
	for _, id := range ids {
		adjustments = append(adjustments, domain.StockAdjustment{ProductID: id, Delta: -requested[id]})
		restore = append(restore, domain.StockAdjustment{ProductID: id, Delta: requested[id]})
	}
	// Между проверкой и списанием остаток мог измениться: AdjustStock проверит ещё раз.
	if _, err := e.products.AdjustStock(ctx, adjustments); err != nil {
		if domain.IsValidation(err) {
			e.metrics.RecordStockRejected()
		}
		return domain.Order{}, err
	}

	order, err := e.persistNew(ctx, in, method, payment, products)
	if err != nil {
		_ = e.releaseStock(ctx, restore, "")
		return domain.Order{}, err
	}

	if err := e.customers.RecordOrder(ctx, order.UserID, order.TotalAmount); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"user_id":  order.UserID,
		}).Warn("update user stats failed")
	}
	e.metrics.RecordOrderCreated(order.TotalAmount)
	e.recordChange(ctx, order, "", "order created")
	e.emit(ctx, order, EventOrderCreated, createdEvent(order))

	e.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total_amount": order.TotalAmount,
	}).Info("order created")
	return order, nil
}

func (e *Engine) persistNew(ctx context.Context, in CreateInput, method domain.ShippingMethod, payment domain.PaymentMethod, products map[string]domain.Product) (domain.Order, error) {
	now := e.now()
	items := make([]domain.OrderItem, 0, len(in.Items))
	for _, item := range in.Items {
		product := products[item.ProductID]
		items = append(items, domain.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			SKU:         product.SKU,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
		})
	}

	billing := strings.TrimSpace(in.BillingAddress)
	if billing == "" {
		billing = strings.TrimSpace(in.ShippingAddress)
	}
	order := domain.Order{
		ID:              e.newID(),
		UserID:          in.UserID,
		Items:           items,
		Status:          domain.OrderStatusPending,
		ShippingMethod:  method,
		PaymentMethod:   payment,
		CouponCode:      strings.ToUpper(strings.TrimSpace(in.CouponCode)),
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
		BillingAddress:  billing,
		Notes:           textutil.Sanitize(in.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := order.ApplyTotals(e.pricing); err != nil {
		return domain.Order{}, err
	}

	seq, err := e.orders.NextOrderNumber(ctx, now.Year())
	if err != nil {
		return domain.Order{}, fmt.Errorf("allocate order number: %w", err)
	}
	order.OrderNumber = domain.FormatOrderNumber(now.Year(), seq)

	if err := checkInvariants(order); err != nil {
		return domain.Order{}, err
	}
	if err := e.orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

// releaseStock возвращает товар на склад. Возврат выполняется и после отмены запроса.
func (e *Engine) releaseStock(ctx context.Context, restore []domain.StockAdjustment, orderID string) error {
	if _, err := e.products.AdjustStock(context.WithoutCancel(ctx), restore); err != nil {
		e.logger.WithError(err).WithField("order_id", orderID).Error("restore stock failed")
		return fmt.Errorf("restore stock: %w", err)
	}
	return nil
}
