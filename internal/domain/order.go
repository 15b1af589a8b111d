package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан, остатки зарезервированы.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed: заказ подтверждён магазином.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing: заказ собирается на складе.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped: заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered: заказ получен покупателем.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled: заказ отменён, резерв возвращён на склад.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded: деньги за доставленный заказ возвращены.
	OrderStatusRefunded OrderStatus = "refunded"
)

// orderTransitions: таблица допустимых переходов. Отсутствие ключа или пустой
// список означает терминальный статус.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCancelled:  nil,
	OrderStatusRefunded:   nil,
}

// ParseOrderStatus приводит строку к OrderStatus.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", Validationf("Invalid order status: %s", raw)
	}
	return status, nil
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// IsTerminal сообщает, что из статуса нет переходов.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// NextStatuses возвращает копию списка допустимых следующих статусов.
func NextStatuses(from OrderStatus) []OrderStatus {
	next := orderTransitions[from]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition проверяет переход по таблице.
func CanTransition(from, to OrderStatus) bool {
	for _, candidate := range orderTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// PaymentMethod: способ оплаты, указанный покупателем. Оплата не проводится.
type PaymentMethod string

const (
	PaymentMethodCreditCard     PaymentMethod = "credit_card"
	PaymentMethodDebitCard      PaymentMethod = "debit_card"
	PaymentMethodPayPal         PaymentMethod = "paypal"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// Valid проверяет способ оплаты; пустое значение допустимо.
func (m PaymentMethod) Valid() bool {
	switch m {
	case "", PaymentMethodCreditCard, PaymentMethodDebitCard, PaymentMethodPayPal,
		PaymentMethodBankTransfer, PaymentMethodCashOnDelivery:
		return true
	default:
		return false
	}
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ProductID: ссылка на товар каталога.
	ProductID string
	// ProductName и SKU фиксируются на момент заказа.
	ProductName string
	SKU         string
	// Quantity: количество единиц товара, не меньше 1.
	Quantity int
	// UnitPrice: цена за единицу в центах на момент заказа.
	UnitPrice int64
	// TotalPrice = UnitPrice * Quantity.
	TotalPrice int64
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID                    string
	OrderNumber           string
	UserID                string
	Items                 []OrderItem
	Subtotal              int64
	Tax                   int64
	ShippingCost          int64
	Discount              int64
	TotalAmount           int64
	Status                OrderStatus
	ShippingMethod        ShippingMethod
	PaymentMethod         PaymentMethod
	CouponCode            string
	ShippingAddress       string
	BillingAddress        string
	Notes                 string
	TrackingNumber        string
	EstimatedDeliveryDate *time.Time
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	cp := o
	if o.Items != nil {
		cp.Items = make([]OrderItem, len(o.Items))
		copy(cp.Items, o.Items)
	}
	if o.EstimatedDeliveryDate != nil {
		eta := *o.EstimatedDeliveryDate
		cp.EstimatedDeliveryDate = &eta
	}
	return cp
}

// Quantities суммирует количество по товарам (одинаковые товары в разных строках складываются).
func (o Order) Quantities() map[string]int {
	out := make(map[string]int, len(o.Items))
	for _, item := range o.Items {
		out[item.ProductID] += item.Quantity
	}
	return out
}

// ApplyTotals пересчитывает суммы заказа по позициям и прайсингу.
func (o *Order) ApplyTotals(p Pricing) error {
	var subtotal int64
	for i := range o.Items {
		o.Items[i].TotalPrice = o.Items[i].UnitPrice * int64(o.Items[i].Quantity)
		subtotal += o.Items[i].TotalPrice
	}
	totals, err := p.Quote(subtotal, o.ShippingMethod, o.CouponCode)
	if err != nil {
		return err
	}
	o.Subtotal = totals.Subtotal
	o.Tax = totals.Tax
	o.ShippingCost = totals.Shipping
	o.Discount = totals.Discount
	o.TotalAmount = totals.Total
	return nil
}

// TransitionTo переводит заказ в новый статус, если переход разрешён таблицей.
// При ошибке заказ не меняется.
func (o *Order) TransitionTo(to OrderStatus, now time.Time) error {
	if !to.Valid() {
		return Validationf("Invalid order status: %s", to)
	}
	if !CanTransition(o.Status, to) {
		return &InvalidTransitionError{From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, fmt.Errorf("order %s: user_id is required", o.ID))
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	// Сверяем суммы: строка = qty * price, subtotal = сумма строк.
	var calc int64
	for i, item := range o.Items {
		if item.Quantity < 1 {
			errs = append(errs, fmt.Errorf("item %d: quantity must be at least 1", i))
		}
		if item.UnitPrice < 0 {
			errs = append(errs, fmt.Errorf("item %d: unit price must be non-negative", i))
		}
		if item.TotalPrice != item.UnitPrice*int64(item.Quantity) {
			errs = append(errs, fmt.Errorf("item %d: total price does not match quantity * unit price", i))
		}
		calc += item.TotalPrice
	}
	if calc != o.Subtotal {
		errs = append(errs, fmt.Errorf("subtotal %d does not match items sum %d", o.Subtotal, calc))
	}
	if o.Discount < 0 || o.Discount > o.Subtotal {
		errs = append(errs, fmt.Errorf("discount %d is out of range", o.Discount))
	}
	if want := o.Subtotal + o.Tax + o.ShippingCost - o.Discount; want != o.TotalAmount {
		errs = append(errs, fmt.Errorf("total amount %d does not match computed %d", o.TotalAmount, want))
	}

	return errs
}

// InvoiceNumber выводит номер счёта из номера заказа: ORD-2024-001 -> INV-2024-001.
func (o Order) InvoiceNumber() string {
	return "INV-" + strings.TrimPrefix(o.OrderNumber, "ORD-")
}

// FormatOrderNumber собирает номер заказа из года и порядкового номера.
func FormatOrderNumber(year int, seq int64) string {
	return fmt.Sprintf("ORD-%d-%03d", year, seq)
}
