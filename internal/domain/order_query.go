package domain

import "time"

// OrderFilter: условия выборки заказов. Даты включительные.
type OrderFilter struct {
	UserID    string
	Status    OrderStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	MinAmount *int64
	MaxAmount *int64
}

// Match проверяет, подходит ли заказ под фильтр.
func (f OrderFilter) Match(o Order) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.DateFrom != nil && o.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && o.CreatedAt.After(*f.DateTo) {
		return false
	}
	if f.MinAmount != nil && o.TotalAmount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && o.TotalAmount > *f.MaxAmount {
		return false
	}
	return true
}

// OrderSortKeys: допустимые ключи сортировки заказов.
var OrderSortKeys = SortKeys[Order]{
	"createdAt":   func(a, b Order) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"updatedAt":   func(a, b Order) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
	"totalAmount": func(a, b Order) int { return compareInt(a.TotalAmount, b.TotalAmount) },
	"status":      func(a, b Order) int { return CompareText(string(a.Status), string(b.Status)) },
	"orderNumber": func(a, b Order) int { return CompareText(a.OrderNumber, b.OrderNumber) },
}
