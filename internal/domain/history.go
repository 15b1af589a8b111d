package domain

import "time"

// StatusChange: запись истории статусов заказа.
type StatusChange struct {
	OrderID string
	// From пустой у записи о создании заказа.
	From     OrderStatus
	To       OrderStatus
	Reason   string
	Occurred time.Time
}
