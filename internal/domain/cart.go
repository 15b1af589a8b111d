package domain

import "time"

// CartItem: позиция корзины.
type CartItem struct {
	ProductID   string
	ProductName string
	UnitPrice   int64
	Quantity    int
	TotalPrice  int64
}

// Cart: корзина покупателя. С заказами не связана.
type Cart struct {
	ID        string
	UserID    string
	Items     []CartItem
	Total     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone возвращает копию корзины.
func (c Cart) Clone() Cart {
	cp := c
	if c.Items != nil {
		cp.Items = make([]CartItem, len(c.Items))
		copy(cp.Items, c.Items)
	}
	return cp
}

// IndexOf возвращает позицию товара в корзине или -1.
func (c Cart) IndexOf(productID string) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Recalculate пересчитывает суммы строк и итог корзины.
func (c *Cart) Recalculate() {
	var total int64
	for i := range c.Items {
		c.Items[i].TotalPrice = c.Items[i].UnitPrice * int64(c.Items[i].Quantity)
		total += c.Items[i].TotalPrice
	}
	c.Total = total
}

// ItemCount: суммарное количество единиц товара.
func (c Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}
