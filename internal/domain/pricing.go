package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ShippingMethod определяет тариф доставки.
type ShippingMethod string

const (
	ShippingStandard  ShippingMethod = "standard"
	ShippingExpress   ShippingMethod = "express"
	ShippingOvernight ShippingMethod = "overnight"
)

// Coupon задаёт скидку либо фиксированной суммой, либо процентом от subtotal.
type Coupon struct {
	AmountOff  int64
	PercentOff decimal.Decimal
}

// ShippingRate: стоимость и срок доставки для тарифа.
type ShippingRate struct {
	Fee  int64
	Days int
}

// Pricing: табличные правила расчёта суммы заказа.
type Pricing struct {
	TaxRate  decimal.Decimal
	Shipping map[ShippingMethod]ShippingRate
	Coupons  map[string]Coupon
}

// Totals: разбивка суммы заказа в центах.
type Totals struct {
	Subtotal int64
	Tax      int64
	Shipping int64
	Discount int64
	Total    int64
}

// DefaultPricing возвращает стандартные правила: налог 8%, три тарифа доставки и купоны.
func DefaultPricing() Pricing {
	return Pricing{
		TaxRate: decimal.RequireFromString("0.08"),
		Shipping: map[ShippingMethod]ShippingRate{
			ShippingStandard:  {Fee: 999, Days: 5},
			ShippingExpress:   {Fee: 1499, Days: 2},
			ShippingOvernight: {Fee: 2999, Days: 1},
		},
		Coupons: map[string]Coupon{
			"SAVE5":     {AmountOff: 500},
			"SAVE10":    {AmountOff: 1000},
			"PERCENT10": {PercentOff: decimal.RequireFromString("0.10")},
		},
	}
}

// ParseShippingMethod нормализует тариф; пустая строка означает standard.
func (p Pricing) ParseShippingMethod(raw string) (ShippingMethod, error) {
	method := ShippingMethod(strings.ToLower(strings.TrimSpace(raw)))
	if method == "" {
		return ShippingStandard, nil
	}
	if _, ok := p.Shipping[method]; !ok {
		return "", Validationf("Invalid shipping method: %s", raw)
	}
	return method, nil
}

// Tax считает налог с округлением до цента (половина: от нуля).
func (p Pricing) Tax(subtotal int64) int64 {
	return decimal.NewFromInt(subtotal).Mul(p.TaxRate).Round(0).IntPart()
}

// Discount возвращает скидку по купону, не больше subtotal. Неизвестный купон скидки не даёт.
func (p Pricing) Discount(code string, subtotal int64) int64 {
	coupon, ok := p.Coupons[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return 0
	}
	discount := coupon.AmountOff
	if !coupon.PercentOff.IsZero() {
		discount = decimal.NewFromInt(subtotal).Mul(coupon.PercentOff).Round(0).IntPart()
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount
}

// Quote рассчитывает итог: subtotal + tax + shipping - discount.
func (p Pricing) Quote(subtotal int64, method ShippingMethod, coupon string) (Totals, error) {
	if method == "" {
		method = ShippingStandard
	}
	rate, ok := p.Shipping[method]
	if !ok {
		return Totals{}, Validationf("Invalid shipping method: %s", method)
	}
	t := Totals{
		Subtotal: subtotal,
		Tax:      p.Tax(subtotal),
		Shipping: rate.Fee,
		Discount: p.Discount(coupon, subtotal),
	}
	t.Total = t.Subtotal + t.Tax + t.Shipping - t.Discount
	return t, nil
}

// EstimatedDelivery возвращает ожидаемую дату доставки от момента отправки.
func (p Pricing) EstimatedDelivery(method ShippingMethod, shippedAt time.Time) time.Time {
	days := 5
	if rate, ok := p.Shipping[method]; ok {
		days = rate.Days
	}
	return shippedAt.AddDate(0, 0, days)
}

// FormatPrice форматирует центы как "$12.34".
func FormatPrice(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}
