package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestPricingQuote(t *testing.T) {
	pricing := domain.DefaultPricing()

	tests := []struct {
		name     string
		subtotal int64
		method   domain.ShippingMethod
		coupon   string
		want     domain.Totals
	}{
		{
			name:     "standard without coupon",
			subtotal: 9999,
			method:   domain.ShippingStandard,
			want:     domain.Totals{Subtotal: 9999, Tax: 800, Shipping: 999, Total: 11798},
		},
		{
			name:     "express with fixed coupon",
			subtotal: 5000,
			method:   domain.ShippingExpress,
			coupon:   "save10",
			want:     domain.Totals{Subtotal: 5000, Tax: 400, Shipping: 1499, Discount: 1000, Total: 5899},
		},
		{
			name:     "overnight with percent coupon",
			subtotal: 2345,
			method:   domain.ShippingOvernight,
			coupon:   "PERCENT10",
			want:     domain.Totals{Subtotal: 2345, Tax: 188, Shipping: 2999, Discount: 235, Total: 5297},
		},
		{
			name:     "unknown coupon gives no discount",
			subtotal: 1000,
			coupon:   "FREE",
			want:     domain.Totals{Subtotal: 1000, Tax: 80, Shipping: 999, Total: 2079},
		},
		{
			name:     "fixed coupon capped at subtotal",
			subtotal: 300,
			method:   domain.ShippingStandard,
			coupon:   "SAVE5",
			want:     domain.Totals{Subtotal: 300, Tax: 24, Shipping: 999, Discount: 300, Total: 1023},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pricing.Quote(tt.subtotal, tt.method, tt.coupon)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPricingShippingMethod(t *testing.T) {
	pricing := domain.DefaultPricing()

	method, err := pricing.ParseShippingMethod("")
	require.NoError(t, err)
	assert.Equal(t, domain.ShippingStandard, method)

	method, err = pricing.ParseShippingMethod("Express")
	require.NoError(t, err)
	assert.Equal(t, domain.ShippingExpress, method)

	_, err = pricing.ParseShippingMethod("teleport")
	assert.True(t, domain.IsValidation(err))

	_, err = pricing.Quote(100, "teleport", "")
	assert.True(t, domain.IsValidation(err))
}

func TestPricingEstimatedDelivery(t *testing.T) {
	pricing := domain.DefaultPricing()
	shipped := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, shipped.AddDate(0, 0, 5), pricing.EstimatedDelivery(domain.ShippingStandard, shipped))
	assert.Equal(t, shipped.AddDate(0, 0, 2), pricing.EstimatedDelivery(domain.ShippingExpress, shipped))
	assert.Equal(t, shipped.AddDate(0, 0, 1), pricing.EstimatedDelivery(domain.ShippingOvernight, shipped))
	assert.Equal(t, shipped.AddDate(0, 0, 5), pricing.EstimatedDelivery("unknown", shipped))
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "$99.99", domain.FormatPrice(9999))
	assert.Equal(t, "$0.05", domain.FormatPrice(5))
	assert.Equal(t, "$1200.00", domain.FormatPrice(120000))
}
