package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusProcessing, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusDelivered, OrderStatusRefunded, true},
		{OrderStatusDelivered, OrderStatusReturned, true},
		{OrderStatusDelivered, OrderStatusPending, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusCancelled, OrderStatusProcessing, false},
		{OrderStatusRefunded, OrderStatusReturned, false},
		{OrderStatusReturned, OrderStatusRefunded, false},
		{OrderStatusProcessing, OrderStatusPending, false},
		{OrderStatusPending, OrderStatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderStatus_TerminalStatesAcceptOnlyRefundOrReturn(t *testing.T) {
	all := []OrderStatus{
		OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled,
		OrderStatusRefunded, OrderStatusReturned,
	}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			if from.CanTransitionTo(to) {
				assert.Equal(t, OrderStatusDelivered, from)
				assert.Contains(t, []OrderStatus{OrderStatusRefunded, OrderStatusReturned}, to)
			}
		}
	}
	assert.False(t, OrderStatus("bogus").Valid())
}

func TestCart_TotalPrice_PrefersVariantPrice(t *testing.T) {
	variantID := uuid.New()
	price := EffectivePrice(decimal.RequireFromString("10.00"), decimal.NewNullDecimal(decimal.RequireFromString("12.50")))
	cart := &Cart{Items: []CartItem{
		{ProductID: uuid.New(), Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		{ProductID: uuid.New(), VariantID: &variantID, Quantity: 1, UnitPrice: price},
	}}
	assert.True(t, decimal.RequireFromString("32.50").Equal(cart.TotalPrice()))
	assert.Equal(t, 3, cart.TotalItems())

	fallback := EffectivePrice(decimal.RequireFromString("10.00"), decimal.NullDecimal{})
	assert.True(t, decimal.RequireFromString("10.00").Equal(fallback))
}

func TestOrderItem_Recalculate(t *testing.T) {
	item := OrderItem{Quantity: 3, UnitPrice: decimal.RequireFromString("4.99"), TotalPrice: decimal.NewFromInt(1)}
	item.Recalculate()
	assert.True(t, decimal.RequireFromString("14.97").Equal(item.TotalPrice))
}

func TestPaymentTransaction_NetAmount(t *testing.T) {
	tx := PaymentTransaction{
		Amount:        decimal.RequireFromString("100.00"),
		ProcessingFee: decimal.RequireFromString("2.90"),
		GatewayFees:   decimal.RequireFromString("0.30"),
	}
	assert.True(t, decimal.RequireFromString("96.80").Equal(tx.NetAmount()))
}

func TestOrder_Flags(t *testing.T) {
	o := &Order{Status: OrderStatusPending}
	assert.True(t, o.IsCancellable())
	assert.False(t, o.IsRefundable())

	o.Status = OrderStatusDelivered
	o.IsPaid = true
	assert.False(t, o.IsCancellable())
	assert.True(t, o.IsRefundable())

	o.CustomerFirst, o.CustomerLast = "Ada", "Lovelace"
	assert.Equal(t, "Ada Lovelace", o.CustomerName())
}

func TestSameVariant(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	a2 := a
	assert.True(t, SameVariant(nil, nil))
	assert.True(t, SameVariant(&a, &a2))
	assert.False(t, SameVariant(&a, &b))
	assert.False(t, SameVariant(&a, nil))
}

func TestCoupon_CalculateDiscount(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := Coupon{
		IsActive:   true,
		ValidFrom:  now.Add(-time.Hour),
		ValidUntil: now.Add(time.Hour),
	}

	pct := base
	pct.DiscountType = DiscountPercentage
	pct.DiscountValue = decimal.NewFromInt(10)
	pct.MaximumDiscount = decimal.NewNullDecimal(decimal.NewFromInt(5))
	assert.True(t, decimal.RequireFromString("3").Equal(pct.CalculateDiscount(decimal.NewFromInt(30), now)))
	assert.True(t, decimal.NewFromInt(5).Equal(pct.CalculateDiscount(decimal.NewFromInt(200), now)))

	fixed := base
	fixed.DiscountType = DiscountFixed
	fixed.DiscountValue = decimal.NewFromInt(25)
	assert.True(t, decimal.NewFromInt(20).Equal(fixed.CalculateDiscount(decimal.NewFromInt(20), now)))

	ship := base
	ship.DiscountType = DiscountFreeShipping
	assert.True(t, ship.CalculateDiscount(decimal.NewFromInt(50), now).IsZero())

	minimum := fixed
	minimum.MinimumAmount = decimal.NewFromInt(100)
	assert.True(t, minimum.CalculateDiscount(decimal.NewFromInt(99), now).IsZero())
}

func TestCoupon_IsValid(t *testing.T) {
	now := time.Now()
	limit := 2
	c := Coupon{IsActive: true, ValidFrom: now.Add(-time.Hour), ValidUntil: now.Add(time.Hour), UsageLimit: &limit}
	assert.True(t, c.IsValid(now))

	c.UsedCount = 2
	assert.False(t, c.IsValid(now))

	c.UsedCount = 0
	assert.False(t, c.IsValid(now.Add(2*time.Hour)))

	c.IsActive = false
	assert.False(t, c.IsValid(now))
}
