package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage   DiscountType = "percentage"
	DiscountFixed        DiscountType = "fixed"
	DiscountFreeShipping DiscountType = "free_shipping"
)

type Coupon struct {
	ID              uuid.UUID
	Code            string
	Name            string
	DiscountType    DiscountType
	DiscountValue   decimal.Decimal
	MinimumAmount   decimal.Decimal
	MaximumDiscount decimal.NullDecimal
	UsageLimit      *int
	UsedCount       int
	ValidFrom       time.Time
	ValidUntil      time.Time
	IsActive        bool
}

type AppliedCoupon struct {
	ID             uuid.UUID
	CartID         uuid.UUID
	Coupon         Coupon
	DiscountAmount decimal.Decimal
	AppliedAt      time.Time
}

func (c *Coupon) IsValid(now time.Time) bool {
	if !c.IsActive || now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return false
	}
	return c.UsageLimit == nil || c.UsedCount < *c.UsageLimit
}

func (c *Coupon) CanBeUsed(cartTotal decimal.Decimal, now time.Time) bool {
	return c.IsValid(now) && cartTotal.GreaterThanOrEqual(c.MinimumAmount)
}

// CalculateDiscount returns zero for free shipping; shipping is priced separately.
func (c *Coupon) CalculateDiscount(cartTotal decimal.Decimal, now time.Time) decimal.Decimal {
	if !c.CanBeUsed(cartTotal, now) {
		return decimal.Zero
	}
	switch c.DiscountType {
	case DiscountPercentage:
		discount := cartTotal.Mul(c.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
		if c.MaximumDiscount.Valid && discount.GreaterThan(c.MaximumDiscount.Decimal) {
			discount = c.MaximumDiscount.Decimal
		}
		return discount
	case DiscountFixed:
		return decimal.Min(c.DiscountValue, cartTotal)
	}
	return decimal.Zero
}
