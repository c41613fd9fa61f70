package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-checkout/internal/model"
)

var (
	ErrEmptyCart               = errors.New("cart is empty")
	ErrProductNotFound         = errors.New("product not found")
	ErrVariantNotFound         = errors.New("variant not found")
	ErrInvalidQuantity         = errors.New("quantity must be between 1 and 10000")
	ErrCartItemNotFound        = errors.New("cart item not found")
	ErrCouponNotFound          = errors.New("coupon not found")
	ErrCouponNotApplicable     = errors.New("coupon cannot be applied to this cart")
	ErrOrderNotFound           = errors.New("order not found")
	ErrOrderAccessDenied       = errors.New("access denied")
	ErrOrderNotCancellable     = errors.New("order cannot be cancelled")
	ErrOrderNotPayable         = errors.New("order can no longer be paid")
	ErrInvalidPaymentReference = errors.New("invalid payment intent")
	ErrPaymentNotCompleted     = errors.New("payment not completed")
	ErrDuplicateWebhookEvent   = errors.New("webhook event already processed")
)

type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

type InvalidTransitionError struct {
	From model.OrderStatus
	To   model.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}
