package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-ecommerce-checkout/internal/model"
	"github.com/flicky/go-ecommerce-checkout/internal/ordernum"
	"github.com/flicky/go-ecommerce-checkout/internal/repository"
)

const orderNumberAttempts = 3

// OrderInput is what the customer supplies at checkout on top of the cart.
type OrderInput struct {
	Shipping      model.ShippingInfo
	Billing       model.ShippingInfo
	Notes         string
	PaymentMethod string
}

// Ledger creates order snapshots and owns every status change.
type Ledger struct {
	numbers *ordernum.Generator
	now     func() time.Time
}

func NewLedger(numbers *ordernum.Generator) *Ledger {
	return &Ledger{numbers: numbers, now: time.Now}
}

// CreateOrder freezes cart into a pending order. Item prices, names and SKUs
// are taken from the cart as given, so callers pass values read under lock.
// The totals are computed here once and never again.
func (l *Ledger) CreateOrder(ctx context.Context, store repository.Store, cart *model.Cart, customer *model.User, in OrderInput) (*model.Order, error) {
	if cart == nil || len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	order := &model.Order{
		UserID:        cart.UserID,
		Status:        model.OrderStatusPending,
		PaymentMethod: in.PaymentMethod,
		Shipping:      in.Shipping,
		Billing:       in.Billing,
		Notes:         in.Notes,
		TaxAmount:     decimal.Zero,
		ShippingCost:  decimal.Zero,
	}
	if order.Billing == (model.ShippingInfo{}) {
		order.Billing = in.Shipping
	}
	if customer != nil {
		order.CustomerEmail = customer.Email
		order.CustomerFirst = customer.FirstName
		order.CustomerLast = customer.LastName
	}

	subtotal := decimal.Zero
	for _, ci := range cart.Items {
		sku := ci.ProductSKU
		if ci.VariantSKU != "" {
			sku = ci.VariantSKU
		}
		item := model.OrderItem{
			ProductID:   ci.ProductID,
			VariantID:   ci.VariantID,
			ProductName: ci.ProductName,
			ProductSKU:  sku,
			VariantName: ci.VariantName,
			Quantity:    ci.Quantity,
			UnitPrice:   ci.UnitPrice,
		}
		item.Recalculate()
		subtotal = subtotal.Add(item.TotalPrice)
		order.Items = append(order.Items, item)
	}

	order.Subtotal = subtotal
	order.DiscountAmount = decimal.Zero
	if cart.Coupon != nil {
		couponID := cart.Coupon.Coupon.ID
		order.CouponID = &couponID
		order.CouponCode = cart.Coupon.Coupon.Code
		order.DiscountAmount = cart.Coupon.Coupon.CalculateDiscount(subtotal, l.now())
	}
	order.TotalAmount = subtotal.Sub(order.DiscountAmount).Add(order.TaxAmount).Add(order.ShippingCost)

	// A unique violation aborts the surrounding transaction, so every attempt
	// runs in its own savepoint.
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		number, err := l.numbers.Next()
		if err != nil {
			return nil, fmt.Errorf("generate order number: %w", err)
		}
		order.OrderNumber = number

		err = store.WithTx(ctx, func(tx repository.Store) error {
			if err := tx.Orders().Create(ctx, order); err != nil {
				return err
			}
			return tx.Orders().AddStatusHistory(ctx, &model.OrderStatusHistory{
				OrderID: order.ID,
				Status:  model.OrderStatusPending,
				Notes:   "Order created",
			})
		})
		if errors.Is(err, repository.ErrDuplicateOrderNumber) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
		return order, nil
	}
	return nil, fmt.Errorf("create order after %d attempts: %w", orderNumberAttempts, repository.ErrDuplicateOrderNumber)
}

// Transition moves order to next and appends a history row. The caller holds
// the order row lock for the duration of store's transaction.
func (l *Ledger) Transition(ctx context.Context, store repository.Store, order *model.Order, next model.OrderStatus, changedBy *uuid.UUID, notes string) error {
	if !next.Valid() || !order.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{From: order.Status, To: next}
	}

	prev, prevShipped, prevDelivered := order.Status, order.ShippedAt, order.DeliveredAt
	restore := func() {
		order.Status, order.ShippedAt, order.DeliveredAt = prev, prevShipped, prevDelivered
	}
	order.Status = next
	now := l.now()
	switch next {
	case model.OrderStatusShipped:
		order.ShippedAt = &now
	case model.OrderStatusDelivered:
		order.DeliveredAt = &now
	}

	if err := store.Orders().Update(ctx, order); err != nil {
		restore()
		return fmt.Errorf("update order status: %w", err)
	}
	if err := store.Orders().AddStatusHistory(ctx, &model.OrderStatusHistory{
		OrderID:   order.ID,
		Status:    next,
		Notes:     notes,
		ChangedBy: changedBy,
	}); err != nil {
		restore()
		return fmt.Errorf("record status history: %w", err)
	}
	return nil
}
