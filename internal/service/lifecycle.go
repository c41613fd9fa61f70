package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-checkout/internal/events"
	"github.com/flicky/go-ecommerce-checkout/internal/model"
	"github.com/flicky/go-ecommerce-checkout/internal/payment"
	"github.com/flicky/go-ecommerce-checkout/internal/repository"
)

// markPaid flips a locked, unpaid order to paid and advances it to
// processing when the graph allows. Callers check IsPaid first.
func markPaid(ctx context.Context, tx repository.Store, ledger *Ledger, order *model.Order, intent *payment.Intent, notes string) error {
	order.IsPaid = true
	if order.Status.CanTransitionTo(model.OrderStatusProcessing) {
		if err := ledger.Transition(ctx, tx, order, model.OrderStatusProcessing, nil, notes); err != nil {
			return err
		}
	} else if err := tx.Orders().Update(ctx, order); err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}

	txn, err := tx.Payments().GetTransactionByGatewayID(ctx, intent.ID)
	if err != nil {
		return err
	}
	if txn != nil && txn.Status != model.PaymentStatusCompleted {
		now := ledger.now()
		txn.Status = model.PaymentStatusCompleted
		txn.ProcessedAt = &now
		if err := tx.Payments().UpdateTransaction(ctx, txn); err != nil {
			return err
		}
	}
	return tx.Payments().UpdateStripeIntentStatus(ctx, intent.ID, string(intent.Status))
}

// cancelAndRestock cancels a locked order, returns its reserved stock and
// coupon use, and closes the pending payment transaction with txnStatus.
func cancelAndRestock(ctx context.Context, tx repository.Store, ledger *Ledger, order *model.Order, changedBy *uuid.UUID, notes string, txnStatus model.PaymentStatus) error {
	if err := ledger.Transition(ctx, tx, order, model.OrderStatusCancelled, changedBy, notes); err != nil {
		return err
	}
	if err := restoreReservation(ctx, tx, order); err != nil {
		return err
	}
	if order.PaymentReference == "" {
		return nil
	}

	txn, err := tx.Payments().GetTransactionByGatewayID(ctx, order.PaymentReference)
	if err != nil {
		return err
	}
	if txn != nil && txn.Status == model.PaymentStatusPending {
		now := ledger.now()
		txn.Status = txnStatus
		txn.FailureReason = notes
		txn.ProcessedAt = &now
		if err := tx.Payments().UpdateTransaction(ctx, txn); err != nil {
			return err
		}
	}
	return tx.Payments().UpdateStripeIntentStatus(ctx, order.PaymentReference, string(payment.IntentCanceled))
}

func restoreReservation(ctx context.Context, tx repository.Store, order *model.Order) error {
	for _, item := range order.Items {
		if err := tx.Products().RestoreStock(ctx, item.ProductID, item.VariantID, item.Quantity); err != nil {
			return err
		}
	}
	if order.CouponID != nil {
		if err := tx.Coupons().ReleaseUsage(ctx, *order.CouponID); err != nil {
			return err
		}
	}
	return nil
}

func newOrderEvent(eventType string, order *model.Order) model.OrderEvent {
	return model.OrderEvent{
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		OccurredAt:  time.Now().UTC(),
	}
}

// publish runs after commit. A lost event is logged, never surfaced.
func publish(ctx context.Context, pub events.Publisher, log *slog.Logger, evs ...model.OrderEvent) {
	for _, ev := range evs {
		if err := pub.Publish(ctx, ev); err != nil {
			log.Error("publish order event", "type", ev.Type, "order_id", ev.OrderID, "error", err)
		}
	}
}
