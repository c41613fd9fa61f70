package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-checkout/internal/events"
	"github.com/flicky/go-ecommerce-checkout/internal/model"
	"github.com/flicky/go-ecommerce-checkout/internal/payment"
	"github.com/flicky/go-ecommerce-checkout/internal/repository"
)

type OrderService struct {
	store     repository.Store
	ledger    *Ledger
	gateway   payment.Gateway
	publisher events.Publisher
	log       *slog.Logger
}

func NewOrderService(store repository.Store, ledger *Ledger, gateway payment.Gateway, publisher events.Publisher, log *slog.Logger) *OrderService {
	return &OrderService{store: store, ledger: ledger, gateway: gateway, publisher: publisher, log: log}
}

// GetByID returns the caller's order with items and status history.
func (s *OrderService) GetByID(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error) {
	order, err := s.store.Orders().GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != userID {
		return nil, ErrOrderAccessDenied
	}

	order.History, err = s.store.Orders().ListStatusHistory(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("get order history: %w", err)
	}
	return order, nil
}

func (s *OrderService) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	orders, err := s.store.Orders().ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

type StatusUpdate struct {
	Status         model.OrderStatus
	Notes          string
	TrackingNumber string
}

// UpdateStatus is the staff path through the transition graph. Cancelling an
// unpaid order this way also returns its stock and voids the payment intent.
// A paid order keeps its stock and needs a refund outside this service.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, actorID uuid.UUID, upd StatusUpdate) (*model.Order, error) {
	var (
		order     *model.Order
		restocked bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		order, err = tx.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if upd.TrackingNumber != "" {
			order.TrackingNumber = upd.TrackingNumber
		}
		if upd.Status == model.OrderStatusCancelled && !order.IsPaid {
			if err := cancelAndRestock(ctx, tx, s.ledger, order, &actorID, upd.Notes, model.PaymentStatusCancelled); err != nil {
				return err
			}
			restocked = true
			return nil
		}
		return s.ledger.Transition(ctx, tx, order, upd.Status, &actorID, upd.Notes)
	})
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	log := s.log.With("order_id", order.ID, "actor_id", actorID)
	switch {
	case restocked && order.PaymentReference != "":
		if err := s.gateway.CancelIntent(context.WithoutCancel(ctx), order.PaymentReference); err != nil {
			log.Warn("cancel payment intent", "intent_id", order.PaymentReference, "error", err)
		}
	case order.Status == model.OrderStatusCancelled && order.IsPaid:
		log.Warn("paid order cancelled, refund required", "payment_reference", order.PaymentReference, "total", order.TotalAmount.String())
	}
	log.Info("order status updated", "status", order.Status)
	eventType := model.EventOrderStatusChanged
	if order.Status == model.OrderStatusCancelled {
		eventType = model.EventOrderCancelled
	}
	publish(ctx, s.publisher, log, newOrderEvent(eventType, order))
	return order, nil
}

// CancelOrder lets a customer cancel their own unpaid order while it is still
// pending or confirmed.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error) {
	var order *model.Order
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		order, err = tx.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if order.UserID != userID {
			return ErrOrderAccessDenied
		}
		if order.IsPaid || !order.IsCancellable() {
			return ErrOrderNotCancellable
		}
		return cancelAndRestock(ctx, tx, s.ledger, order, &userID, "Cancelled by customer", model.PaymentStatusCancelled)
	})
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	log := s.log.With("order_id", order.ID, "user_id", userID)
	if order.PaymentReference != "" {
		if err := s.gateway.CancelIntent(context.WithoutCancel(ctx), order.PaymentReference); err != nil {
			log.Warn("cancel payment intent", "intent_id", order.PaymentReference, "error", err)
		}
	}
	log.Info("order cancelled by customer")
	publish(ctx, s.publisher, log, newOrderEvent(model.EventOrderCancelled, order))
	return order, nil
}
