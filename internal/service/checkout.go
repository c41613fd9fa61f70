package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-checkout/internal/events"
	"github.com/flicky/go-ecommerce-checkout/internal/metrics"
	"github.com/flicky/go-ecommerce-checkout/internal/model"
	"github.com/flicky/go-ecommerce-checkout/internal/payment"
	"github.com/flicky/go-ecommerce-checkout/internal/repository"
)

const compensationAttempts = 3

// ProcessedEvents is the fast-path dedupe for webhook deliveries.
type ProcessedEvents interface {
	IsProcessed(ctx context.Context, gateway, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, gateway, eventID string) error
}

type PlaceOrderResult struct {
	Order           *model.Order
	PaymentIntentID string
	ClientSecret    string
}

type CheckoutService struct {
	store         repository.Store
	ledger        *Ledger
	gateway       payment.Gateway
	publisher     events.Publisher
	processed     ProcessedEvents
	currency      string
	paymentMethod string
	log           *slog.Logger
}

func NewCheckoutService(
	store repository.Store,
	ledger *Ledger,
	gateway payment.Gateway,
	publisher events.Publisher,
	processed ProcessedEvents,
	currency, paymentMethod string,
	log *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		store:         store,
		ledger:        ledger,
		gateway:       gateway,
		publisher:     publisher,
		processed:     processed,
		currency:      currency,
		paymentMethod: paymentMethod,
		log:           log,
	}
}

// PlaceOrder reserves stock and records the order in one transaction, then
// asks the gateway for an intent. A gateway failure undoes the reservation in
// a compensating transaction and leaves the cart as it was.
func (s *CheckoutService) PlaceOrder(ctx context.Context, userID uuid.UUID, in OrderInput) (*PlaceOrderResult, error) {
	log := s.log.With("user_id", userID)
	in.PaymentMethod = s.paymentMethod

	var (
		order  *model.Order
		txn    *model.PaymentTransaction
		cartID uuid.UUID
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		cart, err := tx.Carts().GetOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.Carts().LockCart(ctx, cart.ID); err != nil {
			return err
		}
		cart, err = tx.Carts().GetCartWithItems(ctx, cart.ID)
		if err != nil {
			return err
		}
		if cart == nil || len(cart.Items) == 0 {
			return ErrEmptyCart
		}
		cartID = cart.ID

		if err := s.reserveStock(ctx, tx, cart); err != nil {
			return err
		}
		if err := s.claimCoupon(ctx, tx, cart); err != nil {
			return err
		}

		customer, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		order, err = s.ledger.CreateOrder(ctx, tx, cart, customer, in)
		if err != nil {
			return err
		}

		for _, item := range cart.Items {
			err := tx.Products().DecrementStock(ctx, item.ProductID, item.VariantID, item.Quantity)
			if errors.Is(err, repository.ErrInsufficientStock) {
				return &InsufficientStockError{ProductID: item.ProductID, ProductName: item.ProductName, Requested: item.Quantity, Available: item.Stock}
			}
			if err != nil {
				return err
			}
		}

		txn = &model.PaymentTransaction{
			OrderID:       order.ID,
			PaymentMethod: s.paymentMethod,
			Type:          model.TransactionPayment,
			Status:        model.PaymentStatusPending,
			Amount:        order.TotalAmount,
			Currency:      s.currency,
		}
		return tx.Payments().CreateTransaction(ctx, txn)
	})
	if err != nil {
		metrics.RecordOrder(orderResult(err))
		return nil, fmt.Errorf("place order: %w", err)
	}
	log = log.With("order_id", order.ID, "order_number", order.OrderNumber)

	start := time.Now()
	intent, err := s.gateway.CreateIntent(ctx, order.TotalAmount, s.currency, map[string]string{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
	})
	metrics.ObserveGatewayCall("create_intent", err, time.Since(start).Seconds())
	if err != nil {
		log.Error("create payment intent failed, rolling back order", "error", err)
		s.compensate(ctx, order, "gateway_error", log)
		metrics.RecordOrder("gateway_error")
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		order.PaymentReference = intent.ID
		if err := tx.Orders().Update(ctx, order); err != nil {
			return err
		}
		txn.GatewayTransactionID = intent.ID
		if err := tx.Payments().UpdateTransaction(ctx, txn); err != nil {
			return err
		}
		if err := tx.Payments().CreateStripeIntent(ctx, &model.StripePaymentIntent{
			TransactionID:   txn.ID,
			PaymentIntentID: intent.ID,
			ClientSecret:    intent.ClientSecret,
			Status:          string(intent.Status),
			Metadata:        intent.Metadata,
		}); err != nil {
			return err
		}
		return tx.Carts().ClearCart(ctx, cartID)
	})
	if err != nil {
		log.Error("record payment intent failed, rolling back order", "intent_id", intent.ID, "error", err)
		order.PaymentReference = ""
		s.compensate(ctx, order, "persist_error", log)
		if cerr := s.gateway.CancelIntent(context.WithoutCancel(ctx), intent.ID); cerr != nil {
			log.Warn("cancel orphaned payment intent", "intent_id", intent.ID, "error", cerr)
		}
		metrics.RecordOrder("error")
		return nil, fmt.Errorf("record payment intent: %w", err)
	}

	metrics.RecordOrder("success")
	log.Info("order placed", "total", order.TotalAmount.String(), "intent_id", intent.ID)
	publish(ctx, s.publisher, log, newOrderEvent(model.EventOrderCreated, order))

	return &PlaceOrderResult{Order: order, PaymentIntentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// reserveStock locks every stock row in (product, variant) order so two
// checkouts over the same rows cannot deadlock, and refreshes each line with
// the locked price and stock.
func (s *CheckoutService) reserveStock(ctx context.Context, tx repository.Store, cart *model.Cart) error {
	sort.Slice(cart.Items, func(i, j int) bool {
		a, b := cart.Items[i], cart.Items[j]
		if a.ProductID != b.ProductID {
			return a.ProductID.String() < b.ProductID.String()
		}
		return variantKey(a.VariantID) < variantKey(b.VariantID)
	})

	for i := range cart.Items {
		item := &cart.Items[i]
		lvl, err := tx.Products().LockStock(ctx, item.ProductID, item.VariantID)
		if err != nil {
			return err
		}
		if lvl == nil {
			return fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
		}
		item.ProductName = lvl.ProductName
		item.ProductSKU = lvl.ProductSKU
		item.VariantName = lvl.VariantName
		item.VariantSKU = lvl.VariantSKU
		item.UnitPrice = lvl.UnitPrice
		item.Stock = lvl.Stock

		if lvl.Stock < item.Quantity {
			name := lvl.ProductName
			if lvl.VariantName != "" {
				name += " (" + lvl.VariantName + ")"
			}
			return &InsufficientStockError{ProductID: item.ProductID, ProductName: name, Requested: item.Quantity, Available: lvl.Stock}
		}
	}
	return nil
}

func (s *CheckoutService) claimCoupon(ctx context.Context, tx repository.Store, cart *model.Cart) error {
	if cart.Coupon == nil {
		return nil
	}
	if !cart.Coupon.Coupon.CanBeUsed(cart.TotalPrice(), s.ledger.now()) {
		return ErrCouponNotApplicable
	}
	err := tx.Coupons().IncrementUsage(ctx, cart.Coupon.Coupon.ID)
	if errors.Is(err, repository.ErrCouponExhausted) {
		return ErrCouponNotApplicable
	}
	return err
}

// compensate deletes a reserved order and returns its stock and coupon use.
// Items, history and payment rows go with the order through the cascade.
func (s *CheckoutService) compensate(ctx context.Context, order *model.Order, reason string, log *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= compensationAttempts; attempt++ {
		err = s.store.WithTx(ctx, func(tx repository.Store) error {
			if err := restoreReservation(ctx, tx, order); err != nil {
				return err
			}
			return tx.Orders().Delete(ctx, order.ID)
		})
		if err == nil {
			metrics.RecordCompensation(reason)
			log.Info("order rolled back", "reason", reason)
			return
		}
	}
	metrics.RecordCompensation("failed")
	log.Error("compensation failed, order left pending with stock reserved", "reason", reason, "error", err)
}

// ConfirmPayment is the client-driven path: the gateway's answer, not the
// caller's, decides whether the order is paid.
func (s *CheckoutService) ConfirmPayment(ctx context.Context, userID, orderID uuid.UUID, intentID string) (*model.Order, error) {
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
	if intentID == "" || order.PaymentReference != intentID {
		return nil, ErrInvalidPaymentReference
	}
	if order.IsPaid {
		return order, nil
	}

	log := s.log.With("order_id", order.ID, "intent_id", intentID)

	start := time.Now()
	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	metrics.ObserveGatewayCall("retrieve_intent", err, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if intent.Status != payment.IntentSucceeded {
		log.Info("payment not completed", "status", intent.Status)
		return nil, ErrPaymentNotCompleted
	}

	var changed bool
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Orders().GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrOrderNotFound
		}
		order = locked
		if order.IsPaid {
			return nil
		}
		if order.Status == model.OrderStatusCancelled {
			return ErrOrderNotPayable
		}
		changed = true
		return markPaid(ctx, tx, s.ledger, order, intent, "Payment confirmed by customer")
	})
	if err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}

	if changed {
		log.Info("payment confirmed")
		publish(ctx, s.publisher, log, newOrderEvent(model.EventOrderPaid, order))
	}
	return order, nil
}

// HandleWebhook verifies and applies one provider event. Each event id is
// applied at most once: the webhook row is locked for the duration and marked
// processed in the same transaction as the order change.
func (s *CheckoutService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := s.gateway.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		metrics.RecordWebhook("unknown", "invalid")
		return err
	}

	gateway := s.gateway.Name()
	log := s.log.With("event_id", event.ID, "event_type", event.Type)

	if s.processed != nil {
		done, err := s.processed.IsProcessed(ctx, gateway, event.ID)
		if err != nil {
			log.Warn("webhook cache lookup failed", "error", err)
		} else if done {
			metrics.RecordWebhook(event.Type, "duplicate")
			return ErrDuplicateWebhookEvent
		}
	}

	var pending []model.OrderEvent
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Payments().InsertWebhook(ctx, &model.PaymentWebhook{
			Gateway:   gateway,
			EventID:   event.ID,
			EventType: event.Type,
			EventData: event.Raw,
		}); err != nil {
			return err
		}
		record, err := tx.Payments().LockWebhook(ctx, gateway, event.ID)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("webhook %s vanished after insert", event.ID)
		}
		if record.Processed {
			return ErrDuplicateWebhookEvent
		}

		pending, err = s.applyEvent(ctx, tx, event, log)
		if err != nil {
			return err
		}
		return tx.Payments().MarkWebhookProcessed(ctx, record.ID)
	})

	switch {
	case errors.Is(err, ErrDuplicateWebhookEvent):
		metrics.RecordWebhook(event.Type, "duplicate")
		s.rememberProcessed(ctx, gateway, event.ID, log)
		return err
	case err != nil:
		metrics.RecordWebhook(event.Type, "error")
		log.Error("webhook processing failed", "error", err)
		if rerr := s.store.Payments().RecordWebhookFailure(context.WithoutCancel(ctx), &model.PaymentWebhook{
			Gateway:      gateway,
			EventID:      event.ID,
			EventType:    event.Type,
			EventData:    event.Raw,
			ErrorMessage: err.Error(),
		}); rerr != nil {
			log.Error("record webhook failure", "error", rerr)
		}
		return fmt.Errorf("handle webhook %s: %w", event.ID, err)
	}

	metrics.RecordWebhook(event.Type, "processed")
	s.rememberProcessed(ctx, gateway, event.ID, log)
	publish(ctx, s.publisher, log, pending...)
	return nil
}

func (s *CheckoutService) rememberProcessed(ctx context.Context, gateway, eventID string, log *slog.Logger) {
	if s.processed == nil {
		return
	}
	if err := s.processed.MarkProcessed(ctx, gateway, eventID); err != nil {
		log.Warn("webhook cache write failed", "error", err)
	}
}

// applyEvent changes the order only when its current state differs from the
// state the event implies, so a replay is a no-op.
func (s *CheckoutService) applyEvent(ctx context.Context, tx repository.Store, event *payment.Event, log *slog.Logger) ([]model.OrderEvent, error) {
	if event.Type != payment.EventIntentSucceeded && event.Type != payment.EventIntentFailed {
		log.Info("unhandled webhook event type")
		return nil, nil
	}
	if event.Intent == nil {
		log.Warn("payment event without intent")
		return nil, nil
	}

	orderID, err := uuid.Parse(event.Intent.Metadata["order_id"])
	if err != nil {
		log.Warn("payment event without order reference", "intent_id", event.Intent.ID)
		return nil, nil
	}
	log = log.With("order_id", orderID, "intent_id", event.Intent.ID)

	order, err := tx.Orders().GetByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		log.Error("order not found for payment event")
		return nil, nil
	}
	if order.PaymentReference != "" && order.PaymentReference != event.Intent.ID {
		log.Warn("payment event intent does not match order", "order_intent_id", order.PaymentReference)
		return nil, nil
	}

	if event.Type == payment.EventIntentSucceeded {
		switch {
		case order.IsPaid:
			return nil, nil
		case order.Status == model.OrderStatusCancelled:
			log.Warn("payment succeeded for cancelled order, refund required")
			return nil, nil
		}
		if err := markPaid(ctx, tx, s.ledger, order, event.Intent, "Payment confirmed by webhook"); err != nil {
			return nil, err
		}
		log.Info("payment confirmed by webhook")
		return []model.OrderEvent{newOrderEvent(model.EventOrderPaid, order)}, nil
	}

	switch {
	case order.IsPaid:
		log.Info("ignoring payment failure for paid order")
		return nil, nil
	case order.Status == model.OrderStatusCancelled:
		return nil, nil
	case !order.IsCancellable():
		log.Warn("payment failed for order past cancellation", "status", order.Status)
		return nil, nil
	}

	notes := "Payment failed"
	if event.Intent.FailureMsg != "" {
		notes += ": " + event.Intent.FailureMsg
	}
	if err := cancelAndRestock(ctx, tx, s.ledger, order, nil, notes, model.PaymentStatusFailed); err != nil {
		return nil, err
	}
	metrics.RecordCompensation("payment_failed")
	log.Info("payment failed, order cancelled and stock restored")
	return []model.OrderEvent{newOrderEvent(model.EventOrderCancelled, order)}, nil
}

func variantKey(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func orderResult(err error) string {
	var stockErr *InsufficientStockError
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.Is(err, ErrCouponNotApplicable):
		return "coupon_rejected"
	}
	return "error"
}
