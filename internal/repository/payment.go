package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/go-ecommerce-checkout/internal/model"
)

type PaymentRepository interface {
	CreateTransaction(ctx context.Context, t *model.PaymentTransaction) error
	UpdateTransaction(ctx context.Context, t *model.PaymentTransaction) error
	GetTransactionByGatewayID(ctx context.Context, gatewayID string) (*model.PaymentTransaction, error)
	CreateStripeIntent(ctx context.Context, pi *model.StripePaymentIntent) error
	UpdateStripeIntentStatus(ctx context.Context, paymentIntentID, status string) error
	InsertWebhook(ctx context.Context, w *model.PaymentWebhook) (bool, error)
	LockWebhook(ctx context.Context, gateway, eventID string) (*model.PaymentWebhook, error)
	MarkWebhookProcessed(ctx context.Context, id uuid.UUID) error
	RecordWebhookFailure(ctx context.Context, w *model.PaymentWebhook) error
}

type pgPaymentRepo struct{ q Querier }

func NewPaymentRepository(q Querier) PaymentRepository {
	return &pgPaymentRepo{q: q}
}

func jsonOrEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

func (r *pgPaymentRepo) CreateTransaction(ctx context.Context, t *model.PaymentTransaction) error {
	t.ID = uuid.New()
	err := r.q.QueryRow(ctx,
		`INSERT INTO payment_transactions (id, order_id, payment_method, transaction_type, status, amount, currency,
		                                   processing_fee, gateway_fees, gateway_transaction_id, gateway_response,
		                                   failure_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		t.ID, t.OrderID, t.PaymentMethod, t.Type, t.Status, t.Amount, t.Currency,
		t.ProcessingFee, t.GatewayFees, t.GatewayTransactionID, jsonOrEmpty(t.GatewayResponse), t.FailureReason,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment transaction: %w", err)
	}
	return nil
}

func (r *pgPaymentRepo) UpdateTransaction(ctx context.Context, t *model.PaymentTransaction) error {
	err := r.q.QueryRow(ctx,
		`UPDATE payment_transactions
		 SET status = $2, gateway_transaction_id = $3, gateway_response = $4, failure_reason = $5,
		     processed_at = $6, updated_at = NOW()
		 WHERE id = $1 RETURNING updated_at`,
		t.ID, t.Status, t.GatewayTransactionID, jsonOrEmpty(t.GatewayResponse), t.FailureReason, t.ProcessedAt,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payment transaction: %w", err)
	}
	return nil
}

func (r *pgPaymentRepo) GetTransactionByGatewayID(ctx context.Context, gatewayID string) (*model.PaymentTransaction, error) {
	t := &model.PaymentTransaction{}
	err := r.q.QueryRow(ctx,
		`SELECT id, order_id, payment_method, transaction_type, status, amount, currency, processing_fee,
		        gateway_fees, gateway_transaction_id, gateway_response, failure_reason, created_at, updated_at, processed_at
		 FROM payment_transactions WHERE gateway_transaction_id = $1
		 ORDER BY created_at DESC LIMIT 1`, gatewayID,
	).Scan(&t.ID, &t.OrderID, &t.PaymentMethod, &t.Type, &t.Status, &t.Amount, &t.Currency, &t.ProcessingFee,
		&t.GatewayFees, &t.GatewayTransactionID, &t.GatewayResponse, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt, &t.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment transaction: %w", err)
	}
	return t, nil
}

func (r *pgPaymentRepo) CreateStripeIntent(ctx context.Context, pi *model.StripePaymentIntent) error {
	pi.ID = uuid.New()
	meta, err := json.Marshal(pi.Metadata)
	if err != nil {
		return fmt.Errorf("marshal intent metadata: %w", err)
	}
	err = r.q.QueryRow(ctx,
		`INSERT INTO stripe_payment_intents (id, transaction_id, payment_intent_id, client_secret, status, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING created_at, updated_at`,
		pi.ID, pi.TransactionID, pi.PaymentIntentID, pi.ClientSecret, pi.Status, meta,
	).Scan(&pi.CreatedAt, &pi.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert stripe intent: %w", err)
	}
	return nil
}

func (r *pgPaymentRepo) UpdateStripeIntentStatus(ctx context.Context, paymentIntentID, status string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE stripe_payment_intents SET status = $2, updated_at = NOW() WHERE payment_intent_id = $1`,
		paymentIntentID, status,
	)
	if err != nil {
		return fmt.Errorf("update stripe intent: %w", err)
	}
	return nil
}

// InsertWebhook records the event once per (gateway, event_id) and reports
// whether this call created the row.
func (r *pgPaymentRepo) InsertWebhook(ctx context.Context, w *model.PaymentWebhook) (bool, error) {
	id := uuid.New()
	ct, err := r.q.Exec(ctx,
		`INSERT INTO payment_webhooks (id, gateway, event_id, event_type, event_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT ON CONSTRAINT payment_webhooks_gateway_event_key DO NOTHING`,
		id, w.Gateway, w.EventID, w.EventType, jsonOrEmpty(w.EventData),
	)
	if err != nil {
		return false, fmt.Errorf("insert webhook: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}
	w.ID = id
	return true, nil
}

func (r *pgPaymentRepo) LockWebhook(ctx context.Context, gateway, eventID string) (*model.PaymentWebhook, error) {
	w := &model.PaymentWebhook{}
	err := r.q.QueryRow(ctx,
		`SELECT id, gateway, event_id, event_type, event_data, processed, processed_at, error_message, created_at
		 FROM payment_webhooks WHERE gateway = $1 AND event_id = $2 FOR UPDATE`, gateway, eventID,
	).Scan(&w.ID, &w.Gateway, &w.EventID, &w.EventType, &w.EventData, &w.Processed, &w.ProcessedAt, &w.ErrorMessage, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock webhook: %w", err)
	}
	return w, nil
}

func (r *pgPaymentRepo) MarkWebhookProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx,
		`UPDATE payment_webhooks SET processed = TRUE, processed_at = NOW(), error_message = '' WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	return nil
}

// RecordWebhookFailure stores the error of a failed attempt. Processed rows are
// left alone.
func (r *pgPaymentRepo) RecordWebhookFailure(ctx context.Context, w *model.PaymentWebhook) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO payment_webhooks (id, gateway, event_id, event_type, event_data, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT ON CONSTRAINT payment_webhooks_gateway_event_key
		 DO UPDATE SET error_message = EXCLUDED.error_message WHERE payment_webhooks.processed = FALSE`,
		uuid.New(), w.Gateway, w.EventID, w.EventType, jsonOrEmpty(w.EventData), w.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("record webhook failure: %w", err)
	}
	return nil
}
