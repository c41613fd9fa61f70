package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusCancelled         PaymentStatus = "cancelled"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

type TransactionType string

const (
	TransactionPayment       TransactionType = "payment"
	TransactionRefund        TransactionType = "refund"
	TransactionPartialRefund TransactionType = "partial_refund"
	TransactionChargeback    TransactionType = "chargeback"
)

type PaymentTransaction struct {
	ID                   uuid.UUID
	OrderID              uuid.UUID
	PaymentMethod        string
	Type                 TransactionType
	Status               PaymentStatus
	Amount               decimal.Decimal
	Currency             string
	ProcessingFee        decimal.Decimal
	GatewayFees          decimal.Decimal
	GatewayTransactionID string
	GatewayResponse      json.RawMessage
	FailureReason        string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ProcessedAt          *time.Time
}

func (t *PaymentTransaction) NetAmount() decimal.Decimal {
	return t.Amount.Sub(t.ProcessingFee).Sub(t.GatewayFees)
}

type StripePaymentIntent struct {
	ID              uuid.UUID
	TransactionID   uuid.UUID
	PaymentIntentID string
	ClientSecret    string
	Status          string
	Metadata        map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PaymentWebhook is keyed by (Gateway, EventID) in storage.
type PaymentWebhook struct {
	ID           uuid.UUID
	Gateway      string
	EventID      string
	EventType    string
	EventData    json.RawMessage
	Processed    bool
	ProcessedAt  *time.Time
	ErrorMessage string
	CreatedAt    time.Time
}
