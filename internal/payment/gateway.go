package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrWebhookSignature = errors.New("invalid webhook signature or payload")

type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	Amount       int64
	Currency     string
	Metadata     map[string]string
	FailureMsg   string
}

// Event is a verified provider notification. Intent is nil for event types
// that do not carry a payment intent.
type Event struct {
	ID     string
	Type   string
	Intent *Intent
	Raw    json.RawMessage
}

// Gateway is the provider-neutral surface the checkout flow depends on.
type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
	VerifyWebhook(payload []byte, signatureHeader string) (*Event, error)
}

// PaymentGatewayError wraps every failure of an outbound provider call.
// Retryable is set for timeouts, rate limits, provider 5xx and an open breaker.
type PaymentGatewayError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *PaymentGatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *PaymentGatewayError) Unwrap() error { return e.Err }
