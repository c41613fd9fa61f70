package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/flicky/go-ecommerce-checkout/internal/config"
)

const stripeGatewayName = "stripe"

type StripeGateway struct {
	cfg     config.StripeConfig
	api     *client.API
	breaker *gobreaker.CircuitBreaker[*stripe.PaymentIntent]
	log     *slog.Logger
}

// NewStripeGateway copies cfg; later changes to the caller's value are not seen.
func NewStripeGateway(cfg config.StripeConfig, log *slog.Logger) *StripeGateway {
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	g := &StripeGateway{
		cfg: cfg,
		api: client.New(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}),
		log: log.With("gateway", stripeGatewayName),
	}
	g.breaker = gobreaker.NewCircuitBreaker[*stripe.PaymentIntent](gobreaker.Settings{
		Name:        stripeGatewayName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	return g
}

func (g *StripeGateway) Name() string { return stripeGatewayName }

func (g *StripeGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinorUnits(amount, currency)),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if orderID := metadata["order_id"]; orderID != "" {
		params.SetIdempotencyKey("create-intent-" + orderID)
	}

	pi, err := g.breaker.Execute(func() (*stripe.PaymentIntent, error) {
		return g.api.PaymentIntents.New(params)
	})
	if err != nil {
		return nil, g.wrap("create intent", err)
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.breaker.Execute(func() (*stripe.PaymentIntent, error) {
		return g.api.PaymentIntents.Get(intentID, params)
	})
	if err != nil {
		return nil, g.wrap("retrieve intent", err)
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := g.breaker.Execute(func() (*stripe.PaymentIntent, error) {
		return g.api.PaymentIntents.Cancel(intentID, params)
	})
	if err != nil {
		return g.wrap("cancel intent", err)
	}
	return nil
}

func (g *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{
			Tolerance:                g.cfg.WebhookTolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}
	out.Raw = event.Data.Raw

	if strings.HasPrefix(out.Type, "payment_intent.") {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: decode payment intent: %v", ErrWebhookSignature, err)
		}
		out.Intent = toIntent(&pi)
	}
	return out, nil
}

func (g *StripeGateway) wrap(op string, err error) error {
	retryable := isRetryable(err)
	g.log.Error("stripe call failed", "op", op, "retryable", retryable, "error", err)
	return &PaymentGatewayError{Op: op, Err: err, Retryable: retryable}
}

func isRetryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= 500
	}
	return false
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	intent := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       IntentStatus(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		intent.FailureMsg = pi.LastPaymentError.Msg
	}
	return intent
}
