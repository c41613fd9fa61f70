package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/flicky/go-ecommerce-checkout/internal/model"
	"github.com/flicky/go-ecommerce-checkout/internal/ordernum"
)

type harness struct {
	store     *fakeStore
	gateway   *fakeGateway
	publisher *recordingPublisher
	processed *memProcessed
	ledger    *Ledger
	checkout  *CheckoutService
	orders    *OrderService
	carts     *CartService
	user      model.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     newFakeStore(),
		gateway:   newFakeGateway(),
		publisher: &recordingPublisher{},
		processed: newMemProcessed(),
		ledger:    NewLedger(ordernum.NewGenerator()),
	}
	h.checkout = NewCheckoutService(h.store, h.ledger, h.gateway, h.publisher, h.processed, "usd", "stripe", testLogger())
	h.orders = NewOrderService(h.store, h.ledger, h.gateway, h.publisher, testLogger())
	h.carts = NewCartService(h.store)
	h.user = h.store.seedUser()
	return h
}

func shippingInput() OrderInput {
	return OrderInput{Shipping: model.ShippingInfo{
		Address: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US",
	}}
}

// placeWidgetOrder checks out two units of Widget (10.00, stock 5).
func (h *harness) placeWidgetOrder(t *testing.T) (*PlaceOrderResult, model.Product) {
	t.Helper()
	widget := h.store.seedProduct("Widget", "10.00", 5)
	h.store.seedCartItem(h.user.ID, widget.ID, nil, 2)

	res, err := h.checkout.PlaceOrder(context.Background(), h.user.ID, shippingInput())
	require.NoError(t, err)
	return res, widget
}

func (h *harness) webhook(t *testing.T, eventID, eventType, intentID string, orderID uuid.UUID) error {
	t.Helper()
	return h.checkout.HandleWebhook(context.Background(), webhookPayload(eventID, eventType, intentID, orderID), "valid")
}
