package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/go-ecommerce-checkout/internal/dto"
	"github.com/flicky/go-ecommerce-checkout/internal/payment"
	"github.com/flicky/go-ecommerce-checkout/internal/service"
)

const maxWebhookBody = 1 << 16

type PaymentHandler struct {
	checkout       CheckoutService
	publishableKey string
}

func NewPaymentHandler(checkout CheckoutService, publishableKey string) *PaymentHandler {
	return &PaymentHandler{checkout: checkout, publishableKey: publishableKey}
}

func (h *PaymentHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, dto.PaymentConfigResponse{PublishableKey: h.publishableKey})
}

// StripeWebhook needs the body byte-for-byte as sent; the signature covers it.
// Processing failures answer 500 so the provider redelivers.
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	err = h.checkout.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	case errors.Is(err, service.ErrDuplicateWebhookEvent):
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
	case errors.Is(err, payment.ErrWebhookSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
