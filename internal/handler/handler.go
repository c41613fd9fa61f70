package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/go-ecommerce-checkout/internal/dto"
	"github.com/flicky/go-ecommerce-checkout/internal/model"
	"github.com/flicky/go-ecommerce-checkout/internal/payment"
	"github.com/flicky/go-ecommerce-checkout/internal/service"
)

type AuthService interface {
	Register(ctx context.Context, req dto.RegisterRequest) (*dto.AuthResponse, error)
	Login(ctx context.Context, req dto.LoginRequest) (*dto.AuthResponse, error)
}

type CartService interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, variantID *uuid.UUID, quantity int) error
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, userID, itemID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
	ApplyCoupon(ctx context.Context, userID uuid.UUID, code string) (*model.Cart, error)
	RemoveCoupon(ctx context.Context, userID uuid.UUID) error
}

type CheckoutService interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, in service.OrderInput) (*service.PlaceOrderResult, error)
	ConfirmPayment(ctx context.Context, userID, orderID uuid.UUID, intentID string) (*model.Order, error)
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
}

type OrderService interface {
	GetByID(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	UpdateStatus(ctx context.Context, orderID, actorID uuid.UUID, upd service.StatusUpdate) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID, userID uuid.UUID) (*model.Order, error)
}

var (
	badRequestErrors = []error{
		service.ErrEmptyCart,
		service.ErrInvalidQuantity,
		service.ErrCouponNotApplicable,
		service.ErrOrderNotCancellable,
		service.ErrOrderNotPayable,
		service.ErrInvalidPaymentReference,
		service.ErrPaymentNotCompleted,
	}
	notFoundErrors = []error{
		service.ErrProductNotFound,
		service.ErrVariantNotFound,
		service.ErrCartItemNotFound,
		service.ErrCouponNotFound,
		service.ErrOrderNotFound,
	}
)

func matchSentinel(err error, sentinels []error) (string, bool) {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error(), true
		}
	}
	return "", false
}

// respondError maps service errors to status codes. Anything unrecognised is
// a 500 whose cause stays in the request log.
func respondError(c *gin.Context, err error) {
	var (
		stockErr *service.InsufficientStockError
		transErr *service.InvalidTransitionError
		gwErr    *payment.PaymentGatewayError
	)
	if msg, ok := matchSentinel(err, badRequestErrors); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if msg, ok := matchSentinel(err, notFoundErrors); ok {
		c.JSON(http.StatusNotFound, gin.H{"error": msg})
		return
	}

	switch {
	case errors.As(err, &stockErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": stockErr.Error()})
	case errors.As(err, &transErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": transErr.Error()})
	case errors.As(err, &gwErr) && gwErr.Retryable:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment provider unavailable, try again"})
	case errors.As(err, &gwErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment could not be processed"})
	case errors.Is(err, service.ErrOrderAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case errors.Is(err, service.ErrUserAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}
