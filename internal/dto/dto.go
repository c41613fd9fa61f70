package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-ecommerce-checkout/internal/model"
)

// --- Auth ---

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID uuid.UUID  `json:"product_id" binding:"required"`
	VariantID *uuid.UUID `json:"variant_id"`
	Quantity  int        `json:"quantity" binding:"required,min=1,max=10000"`
}

// UpdateCartItemRequest removes the line when quantity is zero.
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required,min=0,max=10000"`
}

type ApplyCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

type CartResponse struct {
	ID             uuid.UUID          `json:"id"`
	Items          []CartItemResponse `json:"items"`
	TotalItems     int                `json:"total_items"`
	TotalPrice     decimal.Decimal    `json:"total_price"`
	CouponCode     string             `json:"coupon_code,omitempty"`
	DiscountAmount decimal.Decimal    `json:"discount_amount"`
	FinalPrice     decimal.Decimal    `json:"final_price"`
}

type CartItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	VariantID   *uuid.UUID      `json:"variant_id,omitempty"`
	Name        string          `json:"name"`
	VariantName string          `json:"variant_name,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	InStock     bool            `json:"in_stock"`
}

// --- Order ---

type CreateOrderRequest struct {
	ShippingAddress    string `json:"shipping_address" binding:"required"`
	ShippingCity       string `json:"shipping_city" binding:"required"`
	ShippingState      string `json:"shipping_state"`
	ShippingPostalCode string `json:"shipping_postal_code" binding:"required"`
	ShippingCountry    string `json:"shipping_country" binding:"required"`
	ShippingPhone      string `json:"shipping_phone"`
	BillingAddress     string `json:"billing_address"`
	BillingCity        string `json:"billing_city"`
	BillingState       string `json:"billing_state"`
	BillingPostalCode  string `json:"billing_postal_code"`
	BillingCountry     string `json:"billing_country"`
	BillingPhone       string `json:"billing_phone"`
	Notes              string `json:"notes" binding:"max=1000"`
}

func (r CreateOrderRequest) Shipping() model.ShippingInfo {
	return model.ShippingInfo{
		Address: r.ShippingAddress, City: r.ShippingCity, State: r.ShippingState,
		PostalCode: r.ShippingPostalCode, Country: r.ShippingCountry, Phone: r.ShippingPhone,
	}
}

// Billing is empty when no billing address was sent.
func (r CreateOrderRequest) Billing() model.ShippingInfo {
	if r.BillingAddress == "" {
		return model.ShippingInfo{}
	}
	return model.ShippingInfo{
		Address: r.BillingAddress, City: r.BillingCity, State: r.BillingState,
		PostalCode: r.BillingPostalCode, Country: r.BillingCountry, Phone: r.BillingPhone,
	}
}

type CreateOrderResponse struct {
	OrderID      uuid.UUID       `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	ClientSecret string          `json:"client_secret"`
	Amount       decimal.Decimal `json:"amount"`
}

type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

type ConfirmPaymentResponse struct {
	Message string        `json:"message"`
	Order   OrderResponse `json:"order"`
}

type UpdateStatusRequest struct {
	Status         model.OrderStatus `json:"status" binding:"required"`
	Notes          string            `json:"notes"`
	TrackingNumber string            `json:"tracking_number"`
}

type AddressResponse struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type OrderResponse struct {
	ID             uuid.UUID               `json:"id"`
	OrderNumber    string                  `json:"order_number"`
	UserID         uuid.UUID               `json:"user_id"`
	Status         model.OrderStatus       `json:"status"`
	IsPaid         bool                    `json:"is_paid"`
	PaymentMethod  string                  `json:"payment_method"`
	Subtotal       decimal.Decimal         `json:"subtotal"`
	TaxAmount      decimal.Decimal         `json:"tax_amount"`
	ShippingCost   decimal.Decimal         `json:"shipping_cost"`
	DiscountAmount decimal.Decimal         `json:"discount_amount"`
	TotalAmount    decimal.Decimal         `json:"total_amount"`
	CouponCode     string                  `json:"coupon_code,omitempty"`
	TrackingNumber string                  `json:"tracking_number,omitempty"`
	Shipping       AddressResponse         `json:"shipping"`
	Billing        AddressResponse         `json:"billing"`
	CustomerName   string                  `json:"customer_name"`
	CustomerEmail  string                  `json:"customer_email"`
	Notes          string                  `json:"notes,omitempty"`
	CanCancel      bool                    `json:"can_cancel"`
	Items          []OrderItemResponse     `json:"items"`
	History        []StatusHistoryResponse `json:"status_history,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
	ShippedAt      *time.Time              `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time              `json:"delivered_at,omitempty"`
}

type OrderItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	VariantID   *uuid.UUID      `json:"variant_id,omitempty"`
	ProductName string          `json:"product_name"`
	ProductSKU  string          `json:"product_sku"`
	VariantName string          `json:"variant_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type StatusHistoryResponse struct {
	Status    model.OrderStatus `json:"status"`
	Notes     string            `json:"notes,omitempty"`
	ChangedBy *uuid.UUID        `json:"changed_by,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}

// --- Payments ---

type PaymentConfigResponse struct {
	PublishableKey string `json:"publishable_key"`
}
