package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type User struct {
	ID        uuid.UUID
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Product struct {
	ID          uuid.UUID
	Name        string
	SKU         string
	Description string
	Price       decimal.Decimal
	Stock       int
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Variant struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Name      string
	SKU       string
	Price     decimal.NullDecimal
	Stock     int
	IsActive  bool
}

// StockLevel is a product or variant row read under a row lock at checkout.
type StockLevel struct {
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	ProductName string
	ProductSKU  string
	VariantName string
	VariantSKU  string
	UnitPrice   decimal.Decimal
	Stock       int
}

type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []CartItem
	Coupon    *AppliedCoupon
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem carries the live catalog fields joined at read time; they are not
// stored on the cart row.
type CartItem struct {
	ID          uuid.UUID
	CartID      uuid.UUID
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	Quantity    int
	ProductName string
	ProductSKU  string
	VariantName string
	VariantSKU  string
	UnitPrice   decimal.Decimal
	Stock       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (i CartItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.TotalPrice())
	}
	return total
}

func (c *Cart) TotalItems() int {
	var n int
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// EffectivePrice prefers the variant price when the variant sets one.
func EffectivePrice(productPrice decimal.Decimal, variantPrice decimal.NullDecimal) decimal.Decimal {
	if variantPrice.Valid {
		return variantPrice.Decimal
	}
	return productPrice
}

func SameVariant(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type ShippingInfo struct {
	Address    string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

type Order struct {
	ID               uuid.UUID
	OrderNumber      string
	UserID           uuid.UUID
	Status           OrderStatus
	TrackingNumber   string
	Subtotal         decimal.Decimal
	TaxAmount        decimal.Decimal
	ShippingCost     decimal.Decimal
	DiscountAmount   decimal.Decimal
	TotalAmount      decimal.Decimal
	CouponID         *uuid.UUID
	CouponCode       string
	IsPaid           bool
	PaymentMethod    string
	PaymentReference string
	Shipping         ShippingInfo
	Billing          ShippingInfo
	CustomerEmail    string
	CustomerFirst    string
	CustomerLast     string
	Notes            string
	Items            []OrderItem
	History          []OrderStatusHistory
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ShippedAt        *time.Time
	DeliveredAt      *time.Time
}

func (o *Order) CustomerName() string {
	switch {
	case o.CustomerFirst == "":
		return o.CustomerLast
	case o.CustomerLast == "":
		return o.CustomerFirst
	}
	return o.CustomerFirst + " " + o.CustomerLast
}

func (o *Order) IsCancellable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

func (o *Order) IsRefundable() bool {
	return o.Status == OrderStatusDelivered && o.IsPaid
}

// OrderItem is frozen at checkout; later catalog edits never reach it.
type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	ProductName string
	ProductSKU  string
	VariantName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
	CreatedAt   time.Time
}

// Recalculate must run before every write of the item.
func (i *OrderItem) Recalculate() {
	i.TotalPrice = i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderStatusHistory struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Status    OrderStatus
	Notes     string
	ChangedBy *uuid.UUID
	CreatedAt time.Time
}

type OrderEvent struct {
	Type        string          `json:"type"`
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      uuid.UUID       `json:"user_id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

const (
	EventOrderCreated       = "order.created"
	EventOrderPaid          = "order.paid"
	EventOrderCancelled     = "order.cancelled"
	EventOrderStatusChanged = "order.status_changed"
)
