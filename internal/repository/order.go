package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/go-ecommerce-checkout/internal/model"
)

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	Update(ctx context.Context, order *model.Order) error
	AddStatusHistory(ctx context.Context, h *model.OrderStatusHistory) error
	ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]model.OrderStatusHistory, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type pgOrderRepo struct{ q Querier }

func NewOrderRepository(q Querier) OrderRepository {
	return &pgOrderRepo{q: q}
}

const orderColumns = `id, order_number, user_id, status, tracking_number,
	subtotal, tax_amount, shipping_cost, discount_amount, total_amount, coupon_id, coupon_code,
	is_paid, payment_method, payment_reference,
	shipping_address, shipping_city, shipping_state, shipping_postal_code, shipping_country, shipping_phone,
	billing_address, billing_city, billing_state, billing_postal_code, billing_country, billing_phone,
	customer_email, customer_first_name, customer_last_name, notes,
	created_at, updated_at, shipped_at, delivered_at`

func orderDest(o *model.Order) []any {
	return []any{
		&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.TrackingNumber,
		&o.Subtotal, &o.TaxAmount, &o.ShippingCost, &o.DiscountAmount, &o.TotalAmount, &o.CouponID, &o.CouponCode,
		&o.IsPaid, &o.PaymentMethod, &o.PaymentReference,
		&o.Shipping.Address, &o.Shipping.City, &o.Shipping.State, &o.Shipping.PostalCode, &o.Shipping.Country, &o.Shipping.Phone,
		&o.Billing.Address, &o.Billing.City, &o.Billing.State, &o.Billing.PostalCode, &o.Billing.Country, &o.Billing.Phone,
		&o.CustomerEmail, &o.CustomerFirst, &o.CustomerLast, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt, &o.ShippedAt, &o.DeliveredAt,
	}
}

// Create inserts the order and its items. A collision on order_number is
// reported as ErrDuplicateOrderNumber so the caller can retry with a new one.
func (r *pgOrderRepo) Create(ctx context.Context, o *model.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	err := r.q.QueryRow(ctx,
		`INSERT INTO orders (id, order_number, user_id, status, subtotal, tax_amount, shipping_cost,
		                     discount_amount, total_amount, coupon_id, coupon_code,
		                     shipping_address, shipping_city, shipping_state, shipping_postal_code, shipping_country, shipping_phone,
		                     billing_address, billing_city, billing_state, billing_postal_code, billing_country, billing_phone,
		                     customer_email, customer_first_name, customer_last_name, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		         $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		o.ID, o.OrderNumber, o.UserID, o.Status, o.Subtotal, o.TaxAmount, o.ShippingCost,
		o.DiscountAmount, o.TotalAmount, o.CouponID, o.CouponCode,
		o.Shipping.Address, o.Shipping.City, o.Shipping.State, o.Shipping.PostalCode, o.Shipping.Country, o.Shipping.Phone,
		o.Billing.Address, o.Billing.City, o.Billing.State, o.Billing.PostalCode, o.Billing.Country, o.Billing.Phone,
		o.CustomerEmail, o.CustomerFirst, o.CustomerLast, o.Notes,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "orders_order_number_key") {
			return ErrDuplicateOrderNumber
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.ID = uuid.New()
		item.OrderID = o.ID
		item.Recalculate()
		err = r.q.QueryRow(ctx,
			`INSERT INTO order_items (id, order_id, product_id, variant_id, product_name, product_sku, variant_name,
			                          quantity, unit_price, total_price, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW()) RETURNING created_at`,
			item.ID, item.OrderID, item.ProductID, item.VariantID, item.ProductName, item.ProductSKU, item.VariantName,
			item.Quantity, item.UnitPrice, item.TotalPrice,
		).Scan(&item.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.get(ctx, id, "")
}

// GetByIDForUpdate locks the order row until the surrounding transaction ends.
func (r *pgOrderRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *pgOrderRepo) get(ctx context.Context, id uuid.UUID, lock string) (*model.Order, error) {
	order := &model.Order{}
	err := r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`+lock, id).Scan(orderDest(order)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := r.q.Query(ctx,
		`SELECT id, product_id, variant_id, product_name, product_sku, variant_name, quantity, unit_price, total_price, created_at
		 FROM order_items WHERE order_id = $1 ORDER BY created_at, id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.VariantID, &item.ProductName, &item.ProductSKU,
			&item.VariantName, &item.Quantity, &item.UnitPrice, &item.TotalPrice, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.OrderID = order.ID
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return order, nil
}

func (r *pgOrderRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(orderDest(&o)...); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Update writes the mutable columns only. Amounts and the item snapshot are
// fixed at creation.
func (r *pgOrderRepo) Update(ctx context.Context, o *model.Order) error {
	err := r.q.QueryRow(ctx,
		`UPDATE orders SET status = $2, is_paid = $3, payment_method = $4, payment_reference = $5,
		                   tracking_number = $6, shipped_at = $7, delivered_at = $8, notes = $9, updated_at = NOW()
		 WHERE id = $1 RETURNING updated_at`,
		o.ID, o.Status, o.IsPaid, o.PaymentMethod, o.PaymentReference,
		o.TrackingNumber, o.ShippedAt, o.DeliveredAt, o.Notes,
	).Scan(&o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

func (r *pgOrderRepo) AddStatusHistory(ctx context.Context, h *model.OrderStatusHistory) error {
	h.ID = uuid.New()
	err := r.q.QueryRow(ctx,
		`INSERT INTO order_status_history (id, order_id, status, notes, changed_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING created_at`,
		h.ID, h.OrderID, h.Status, h.Notes, h.ChangedBy,
	).Scan(&h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func (r *pgOrderRepo) ListStatusHistory(ctx context.Context, orderID uuid.UUID) ([]model.OrderStatusHistory, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, order_id, status, notes, changed_by, created_at
		 FROM order_status_history WHERE order_id = $1 ORDER BY created_at DESC, id`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var history []model.OrderStatusHistory
	for rows.Next() {
		var h model.OrderStatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.Status, &h.Notes, &h.ChangedBy, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// Delete is used only by the checkout compensation path; items, history and
// payment rows go with it through ON DELETE CASCADE.
func (r *pgOrderRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}
