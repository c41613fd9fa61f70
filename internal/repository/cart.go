package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-ecommerce-checkout/internal/model"
)

type CartRepository interface {
	GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	GetCartWithItems(ctx context.Context, cartID uuid.UUID) (*model.Cart, error)
	LockCart(ctx context.Context, cartID uuid.UUID) error
	AddItem(ctx context.Context, item *model.CartItem) error
	UpdateItem(ctx context.Context, item *model.CartItem) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	ClearCart(ctx context.Context, cartID uuid.UUID) error
	ApplyCoupon(ctx context.Context, applied *model.AppliedCoupon) error
	RemoveCoupon(ctx context.Context, cartID uuid.UUID) error
}

type pgCartRepo struct{ q Querier }

func NewCartRepository(q Querier) CartRepository {
	return &pgCartRepo{q: q}
}

func (r *pgCartRepo) GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart := &model.Cart{ID: uuid.New(), UserID: userID}
	// The no-op update makes RETURNING yield the existing row on conflict.
	err := r.q.QueryRow(ctx,
		`INSERT INTO carts (id, user_id, created_at, updated_at) VALUES ($1, $2, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING id, created_at, updated_at`,
		cart.ID, cart.UserID,
	).Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	return cart, nil
}

func (r *pgCartRepo) GetCartWithItems(ctx context.Context, cartID uuid.UUID) (*model.Cart, error) {
	cart := &model.Cart{}
	err := r.q.QueryRow(ctx,
		`SELECT id, user_id, created_at, updated_at FROM carts WHERE id = $1`, cartID,
	).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	rows, err := r.q.Query(ctx,
		`SELECT ci.id, ci.cart_id, ci.product_id, ci.variant_id, ci.quantity, ci.created_at, ci.updated_at,
		        p.name, p.sku, p.price, p.stock,
		        COALESCE(v.name, ''), COALESCE(v.sku, ''), v.price, v.stock
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 LEFT JOIN product_variants v ON v.id = ci.variant_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.created_at DESC`, cartID,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item         model.CartItem
			variantPrice decimal.NullDecimal
			variantStock *int
		)
		if err := rows.Scan(
			&item.ID, &item.CartID, &item.ProductID, &item.VariantID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt,
			&item.ProductName, &item.ProductSKU, &item.UnitPrice, &item.Stock,
			&item.VariantName, &item.VariantSKU, &variantPrice, &variantStock,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		if item.VariantID != nil {
			item.UnitPrice = model.EffectivePrice(item.UnitPrice, variantPrice)
			if variantStock != nil {
				item.Stock = *variantStock
			}
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}

	applied, err := r.getAppliedCoupon(ctx, cartID)
	if err != nil {
		return nil, err
	}
	cart.Coupon = applied
	return cart, nil
}

func (r *pgCartRepo) getAppliedCoupon(ctx context.Context, cartID uuid.UUID) (*model.AppliedCoupon, error) {
	ac := &model.AppliedCoupon{CartID: cartID}
	err := r.q.QueryRow(ctx,
		`SELECT ac.id, ac.discount_amount, ac.applied_at, `+couponColumns+`
		 FROM applied_coupons ac JOIN coupons c ON c.id = ac.coupon_id
		 WHERE ac.cart_id = $1`, cartID,
	).Scan(append([]any{&ac.ID, &ac.DiscountAmount, &ac.AppliedAt}, couponDest(&ac.Coupon)...)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get applied coupon: %w", err)
	}
	return ac, nil
}

func (r *pgCartRepo) LockCart(ctx context.Context, cartID uuid.UUID) error {
	var id uuid.UUID
	err := r.q.QueryRow(ctx, `SELECT id FROM carts WHERE id = $1 FOR UPDATE`, cartID).Scan(&id)
	if err != nil {
		return fmt.Errorf("lock cart: %w", err)
	}
	return nil
}

func (r *pgCartRepo) AddItem(ctx context.Context, item *model.CartItem) error {
	item.ID = uuid.New()
	query := `INSERT INTO cart_items (id, cart_id, product_id, variant_id, quantity, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			  ON CONFLICT ON CONSTRAINT cart_items_cart_product_variant_key
			  DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
			  RETURNING id, quantity, created_at, updated_at`
	err := r.q.QueryRow(ctx, query, item.ID, item.CartID, item.ProductID, item.VariantID, item.Quantity).
		Scan(&item.ID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return nil
}

func (r *pgCartRepo) UpdateItem(ctx context.Context, item *model.CartItem) error {
	err := r.q.QueryRow(ctx,
		`UPDATE cart_items SET quantity = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		item.ID, item.Quantity,
	).Scan(&item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}

func (r *pgCartRepo) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	ct, err := r.q.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ClearCart removes items and the applied coupon.
func (r *pgCartRepo) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return r.RemoveCoupon(ctx, cartID)
}

func (r *pgCartRepo) ApplyCoupon(ctx context.Context, ac *model.AppliedCoupon) error {
	ac.ID = uuid.New()
	err := r.q.QueryRow(ctx,
		`INSERT INTO applied_coupons (id, cart_id, coupon_id, discount_amount, applied_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (cart_id) DO UPDATE
		 SET coupon_id = EXCLUDED.coupon_id, discount_amount = EXCLUDED.discount_amount, applied_at = NOW()
		 RETURNING id, applied_at`,
		ac.ID, ac.CartID, ac.Coupon.ID, ac.DiscountAmount,
	).Scan(&ac.ID, &ac.AppliedAt)
	if err != nil {
		return fmt.Errorf("apply coupon: %w", err)
	}
	return nil
}

func (r *pgCartRepo) RemoveCoupon(ctx context.Context, cartID uuid.UUID) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM applied_coupons WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("remove coupon: %w", err)
	}
	return nil
}
