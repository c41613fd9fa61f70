package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/go-ecommerce-checkout/internal/model"
)

const couponColumns = `c.id, c.code, c.name, c.discount_type, c.discount_value, c.minimum_amount,
	c.maximum_discount, c.usage_limit, c.used_count, c.valid_from, c.valid_until, c.is_active`

func couponDest(c *model.Coupon) []any {
	return []any{
		&c.ID, &c.Code, &c.Name, &c.DiscountType, &c.DiscountValue, &c.MinimumAmount,
		&c.MaximumDiscount, &c.UsageLimit, &c.UsedCount, &c.ValidFrom, &c.ValidUntil, &c.IsActive,
	}
}

type CouponRepository interface {
	Create(ctx context.Context, coupon *model.Coupon) error
	GetByCode(ctx context.Context, code string) (*model.Coupon, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) error
	ReleaseUsage(ctx context.Context, id uuid.UUID) error
}

type pgCouponRepo struct{ q Querier }

func NewCouponRepository(q Querier) CouponRepository {
	return &pgCouponRepo{q: q}
}

func (r *pgCouponRepo) Create(ctx context.Context, c *model.Coupon) error {
	c.ID = uuid.New()
	_, err := r.q.Exec(ctx,
		`INSERT INTO coupons (id, code, name, discount_type, discount_value, minimum_amount,
		                      maximum_discount, usage_limit, used_count, valid_from, valid_until, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.Code, c.Name, c.DiscountType, c.DiscountValue, c.MinimumAmount,
		c.MaximumDiscount, c.UsageLimit, c.UsedCount, c.ValidFrom, c.ValidUntil, c.IsActive,
	)
	if err != nil {
		return fmt.Errorf("create coupon: %w", err)
	}
	return nil
}

func (r *pgCouponRepo) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	c := &model.Coupon{}
	err := r.q.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons c WHERE c.code = $1`, code).Scan(couponDest(c)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

// IncrementUsage claims one use; the guard keeps used_count within usage_limit
// under concurrent checkouts.
func (r *pgCouponRepo) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	ct, err := r.q.Exec(ctx,
		`UPDATE coupons SET used_count = used_count + 1
		 WHERE id = $1 AND is_active AND (usage_limit IS NULL OR used_count < usage_limit)`, id,
	)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrCouponExhausted
	}
	return nil
}

func (r *pgCouponRepo) ReleaseUsage(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx, `UPDATE coupons SET used_count = used_count - 1 WHERE id = $1 AND used_count > 0`, id)
	if err != nil {
		return fmt.Errorf("release coupon usage: %w", err)
	}
	return nil
}
