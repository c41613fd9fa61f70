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

// ProductRepository is the catalog store as seen by cart and checkout.
type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	CreateVariant(ctx context.Context, variant *model.Variant) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	GetVariant(ctx context.Context, id uuid.UUID) (*model.Variant, error)
	LockStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*model.StockLevel, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, quantity int) error
	RestoreStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, quantity int) error
}

type pgProductRepo struct{ q Querier }

func NewProductRepository(q Querier) ProductRepository {
	return &pgProductRepo{q: q}
}

func (r *pgProductRepo) Create(ctx context.Context, product *model.Product) error {
	product.ID = uuid.New()
	if product.SKU == "" {
		product.SKU = "SKU-" + product.ID.String()[:8]
	}
	query := `INSERT INTO products (id, name, sku, description, price, stock, is_active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING created_at, updated_at`
	err := r.q.QueryRow(ctx, query,
		product.ID, product.Name, product.SKU, product.Description, product.Price, product.Stock, product.IsActive,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) CreateVariant(ctx context.Context, v *model.Variant) error {
	v.ID = uuid.New()
	_, err := r.q.Exec(ctx,
		`INSERT INTO product_variants (id, product_id, name, sku, price, stock, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.ProductID, v.Name, v.SKU, v.Price, v.Stock, v.IsActive,
	)
	if err != nil {
		return fmt.Errorf("create variant: %w", err)
	}
	return nil
}

func (r *pgProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	query := `SELECT id, name, sku, description, price, stock, is_active, created_at, updated_at
			  FROM products WHERE id = $1`
	p := &model.Product{}
	err := r.q.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.SKU, &p.Description, &p.Price, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *pgProductRepo) GetVariant(ctx context.Context, id uuid.UUID) (*model.Variant, error) {
	v := &model.Variant{}
	err := r.q.QueryRow(ctx,
		`SELECT id, product_id, name, sku, price, stock, is_active FROM product_variants WHERE id = $1`, id,
	).Scan(&v.ID, &v.ProductID, &v.Name, &v.SKU, &v.Price, &v.Stock, &v.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get variant: %w", err)
	}
	return v, nil
}

// LockStock reads the stock-bearing row with FOR UPDATE: the variant row when a
// variant is given, the product row otherwise. Must run inside a transaction.
func (r *pgProductRepo) LockStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*model.StockLevel, error) {
	lvl := &model.StockLevel{ProductID: productID, VariantID: variantID}
	var err error
	if variantID == nil {
		err = r.q.QueryRow(ctx,
			`SELECT name, sku, price, stock FROM products WHERE id = $1 FOR UPDATE`, productID,
		).Scan(&lvl.ProductName, &lvl.ProductSKU, &lvl.UnitPrice, &lvl.Stock)
	} else {
		var variantPrice decimal.NullDecimal
		err = r.q.QueryRow(ctx,
			`SELECT p.name, p.sku, p.price, v.name, v.sku, v.price, v.stock
			 FROM product_variants v JOIN products p ON p.id = v.product_id
			 WHERE v.id = $1 AND v.product_id = $2
			 FOR UPDATE OF v`, *variantID, productID,
		).Scan(&lvl.ProductName, &lvl.ProductSKU, &lvl.UnitPrice, &lvl.VariantName, &lvl.VariantSKU, &variantPrice, &lvl.Stock)
		lvl.UnitPrice = model.EffectivePrice(lvl.UnitPrice, variantPrice)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock stock: %w", err)
	}
	return lvl, nil
}

func (r *pgProductRepo) DecrementStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, quantity int) error {
	var (
		query = `UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2`
		id    = productID
	)
	if variantID != nil {
		query = `UPDATE product_variants SET stock = stock - $2 WHERE id = $1 AND stock >= $2`
		id = *variantID
	}
	ct, err := r.q.Exec(ctx, query, id, quantity)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *pgProductRepo) RestoreStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, quantity int) error {
	var (
		query = `UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1`
		id    = productID
	)
	if variantID != nil {
		query = `UPDATE product_variants SET stock = stock + $2 WHERE id = $1`
		id = *variantID
	}
	if _, err := r.q.Exec(ctx, query, id, quantity); err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	return nil
}
