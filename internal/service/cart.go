package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/go-ecommerce-checkout/internal/model"
	"github.com/flicky/go-ecommerce-checkout/internal/repository"
)

// MaxLineQuantity bounds a single cart line.
const MaxLineQuantity = 10000

type CartService struct {
	store repository.Store
	now   func() time.Time
}

func NewCartService(store repository.Store) *CartService {
	return &CartService{store: store, now: time.Now}
}

// GetCart returns the user's cart, creating it on first access. The applied
// coupon's discount is recomputed against the current total.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	cart, err := s.store.Carts().GetOrCreateCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}
	cart, err = s.store.Carts().GetCartWithItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	if cart.Coupon != nil {
		cart.Coupon.DiscountAmount = cart.Coupon.Coupon.CalculateDiscount(cart.TotalPrice(), s.now())
	}
	return cart, nil
}

// AddItem merges into an existing line for the same product and variant. The
// stock check here is advisory; checkout checks again under lock.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, variantID *uuid.UUID, quantity int) error {
	if quantity <= 0 || quantity > MaxLineQuantity {
		return ErrInvalidQuantity
	}

	product, err := s.store.Products().GetByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if product == nil || !product.IsActive {
		return ErrProductNotFound
	}

	name, available := product.Name, product.Stock
	if variantID != nil {
		variant, err := s.store.Products().GetVariant(ctx, *variantID)
		if err != nil {
			return fmt.Errorf("get variant: %w", err)
		}
		if variant == nil || variant.ProductID != productID || !variant.IsActive {
			return ErrVariantNotFound
		}
		name, available = product.Name+" ("+variant.Name+")", variant.Stock
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return err
	}
	inCart := 0
	for _, item := range cart.Items {
		if item.ProductID == productID && model.SameVariant(item.VariantID, variantID) {
			inCart = item.Quantity
		}
	}
	if quantity > MaxLineQuantity-inCart {
		return ErrInvalidQuantity
	}
	if quantity > available-inCart {
		return &InsufficientStockError{ProductID: productID, ProductName: name, Requested: inCart + quantity, Available: available}
	}

	if err := s.store.Carts().AddItem(ctx, &model.CartItem{
		CartID:    cart.ID,
		ProductID: productID,
		VariantID: variantID,
		Quantity:  quantity,
	}); err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return nil
}

// UpdateItem sets the line quantity; zero or less removes the line.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) error {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return err
	}
	item := findItem(cart.Items, itemID)
	if item == nil {
		return ErrCartItemNotFound
	}
	if quantity <= 0 {
		return s.deleteItem(ctx, itemID)
	}
	if quantity > MaxLineQuantity {
		return ErrInvalidQuantity
	}
	if quantity > item.Stock {
		return &InsufficientStockError{ProductID: item.ProductID, ProductName: item.ProductName, Requested: quantity, Available: item.Stock}
	}

	if err := s.store.Carts().UpdateItem(ctx, &model.CartItem{ID: itemID, Quantity: quantity}); err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}

func (s *CartService) DeleteItem(ctx context.Context, userID, itemID uuid.UUID) error {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return err
	}
	if findItem(cart.Items, itemID) == nil {
		return ErrCartItemNotFound
	}
	return s.deleteItem(ctx, itemID)
}

func (s *CartService) deleteItem(ctx context.Context, itemID uuid.UUID) error {
	err := s.store.Carts().DeleteItem(ctx, itemID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrCartItemNotFound
	}
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.store.Carts().GetOrCreateCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("get or create cart: %w", err)
	}
	if err := s.store.Carts().ClearCart(ctx, cart.ID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (s *CartService) ApplyCoupon(ctx context.Context, userID uuid.UUID, code string) (*model.Cart, error) {
	coupon, err := s.store.Coupons().GetByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}

	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	total := cart.TotalPrice()
	if len(cart.Items) == 0 || !coupon.CanBeUsed(total, now) {
		return nil, ErrCouponNotApplicable
	}

	applied := &model.AppliedCoupon{
		CartID:         cart.ID,
		Coupon:         *coupon,
		DiscountAmount: coupon.CalculateDiscount(total, now),
	}
	if err := s.store.Carts().ApplyCoupon(ctx, applied); err != nil {
		return nil, fmt.Errorf("apply coupon: %w", err)
	}
	cart.Coupon = applied
	return cart, nil
}

func (s *CartService) RemoveCoupon(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.store.Carts().GetOrCreateCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("get or create cart: %w", err)
	}
	if err := s.store.Carts().RemoveCoupon(ctx, cart.ID); err != nil {
		return fmt.Errorf("remove coupon: %w", err)
	}
	return nil
}

func findItem(items []model.CartItem, id uuid.UUID) *model.CartItem {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}
