package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-ecommerce-checkout/internal/model"
	"github.com/flicky/go-ecommerce-checkout/internal/payment"
	"github.com/flicky/go-ecommerce-checkout/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memState is everything the fake store holds. clone gives WithTx its
// rollback snapshot.
type memState struct {
	users    map[uuid.UUID]model.User
	products map[uuid.UUID]model.Product
	variants map[uuid.UUID]model.Variant
	carts    map[uuid.UUID]model.Cart
	items    map[uuid.UUID]model.CartItem
	coupons  map[uuid.UUID]model.Coupon
	applied  map[uuid.UUID]model.AppliedCoupon
	orders   map[uuid.UUID]model.Order
	history  []model.OrderStatusHistory
	txns     map[uuid.UUID]model.PaymentTransaction
	intents  map[string]model.StripePaymentIntent
	webhooks map[string]model.PaymentWebhook
}

func newMemState() *memState {
	return &memState{
		users:    map[uuid.UUID]model.User{},
		products: map[uuid.UUID]model.Product{},
		variants: map[uuid.UUID]model.Variant{},
		carts:    map[uuid.UUID]model.Cart{},
		items:    map[uuid.UUID]model.CartItem{},
		coupons:  map[uuid.UUID]model.Coupon{},
		applied:  map[uuid.UUID]model.AppliedCoupon{},
		orders:   map[uuid.UUID]model.Order{},
		txns:     map[uuid.UUID]model.PaymentTransaction{},
		intents:  map[string]model.StripePaymentIntent{},
		webhooks: map[string]model.PaymentWebhook{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memState) clone() *memState {
	orders := make(map[uuid.UUID]model.Order, len(s.orders))
	for id, o := range s.orders {
		o.Items = append([]model.OrderItem(nil), o.Items...)
		orders[id] = o
	}
	return &memState{
		users:    cloneMap(s.users),
		products: cloneMap(s.products),
		variants: cloneMap(s.variants),
		carts:    cloneMap(s.carts),
		items:    cloneMap(s.items),
		coupons:  cloneMap(s.coupons),
		applied:  cloneMap(s.applied),
		orders:   orders,
		history:  append([]model.OrderStatusHistory(nil), s.history...),
		txns:     cloneMap(s.txns),
		intents:  cloneMap(s.intents),
		webhooks: cloneMap(s.webhooks),
	}
}

type fakeRoot struct {
	txMu     sync.Mutex
	mu       sync.Mutex
	state    *memState
	failures map[string][]error
}

// fakeStore serialises top-level transactions, which is stricter than read
// committed but gives the same outcome for the row locks checkout takes.
type fakeStore struct {
	root *fakeRoot
	inTx bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{root: &fakeRoot{state: newMemState(), failures: map[string][]error{}}}
}

// failNext queues errors for op; a nil entry lets that call through.
func (s *fakeStore) failNext(op string, errs ...error) {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	s.root.failures[op] = append(s.root.failures[op], errs...)
}

// lock must be held by the caller of check.
func (r *fakeRoot) check(op string) error {
	queue := r.failures[op]
	if len(queue) == 0 {
		return nil
	}
	r.failures[op] = queue[1:]
	return queue[0]
}

func (s *fakeStore) do(op string, fn func(st *memState) error) error {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	if err := s.root.check(op); err != nil {
		return err
	}
	return fn(s.root.state)
}

func (s *fakeStore) Users() repository.UserRepository       { return fakeUsers{s} }
func (s *fakeStore) Products() repository.ProductRepository { return fakeProducts{s} }
func (s *fakeStore) Carts() repository.CartRepository       { return fakeCarts{s} }
func (s *fakeStore) Coupons() repository.CouponRepository   { return fakeCoupons{s} }
func (s *fakeStore) Orders() repository.OrderRepository     { return fakeOrders{s} }
func (s *fakeStore) Payments() repository.PaymentRepository { return fakePayments{s} }

func (s *fakeStore) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	if !s.inTx {
		s.root.txMu.Lock()
		defer s.root.txMu.Unlock()
	}
	s.root.mu.Lock()
	snapshot := s.root.state.clone()
	s.root.mu.Unlock()

	if err := fn(&fakeStore{root: s.root, inTx: true}); err != nil {
		s.root.mu.Lock()
		s.root.state = snapshot
		s.root.mu.Unlock()
		return err
	}
	return nil
}

// --- seeding and inspection helpers ---

func (s *fakeStore) seedUser() model.User {
	u := model.User{ID: uuid.New(), Email: "buyer@example.com", FirstName: "Bea", LastName: "Buyer", Role: "customer"}
	s.root.state.users[u.ID] = u
	return u
}

func (s *fakeStore) seedProduct(name, price string, stock int) model.Product {
	p := model.Product{
		ID: uuid.New(), Name: name, SKU: "SKU-" + name, Price: decimal.RequireFromString(price),
		Stock: stock, IsActive: true,
	}
	s.root.state.products[p.ID] = p
	return p
}

func (s *fakeStore) seedVariant(productID uuid.UUID, name string, price *string, stock int) model.Variant {
	v := model.Variant{ID: uuid.New(), ProductID: productID, Name: name, SKU: "VAR-" + name, Stock: stock, IsActive: true}
	if price != nil {
		v.Price = decimal.NewNullDecimal(decimal.RequireFromString(*price))
	}
	s.root.state.variants[v.ID] = v
	return v
}

func (s *fakeStore) seedCartItem(userID, productID uuid.UUID, variantID *uuid.UUID, qty int) uuid.UUID {
	cart, _ := s.Carts().GetOrCreateCart(context.Background(), userID)
	item := &model.CartItem{CartID: cart.ID, ProductID: productID, VariantID: variantID, Quantity: qty}
	_ = s.Carts().AddItem(context.Background(), item)
	return item.ID
}

func (s *fakeStore) seedCoupon(c model.Coupon) model.Coupon {
	c.ID = uuid.New()
	s.root.state.coupons[c.ID] = c
	return c
}

func (s *fakeStore) seedOrder(o model.Order) model.Order {
	o.ID = uuid.New()
	if o.OrderNumber == "" {
		o.OrderNumber = "ORD-" + o.ID.String()[:8]
	}
	s.root.state.orders[o.ID] = o
	return o
}

func (s *fakeStore) stock(productID uuid.UUID) int {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	return s.root.state.products[productID].Stock
}

func (s *fakeStore) variantStock(id uuid.UUID) int {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	return s.root.state.variants[id].Stock
}

func (s *fakeStore) order(id uuid.UUID) (model.Order, bool) {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	o, ok := s.root.state.orders[id]
	return o, ok
}

func (s *fakeStore) orderCount() int {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	return len(s.root.state.orders)
}

func (s *fakeStore) historyFor(orderID uuid.UUID) []model.OrderStatusHistory {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	var out []model.OrderStatusHistory
	for _, h := range s.root.state.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out
}

func (s *fakeStore) cartItemCount(userID uuid.UUID) int {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	n := 0
	for _, c := range s.root.state.carts {
		if c.UserID != userID {
			continue
		}
		for _, it := range s.root.state.items {
			if it.CartID == c.ID {
				n++
			}
		}
	}
	return n
}

func (s *fakeStore) couponUsed(id uuid.UUID) int {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	return s.root.state.coupons[id].UsedCount
}

func (s *fakeStore) transactionsFor(orderID uuid.UUID) []model.PaymentTransaction {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	var out []model.PaymentTransaction
	for _, t := range s.root.state.txns {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out
}

func (s *fakeStore) webhook(gateway, eventID string) (model.PaymentWebhook, bool) {
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	w, ok := s.root.state.webhooks[gateway+"|"+eventID]
	return w, ok
}

// --- users ---

type fakeUsers struct{ s *fakeStore }

func (f fakeUsers) Create(_ context.Context, u *model.User) error {
	return f.s.do("Users.Create", func(st *memState) error {
		u.ID = uuid.New()
		st.users[u.ID] = *u
		return nil
	})
}

func (f fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	var out *model.User
	err := f.s.do("Users.GetByID", func(st *memState) error {
		if u, ok := st.users[id]; ok {
			out = &u
		}
		return nil
	})
	return out, err
}

func (f fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	var out *model.User
	err := f.s.do("Users.GetByEmail", func(st *memState) error {
		for _, u := range st.users {
			if u.Email == email {
				u := u
				out = &u
			}
		}
		return nil
	})
	return out, err
}

// --- products ---

type fakeProducts struct{ s *fakeStore }

func (f fakeProducts) Create(_ context.Context, p *model.Product) error {
	return f.s.do("Products.Create", func(st *memState) error {
		p.ID = uuid.New()
		st.products[p.ID] = *p
		return nil
	})
}

func (f fakeProducts) CreateVariant(_ context.Context, v *model.Variant) error {
	return f.s.do("Products.CreateVariant", func(st *memState) error {
		v.ID = uuid.New()
		st.variants[v.ID] = *v
		return nil
	})
}

func (f fakeProducts) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	var out *model.Product
	err := f.s.do("Products.GetByID", func(st *memState) error {
		if p, ok := st.products[id]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

func (f fakeProducts) GetVariant(_ context.Context, id uuid.UUID) (*model.Variant, error) {
	var out *model.Variant
	err := f.s.do("Products.GetVariant", func(st *memState) error {
		if v, ok := st.variants[id]; ok {
			out = &v
		}
		return nil
	})
	return out, err
}

func (f fakeProducts) LockStock(_ context.Context, productID uuid.UUID, variantID *uuid.UUID) (*model.StockLevel, error) {
	var out *model.StockLevel
	err := f.s.do("Products.LockStock", func(st *memState) error {
		p, ok := st.products[productID]
		if !ok {
			return nil
		}
		lvl := &model.StockLevel{
			ProductID: productID, VariantID: variantID, ProductName: p.Name, ProductSKU: p.SKU,
			UnitPrice: p.Price, Stock: p.Stock,
		}
		if variantID != nil {
			v, ok := st.variants[*variantID]
			if !ok || v.ProductID != productID {
				return nil
			}
			lvl.VariantName, lvl.VariantSKU, lvl.Stock = v.Name, v.SKU, v.Stock
			lvl.UnitPrice = model.EffectivePrice(p.Price, v.Price)
		}
		out = lvl
		return nil
	})
	return out, err
}

func (f fakeProducts) DecrementStock(_ context.Context, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	return f.s.do("Products.DecrementStock", func(st *memState) error {
		if variantID != nil {
			v := st.variants[*variantID]
			if v.Stock < qty {
				return repository.ErrInsufficientStock
			}
			v.Stock -= qty
			st.variants[v.ID] = v
			return nil
		}
		p := st.products[productID]
		if p.Stock < qty {
			return repository.ErrInsufficientStock
		}
		p.Stock -= qty
		st.products[p.ID] = p
		return nil
	})
}

func (f fakeProducts) RestoreStock(_ context.Context, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	return f.s.do("Products.RestoreStock", func(st *memState) error {
		if variantID != nil {
			v := st.variants[*variantID]
			v.Stock += qty
			st.variants[v.ID] = v
			return nil
		}
		p := st.products[productID]
		p.Stock += qty
		st.products[p.ID] = p
		return nil
	})
}

// --- carts ---

type fakeCarts struct{ s *fakeStore }

func (f fakeCarts) GetOrCreateCart(_ context.Context, userID uuid.UUID) (*model.Cart, error) {
	var out *model.Cart
	err := f.s.do("Carts.GetOrCreateCart", func(st *memState) error {
		for _, c := range st.carts {
			if c.UserID == userID {
				c := c
				out = &c
				return nil
			}
		}
		c := model.Cart{ID: uuid.New(), UserID: userID, CreatedAt: time.Now()}
		st.carts[c.ID] = c
		out = &c
		return nil
	})
	return out, err
}

func (f fakeCarts) GetCartWithItems(_ context.Context, cartID uuid.UUID) (*model.Cart, error) {
	var out *model.Cart
	err := f.s.do("Carts.GetCartWithItems", func(st *memState) error {
		c, ok := st.carts[cartID]
		if !ok {
			return nil
		}
		c.Items = nil
		for _, it := range st.items {
			if it.CartID != cartID {
				continue
			}
			p := st.products[it.ProductID]
			it.ProductName, it.ProductSKU, it.UnitPrice, it.Stock = p.Name, p.SKU, p.Price, p.Stock
			if it.VariantID != nil {
				v := st.variants[*it.VariantID]
				it.VariantName, it.VariantSKU, it.Stock = v.Name, v.SKU, v.Stock
				it.UnitPrice = model.EffectivePrice(p.Price, v.Price)
			}
			c.Items = append(c.Items, it)
		}
		sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].CreatedAt.After(c.Items[j].CreatedAt) })
		if ac, ok := st.applied[cartID]; ok {
			ac.Coupon = st.coupons[ac.Coupon.ID]
			c.Coupon = &ac
		}
		out = &c
		return nil
	})
	return out, err
}

func (f fakeCarts) LockCart(_ context.Context, cartID uuid.UUID) error {
	return f.s.do("Carts.LockCart", func(st *memState) error {
		if _, ok := st.carts[cartID]; !ok {
			return pgx.ErrNoRows
		}
		return nil
	})
}

func (f fakeCarts) AddItem(_ context.Context, item *model.CartItem) error {
	return f.s.do("Carts.AddItem", func(st *memState) error {
		for id, it := range st.items {
			if it.CartID == item.CartID && it.ProductID == item.ProductID && model.SameVariant(it.VariantID, item.VariantID) {
				it.Quantity += item.Quantity
				st.items[id] = it
				item.ID, item.Quantity = id, it.Quantity
				return nil
			}
		}
		item.ID = uuid.New()
		item.CreatedAt = time.Now()
		st.items[item.ID] = *item
		return nil
	})
}

func (f fakeCarts) UpdateItem(_ context.Context, item *model.CartItem) error {
	return f.s.do("Carts.UpdateItem", func(st *memState) error {
		if it, ok := st.items[item.ID]; ok {
			it.Quantity = item.Quantity
			st.items[item.ID] = it
		}
		return nil
	})
}

func (f fakeCarts) DeleteItem(_ context.Context, itemID uuid.UUID) error {
	return f.s.do("Carts.DeleteItem", func(st *memState) error {
		if _, ok := st.items[itemID]; !ok {
			return pgx.ErrNoRows
		}
		delete(st.items, itemID)
		return nil
	})
}

func (f fakeCarts) ClearCart(_ context.Context, cartID uuid.UUID) error {
	return f.s.do("Carts.ClearCart", func(st *memState) error {
		for id, it := range st.items {
			if it.CartID == cartID {
				delete(st.items, id)
			}
		}
		delete(st.applied, cartID)
		return nil
	})
}

func (f fakeCarts) ApplyCoupon(_ context.Context, ac *model.AppliedCoupon) error {
	return f.s.do("Carts.ApplyCoupon", func(st *memState) error {
		ac.ID = uuid.New()
		ac.AppliedAt = time.Now()
		st.applied[ac.CartID] = *ac
		return nil
	})
}

func (f fakeCarts) RemoveCoupon(_ context.Context, cartID uuid.UUID) error {
	return f.s.do("Carts.RemoveCoupon", func(st *memState) error {
		delete(st.applied, cartID)
		return nil
	})
}

// --- coupons ---

type fakeCoupons struct{ s *fakeStore }

func (f fakeCoupons) Create(_ context.Context, c *model.Coupon) error {
	return f.s.do("Coupons.Create", func(st *memState) error {
		c.ID = uuid.New()
		st.coupons[c.ID] = *c
		return nil
	})
}

func (f fakeCoupons) GetByCode(_ context.Context, code string) (*model.Coupon, error) {
	var out *model.Coupon
	err := f.s.do("Coupons.GetByCode", func(st *memState) error {
		for _, c := range st.coupons {
			if c.Code == code {
				c := c
				out = &c
			}
		}
		return nil
	})
	return out, err
}

func (f fakeCoupons) IncrementUsage(_ context.Context, id uuid.UUID) error {
	return f.s.do("Coupons.IncrementUsage", func(st *memState) error {
		c := st.coupons[id]
		if !c.IsActive || (c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit) {
			return repository.ErrCouponExhausted
		}
		c.UsedCount++
		st.coupons[id] = c
		return nil
	})
}

func (f fakeCoupons) ReleaseUsage(_ context.Context, id uuid.UUID) error {
	return f.s.do("Coupons.ReleaseUsage", func(st *memState) error {
		c := st.coupons[id]
		if c.UsedCount > 0 {
			c.UsedCount--
		}
		st.coupons[id] = c
		return nil
	})
}

// --- orders ---

type fakeOrders struct{ s *fakeStore }

func (f fakeOrders) Create(_ context.Context, o *model.Order) error {
	return f.s.do("Orders.Create", func(st *memState) error {
		for _, existing := range st.orders {
			if existing.OrderNumber == o.OrderNumber {
				return repository.ErrDuplicateOrderNumber
			}
		}
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		o.CreatedAt, o.UpdatedAt = time.Now(), time.Now()
		for i := range o.Items {
			o.Items[i].ID = uuid.New()
			o.Items[i].OrderID = o.ID
			o.Items[i].Recalculate()
		}
		stored := *o
		stored.Items = append([]model.OrderItem(nil), o.Items...)
		stored.History = nil
		st.orders[o.ID] = stored
		return nil
	})
}

func (f fakeOrders) get(op string, id uuid.UUID) (*model.Order, error) {
	var out *model.Order
	err := f.s.do(op, func(st *memState) error {
		if o, ok := st.orders[id]; ok {
			o.Items = append([]model.OrderItem(nil), o.Items...)
			out = &o
		}
		return nil
	})
	return out, err
}

func (f fakeOrders) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	return f.get("Orders.GetByID", id)
}

func (f fakeOrders) GetByIDForUpdate(_ context.Context, id uuid.UUID) (*model.Order, error) {
	return f.get("Orders.GetByIDForUpdate", id)
}

func (f fakeOrders) ListByUserID(_ context.Context, userID uuid.UUID) ([]model.Order, error) {
	var out []model.Order
	err := f.s.do("Orders.ListByUserID", func(st *memState) error {
		for _, o := range st.orders {
			if o.UserID == userID {
				out = append(out, o)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

func (f fakeOrders) Update(_ context.Context, o *model.Order) error {
	return f.s.do("Orders.Update", func(st *memState) error {
		stored, ok := st.orders[o.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		stored.Status, stored.IsPaid = o.Status, o.IsPaid
		stored.PaymentMethod, stored.PaymentReference = o.PaymentMethod, o.PaymentReference
		stored.TrackingNumber, stored.Notes = o.TrackingNumber, o.Notes
		stored.ShippedAt, stored.DeliveredAt = o.ShippedAt, o.DeliveredAt
		stored.UpdatedAt = time.Now()
		st.orders[o.ID] = stored
		return nil
	})
}

func (f fakeOrders) AddStatusHistory(_ context.Context, h *model.OrderStatusHistory) error {
	return f.s.do("Orders.AddStatusHistory", func(st *memState) error {
		h.ID = uuid.New()
		h.CreatedAt = time.Now()
		st.history = append(st.history, *h)
		return nil
	})
}

func (f fakeOrders) ListStatusHistory(_ context.Context, orderID uuid.UUID) ([]model.OrderStatusHistory, error) {
	var out []model.OrderStatusHistory
	err := f.s.do("Orders.ListStatusHistory", func(st *memState) error {
		for i := len(st.history) - 1; i >= 0; i-- {
			if st.history[i].OrderID == orderID {
				out = append(out, st.history[i])
			}
		}
		return nil
	})
	return out, err
}

func (f fakeOrders) Delete(_ context.Context, id uuid.UUID) error {
	return f.s.do("Orders.Delete", func(st *memState) error {
		delete(st.orders, id)
		kept := st.history[:0:0]
		for _, h := range st.history {
			if h.OrderID != id {
				kept = append(kept, h)
			}
		}
		st.history = kept
		for tid, t := range st.txns {
			if t.OrderID != id {
				continue
			}
			for pid, pi := range st.intents {
				if pi.TransactionID == tid {
					delete(st.intents, pid)
				}
			}
			delete(st.txns, tid)
		}
		return nil
	})
}

// --- payments ---

type fakePayments struct{ s *fakeStore }

func (f fakePayments) CreateTransaction(_ context.Context, t *model.PaymentTransaction) error {
	return f.s.do("Payments.CreateTransaction", func(st *memState) error {
		t.ID = uuid.New()
		st.txns[t.ID] = *t
		return nil
	})
}

func (f fakePayments) UpdateTransaction(_ context.Context, t *model.PaymentTransaction) error {
	return f.s.do("Payments.UpdateTransaction", func(st *memState) error {
		st.txns[t.ID] = *t
		return nil
	})
}

func (f fakePayments) GetTransactionByGatewayID(_ context.Context, gatewayID string) (*model.PaymentTransaction, error) {
	var out *model.PaymentTransaction
	err := f.s.do("Payments.GetTransactionByGatewayID", func(st *memState) error {
		for _, t := range st.txns {
			if t.GatewayTransactionID == gatewayID {
				t := t
				out = &t
			}
		}
		return nil
	})
	return out, err
}

func (f fakePayments) CreateStripeIntent(_ context.Context, pi *model.StripePaymentIntent) error {
	return f.s.do("Payments.CreateStripeIntent", func(st *memState) error {
		pi.ID = uuid.New()
		st.intents[pi.PaymentIntentID] = *pi
		return nil
	})
}

func (f fakePayments) UpdateStripeIntentStatus(_ context.Context, id, status string) error {
	return f.s.do("Payments.UpdateStripeIntentStatus", func(st *memState) error {
		if pi, ok := st.intents[id]; ok {
			pi.Status = status
			st.intents[id] = pi
		}
		return nil
	})
}

func (f fakePayments) InsertWebhook(_ context.Context, w *model.PaymentWebhook) (bool, error) {
	var created bool
	err := f.s.do("Payments.InsertWebhook", func(st *memState) error {
		key := w.Gateway + "|" + w.EventID
		if _, ok := st.webhooks[key]; ok {
			return nil
		}
		w.ID = uuid.New()
		st.webhooks[key] = *w
		created = true
		return nil
	})
	return created, err
}

func (f fakePayments) LockWebhook(_ context.Context, gateway, eventID string) (*model.PaymentWebhook, error) {
	var out *model.PaymentWebhook
	err := f.s.do("Payments.LockWebhook", func(st *memState) error {
		if w, ok := st.webhooks[gateway+"|"+eventID]; ok {
			out = &w
		}
		return nil
	})
	return out, err
}

func (f fakePayments) MarkWebhookProcessed(_ context.Context, id uuid.UUID) error {
	return f.s.do("Payments.MarkWebhookProcessed", func(st *memState) error {
		for k, w := range st.webhooks {
			if w.ID == id {
				now := time.Now()
				w.Processed, w.ProcessedAt, w.ErrorMessage = true, &now, ""
				st.webhooks[k] = w
			}
		}
		return nil
	})
}

func (f fakePayments) RecordWebhookFailure(_ context.Context, w *model.PaymentWebhook) error {
	return f.s.do("Payments.RecordWebhookFailure", func(st *memState) error {
		key := w.Gateway + "|" + w.EventID
		existing, ok := st.webhooks[key]
		if !ok {
			w.ID = uuid.New()
			st.webhooks[key] = *w
			return nil
		}
		if !existing.Processed {
			existing.ErrorMessage = w.ErrorMessage
			st.webhooks[key] = existing
		}
		return nil
	})
}

// --- gateway, publisher, cache ---

type fakeGateway struct {
	mu         sync.Mutex
	createErr  error
	retrieve   map[string]payment.IntentStatus
	created    []map[string]string
	cancelled  []string
	retrieveN  int
	nextIntent int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{retrieve: map[string]payment.IntentStatus{}}
}

func (g *fakeGateway) Name() string { return "stripe" }

func (g *fakeGateway) CreateIntent(_ context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.nextIntent++
	id := "pi_" + uuid.NewString()[:8]
	g.created = append(g.created, metadata)
	return &payment.Intent{
		ID: id, ClientSecret: id + "_secret", Status: payment.IntentRequiresPaymentMethod,
		Amount: payment.ToMinorUnits(amount, currency), Currency: currency, Metadata: metadata,
	}, nil
}

func (g *fakeGateway) RetrieveIntent(_ context.Context, id string) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retrieveN++
	status, ok := g.retrieve[id]
	if !ok {
		return nil, &payment.PaymentGatewayError{Op: "retrieve intent", Err: errors.New("no such intent")}
	}
	return &payment.Intent{ID: id, Status: status}, nil
}

func (g *fakeGateway) CancelIntent(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, id)
	return nil
}

// webhookBody is the fake wire format; the fake accepts only the header
// "valid".
type webhookBody struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	IntentID string `json:"intent_id"`
	OrderID  string `json:"order_id"`
}

func (g *fakeGateway) VerifyWebhook(payload []byte, header string) (*payment.Event, error) {
	var body webhookBody
	if header != "valid" || json.Unmarshal(payload, &body) != nil {
		return nil, payment.ErrWebhookSignature
	}
	return &payment.Event{
		ID:   body.ID,
		Type: body.Type,
		Raw:  payload,
		Intent: &payment.Intent{
			ID: body.IntentID, Metadata: map[string]string{"order_id": body.OrderID},
		},
	}, nil
}

func webhookPayload(id, eventType, intentID string, orderID uuid.UUID) []byte {
	b, _ := json.Marshal(webhookBody{ID: id, Type: eventType, IntentID: intentID, OrderID: orderID.String()})
	return b
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e model.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type memProcessed struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemProcessed() *memProcessed { return &memProcessed{seen: map[string]bool{}} }

func (m *memProcessed) IsProcessed(_ context.Context, gateway, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[gateway+"|"+id], nil
}

func (m *memProcessed) MarkProcessed(_ context.Context, gateway, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[gateway+"|"+id] = true
	return nil
}
