// Package memstore is an in-memory orders.Store. Transactions are fully
// serialized and work on a cloned snapshot that replaces the live state only
// on commit, so a failing transaction leaves nothing behind.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

type state struct {
	users      map[string]orders.User
	products   map[string]orders.Product
	carts      map[string]orders.Cart // by cart id
	cartByUser map[string]string
	orders     map[string]orders.Order
}

func newState() *state {
	return &state{
		users:      map[string]orders.User{},
		products:   map[string]orders.Product{},
		carts:      map[string]orders.Cart{},
		cartByUser: map[string]string{},
		orders:     map[string]orders.Order{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = cloneCart(v)
	}
	for k, v := range s.cartByUser {
		c.cartByUser[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

var _ orders.Store = (*Store)(nil)

func New() *Store { return &Store{st: newState()} }

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r orders.Repo) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snap := s.st.clone()
	if err := fn(ctx, &repo{st: snap}); err != nil {
		return err
	}
	s.st = snap
	return nil
}

// do runs a single statement against the live state in autocommit fashion.
func (s *Store) do(fn func(r *repo) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&repo{st: s.st})
}

func (s *Store) FindUser(ctx context.Context, id string) (u orders.User, err error) {
	err = s.do(func(r *repo) error { u, err = r.FindUser(ctx, id); return err })
	return u, err
}

func (s *Store) SaveUser(ctx context.Context, u *orders.User) error {
	return s.do(func(r *repo) error { return r.SaveUser(ctx, u) })
}

func (s *Store) FindProduct(ctx context.Context, id string) (p orders.Product, err error) {
	err = s.do(func(r *repo) error { p, err = r.FindProduct(ctx, id); return err })
	return p, err
}

func (s *Store) ListProducts(ctx context.Context, f orders.ProductFilter) (ps []orders.Product, err error) {
	err = s.do(func(r *repo) error { ps, err = r.ListProducts(ctx, f); return err })
	return ps, err
}

func (s *Store) SaveProduct(ctx context.Context, p *orders.Product) error {
	return s.do(func(r *repo) error { return r.SaveProduct(ctx, p) })
}

func (s *Store) FindCartByUser(ctx context.Context, userID string) (c orders.Cart, err error) {
	err = s.do(func(r *repo) error { c, err = r.FindCartByUser(ctx, userID); return err })
	return c, err
}

func (s *Store) SaveCart(ctx context.Context, c *orders.Cart) error {
	return s.do(func(r *repo) error { return r.SaveCart(ctx, c) })
}

func (s *Store) DeleteCart(ctx context.Context, cartID string) error {
	return s.do(func(r *repo) error { return r.DeleteCart(ctx, cartID) })
}

func (s *Store) CreateOrder(ctx context.Context, o *orders.Order) error {
	return s.do(func(r *repo) error { return r.CreateOrder(ctx, o) })
}

func (s *Store) UpdateOrder(ctx context.Context, o *orders.Order) error {
	return s.do(func(r *repo) error { return r.UpdateOrder(ctx, o) })
}

func (s *Store) FindOrder(ctx context.Context, id string) (o orders.Order, err error) {
	err = s.do(func(r *repo) error { o, err = r.FindOrder(ctx, id); return err })
	return o, err
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	return s.do(func(r *repo) error { return r.DeleteOrder(ctx, id) })
}

func (s *Store) ListOrders(ctx context.Context, f orders.OrderFilter) (list []orders.Order, err error) {
	err = s.do(func(r *repo) error { list, err = r.ListOrders(ctx, f); return err })
	return list, err
}

func (s *Store) CountOrders(ctx context.Context, f orders.OrderFilter) (n int, err error) {
	err = s.do(func(r *repo) error { n, err = r.CountOrders(ctx, f); return err })
	return n, err
}

func (s *Store) SumOrderTotals(ctx context.Context, f orders.OrderFilter) (sum decimal.Decimal, err error) {
	err = s.do(func(r *repo) error { sum, err = r.SumOrderTotals(ctx, f); return err })
	return sum, err
}

type repo struct{ st *state }

func (r *repo) FindUser(_ context.Context, id string) (orders.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return orders.User{}, orders.ErrNotFound
	}
	return u, nil
}

func (r *repo) SaveUser(_ context.Context, u *orders.User) error {
	for _, other := range r.st.users {
		if other.ID != u.ID && strings.EqualFold(other.Email, u.Email) {
			return errDuplicate("users.email")
		}
	}
	r.st.users[u.ID] = *u
	return nil
}

func (r *repo) FindProduct(_ context.Context, id string) (orders.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return orders.Product{}, orders.ErrNotFound
	}
	return p, nil
}

func (r *repo) ListProducts(_ context.Context, f orders.ProductFilter) ([]orders.Product, error) {
	out := make([]orders.Product, 0, len(r.st.products))
	for _, p := range r.st.products {
		if p.Deleted {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.AvailableOnly && p.Stock <= 0 {
			continue
		}
		if f.MaxStock != nil && p.Stock >= *f.MaxStock {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *repo) SaveProduct(_ context.Context, p *orders.Product) error {
	if p.Stock < 0 {
		return errCheck("products.stock")
	}
	r.st.products[p.ID] = *p
	return nil
}

func (r *repo) FindCartByUser(_ context.Context, userID string) (orders.Cart, error) {
	id, ok := r.st.cartByUser[userID]
	if !ok {
		return orders.Cart{}, orders.ErrNotFound
	}
	return cloneCart(r.st.carts[id]), nil
}

func (r *repo) SaveCart(_ context.Context, c *orders.Cart) error {
	if existing, ok := r.st.cartByUser[c.UserID]; ok && existing != c.ID {
		// one cart per user: adopt the existing row like ON CONFLICT (user_id)
		c.ID = existing
		c.CreatedAt = r.st.carts[existing].CreatedAt
	}
	for _, l := range c.Lines {
		if l.Quantity <= 0 {
			return errCheck("cart_lines.quantity")
		}
	}
	r.st.carts[c.ID] = cloneCart(*c)
	r.st.cartByUser[c.UserID] = c.ID
	return nil
}

func (r *repo) DeleteCart(_ context.Context, cartID string) error {
	c, ok := r.st.carts[cartID]
	if !ok {
		return orders.ErrNotFound
	}
	delete(r.st.carts, cartID)
	delete(r.st.cartByUser, c.UserID)
	return nil
}

func (r *repo) CreateOrder(_ context.Context, o *orders.Order) error {
	if _, ok := r.st.orders[o.ID]; ok {
		return errDuplicate("orders.id")
	}
	r.st.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r *repo) UpdateOrder(_ context.Context, o *orders.Order) error {
	cur, ok := r.st.orders[o.ID]
	if !ok {
		return orders.ErrNotFound
	}
	cur.Status = o.Status
	cur.UpdatedAt = o.UpdatedAt
	r.st.orders[o.ID] = cur
	return nil
}

func (r *repo) FindOrder(_ context.Context, id string) (orders.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *repo) DeleteOrder(_ context.Context, id string) error {
	if _, ok := r.st.orders[id]; !ok {
		return orders.ErrNotFound
	}
	delete(r.st.orders, id)
	return nil
}

func (r *repo) ListOrders(_ context.Context, f orders.OrderFilter) ([]orders.Order, error) {
	out := make([]orders.Order, 0)
	for _, o := range r.st.orders {
		if matches(o, f) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *repo) CountOrders(_ context.Context, f orders.OrderFilter) (int, error) {
	n := 0
	for _, o := range r.st.orders {
		if matches(o, f) {
			n++
		}
	}
	return n, nil
}

func (r *repo) SumOrderTotals(_ context.Context, f orders.OrderFilter) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, o := range r.st.orders {
		if matches(o, f) {
			sum = sum.Add(o.Total)
		}
	}
	return sum, nil
}

func matches(o orders.Order, f orders.OrderFilter) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !o.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

func cloneCart(c orders.Cart) orders.Cart {
	c.Lines = append([]orders.CartLine(nil), c.Lines...)
	return c
}

func cloneOrder(o orders.Order) orders.Order {
	o.Lines = append([]orders.OrderLine(nil), o.Lines...)
	return o
}
