// Package cart manages each user's single active cart.
//
// Stock is checked against the product's current stock at the moment of each
// mutation; nothing is reserved until checkout.
package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

type Service struct {
	store orders.Store
	now   func() time.Time
}

func NewService(store orders.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetOrCreate returns the user's cart, creating an empty one on first access.
func (s *Service) GetOrCreate(ctx context.Context, user orders.User) (orders.Cart, error) {
	var out orders.Cart
	err := s.store.InTx(ctx, func(ctx context.Context, r orders.Repo) error {
		c, created, err := s.load(ctx, r, user.ID)
		if err != nil {
			return err
		}
		if created {
			if err := r.SaveCart(ctx, &c); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	return out, err
}

// AddItem accumulates qty onto the product's line, creating it if needed.
// The resulting line quantity may not exceed current stock.
func (s *Service) AddItem(ctx context.Context, user orders.User, productID string, qty int) error {
	if qty <= 0 {
		return orders.ErrInvalidQuantity
	}
	return s.mutate(ctx, user, func(ctx context.Context, r orders.Repo, c *orders.Cart) error {
		p, err := purchasable(ctx, r, productID)
		if err != nil {
			return err
		}
		want := qty
		if line, ok := c.Line(productID); ok {
			want += line.Quantity
		}
		if want > p.Stock {
			return &orders.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: want, Available: p.Stock}
		}
		c.SetLine(productID, want, s.now().UTC())
		return nil
	})
}

// UpdateQuantity sets the line quantity exactly. qty <= 0 removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, user orders.User, productID string, qty int) error {
	if qty <= 0 {
		return s.RemoveItem(ctx, user, productID)
	}
	return s.mutate(ctx, user, func(ctx context.Context, r orders.Repo, c *orders.Cart) error {
		if _, ok := c.Line(productID); !ok {
			return &orders.NotFoundError{Entity: orders.EntityCartLine, ID: productID}
		}
		p, err := purchasable(ctx, r, productID)
		if err != nil {
			return err
		}
		if qty > p.Stock {
			return &orders.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: qty, Available: p.Stock}
		}
		c.SetLine(productID, qty, s.now().UTC())
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, user orders.User, productID string) error {
	return s.mutate(ctx, user, func(_ context.Context, _ orders.Repo, c *orders.Cart) error {
		if !c.RemoveLine(productID) {
			return &orders.NotFoundError{Entity: orders.EntityCartLine, ID: productID}
		}
		return nil
	})
}

// Clear drops every line. A user without a cart is left without one.
func (s *Service) Clear(ctx context.Context, user orders.User) error {
	return s.store.InTx(ctx, func(ctx context.Context, r orders.Repo) error {
		c, err := r.FindCartByUser(ctx, user.ID)
		if errors.Is(err, orders.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		c.Lines = nil
		c.UpdatedAt = s.now().UTC()
		return r.SaveCart(ctx, &c)
	})
}

// Total sums quantity * current price. Zero when the user has no cart.
func (s *Service) Total(ctx context.Context, user orders.User) (decimal.Decimal, error) {
	v, err := s.peek(ctx, user)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Total, nil
}

func (s *Service) ItemCount(ctx context.Context, user orders.User) (int, error) {
	c, err := s.store.FindCartByUser(ctx, user.ID)
	if errors.Is(err, orders.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return c.ItemCount(), nil
}

func (s *Service) IsEmpty(ctx context.Context, user orders.User) (bool, error) {
	c, err := s.store.FindCartByUser(ctx, user.ID)
	if errors.Is(err, orders.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return c.IsEmpty(), nil
}

// mutate loads (or starts) the cart, applies fn and persists the cart with a
// fresh updatedAt in the same transaction. The cart is untouched when fn fails.
func (s *Service) mutate(ctx context.Context, user orders.User, fn func(ctx context.Context, r orders.Repo, c *orders.Cart) error) error {
	return s.store.InTx(ctx, func(ctx context.Context, r orders.Repo) error {
		c, _, err := s.load(ctx, r, user.ID)
		if err != nil {
			return err
		}
		if err := fn(ctx, r, &c); err != nil {
			return err
		}
		c.UpdatedAt = s.now().UTC()
		return r.SaveCart(ctx, &c)
	})
}

func (s *Service) load(ctx context.Context, r orders.Repo, userID string) (orders.Cart, bool, error) {
	c, err := r.FindCartByUser(ctx, userID)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, orders.ErrNotFound) {
		return orders.Cart{}, false, err
	}
	now := s.now().UTC()
	return orders.Cart{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}, true, nil
}

// purchasable hides soft-deleted products behind the same not-found failure
// as missing ones.
func purchasable(ctx context.Context, r orders.Repo, productID string) (orders.Product, error) {
	p, err := r.FindProduct(ctx, productID)
	if errors.Is(err, orders.ErrNotFound) || (err == nil && p.Deleted) {
		return orders.Product{}, &orders.NotFoundError{Entity: orders.EntityProduct, ID: productID}
	}
	return p, err
}
