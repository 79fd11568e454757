package cart

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

// Line is a cart line joined with its product's live name and price.
type Line struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Available bool // false once the product is soft-deleted or out of stock for this quantity
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type View struct {
	Cart  orders.Cart
	Lines []Line
	Total decimal.Decimal
}

type Summary struct {
	Total decimal.Decimal
	Items int
	Empty bool
}

// View returns the cart priced at current product prices, creating the cart
// on first access like GetOrCreate.
func (s *Service) View(ctx context.Context, user orders.User) (View, error) {
	c, err := s.GetOrCreate(ctx, user)
	if err != nil {
		return View{}, err
	}
	return s.price(ctx, c)
}

// Summary never creates a cart.
func (s *Service) Summary(ctx context.Context, user orders.User) (Summary, error) {
	v, err := s.peek(ctx, user)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Total: v.Total, Items: v.Cart.ItemCount(), Empty: v.Cart.IsEmpty()}, nil
}

func (s *Service) peek(ctx context.Context, user orders.User) (View, error) {
	c, err := s.store.FindCartByUser(ctx, user.ID)
	if errors.Is(err, orders.ErrNotFound) {
		return View{Cart: orders.Cart{UserID: user.ID}, Total: decimal.Zero}, nil
	}
	if err != nil {
		return View{}, err
	}
	return s.price(ctx, c)
}

func (s *Service) price(ctx context.Context, c orders.Cart) (View, error) {
	v := View{Cart: c, Lines: make([]Line, 0, len(c.Lines)), Total: decimal.Zero}
	for _, cl := range c.Lines {
		p, err := s.store.FindProduct(ctx, cl.ProductID)
		if err != nil {
			return View{}, err
		}
		l := Line{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  cl.Quantity,
			Available: p.HasStock(cl.Quantity),
		}
		v.Lines = append(v.Lines, l)
		v.Total = v.Total.Add(l.Subtotal())
	}
	return v, nil
}
