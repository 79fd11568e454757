package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

var (
	ErrInvalidProduct = errors.New("invalid product")
	ErrNegativeStock  = errors.New("stock cannot be negative")
	ErrNegativePrice  = errors.New("price cannot be negative")
	ErrPricePrecision = errors.New("price has more than two decimal places")
)

type NewProduct struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    orders.Category
}

// Service is the catalog boundary. Soft-deleted products are invisible here:
// lookups report them as not found.
type Service struct {
	store orders.Store
	now   func() time.Time
}

func NewService(store orders.Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Get(ctx context.Context, id string) (orders.Product, error) {
	return visible(ctx, s.store, id)
}

func (s *Service) List(ctx context.Context, f orders.ProductFilter) ([]orders.Product, error) {
	return s.store.ListProducts(ctx, f)
}

// LowStock lists products with stock strictly below threshold.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]orders.Product, error) {
	return s.store.ListProducts(ctx, orders.ProductFilter{MaxStock: &threshold})
}

// CheckStock is false for missing or deleted products.
func (s *Service) CheckStock(ctx context.Context, id string, qty int) (bool, error) {
	p, err := s.store.FindProduct(ctx, id)
	if errors.Is(err, orders.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.HasStock(qty), nil
}

func (s *Service) Create(ctx context.Context, in NewProduct) (orders.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		return orders.Product{}, errors.Join(ErrInvalidProduct, errors.New("name is required"))
	case in.Price.IsNegative():
		return orders.Product{}, ErrNegativePrice
	case !wholeCents(in.Price):
		return orders.Product{}, ErrPricePrecision
	case in.Stock < 0:
		return orders.Product{}, ErrNegativeStock
	case !in.Category.Valid():
		return orders.Product{}, errors.Join(ErrInvalidProduct, errors.New("unknown category"))
	}
	now := s.now().UTC()
	p := orders.Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		Category:    in.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.SaveProduct(ctx, &p); err != nil {
		return orders.Product{}, err
	}
	return p, nil
}

func (s *Service) SetPrice(ctx context.Context, id string, price decimal.Decimal) (orders.Product, error) {
	if price.IsNegative() {
		return orders.Product{}, ErrNegativePrice
	}
	if !wholeCents(price) {
		return orders.Product{}, ErrPricePrecision
	}
	return s.update(ctx, id, func(p *orders.Product) { p.Price = price })
}

func (s *Service) SetStock(ctx context.Context, id string, stock int) (orders.Product, error) {
	if stock < 0 {
		return orders.Product{}, ErrNegativeStock
	}
	return s.update(ctx, id, func(p *orders.Product) { p.Stock = stock })
}

// Delete soft-deletes; order history keeps referencing the row.
func (s *Service) Delete(ctx context.Context, id string) error {
	_, err := s.update(ctx, id, func(p *orders.Product) { p.Deleted = true })
	return err
}

func (s *Service) update(ctx context.Context, id string, mutate func(p *orders.Product)) (orders.Product, error) {
	var out orders.Product
	err := s.store.InTx(ctx, func(ctx context.Context, r orders.Repo) error {
		p, err := visible(ctx, r, id)
		if err != nil {
			return err
		}
		mutate(&p)
		p.UpdatedAt = s.now().UTC()
		if err := r.SaveProduct(ctx, &p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

type productFinder interface {
	FindProduct(ctx context.Context, id string) (orders.Product, error)
}

func visible(ctx context.Context, r productFinder, id string) (orders.Product, error) {
	p, err := r.FindProduct(ctx, id)
	if errors.Is(err, orders.ErrNotFound) || (err == nil && p.Deleted) {
		return orders.Product{}, &orders.NotFoundError{Entity: orders.EntityProduct, ID: id}
	}
	return p, err
}

// wholeCents matches the NUMERIC(12,2) price column; trailing zeros are fine.
func wholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
