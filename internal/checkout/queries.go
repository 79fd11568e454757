package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

func (s *Service) Get(ctx context.Context, orderID string) (orders.Order, error) {
	o, err := s.store.FindOrder(ctx, orderID)
	if err != nil {
		return orders.Order{}, notFound(err, orders.EntityOrder, orderID)
	}
	return o, nil
}

// GetForUser hides other users' orders behind NotFound; admins see all.
func (s *Service) GetForUser(ctx context.Context, user orders.User, orderID string) (orders.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if o.UserID != user.ID && !user.IsAdmin() {
		return orders.Order{}, &orders.NotFoundError{Entity: orders.EntityOrder, ID: orderID}
	}
	return o, nil
}

// ListByUser returns the user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]orders.Order, error) {
	return s.store.ListOrders(ctx, orders.OrderFilter{UserID: userID})
}

func (s *Service) ListByStatus(ctx context.Context, status orders.Status) ([]orders.Order, error) {
	return s.store.ListOrders(ctx, orders.OrderFilter{Status: status})
}

func (s *Service) ListAll(ctx context.Context) ([]orders.Order, error) {
	return s.store.ListOrders(ctx, orders.OrderFilter{})
}

// ListBetween covers [from, to).
func (s *Service) ListBetween(ctx context.Context, from, to time.Time) ([]orders.Order, error) {
	return s.store.ListOrders(ctx, orders.OrderFilter{From: from, To: to})
}

func (s *Service) CountByStatus(ctx context.Context, status orders.Status) (int, error) {
	return s.store.CountOrders(ctx, orders.OrderFilter{Status: status})
}

// Counts reports the number of orders in every status.
func (s *Service) Counts(ctx context.Context) (map[orders.Status]int, error) {
	out := make(map[orders.Status]int, len(orders.Statuses()))
	for _, st := range orders.Statuses() {
		n, err := s.CountByStatus(ctx, st)
		if err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, nil
}

// Revenue sums the stored totals of all orders.
func (s *Service) Revenue(ctx context.Context) (decimal.Decimal, error) {
	return s.store.SumOrderTotals(ctx, orders.OrderFilter{})
}

func (s *Service) RevenueBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return s.store.SumOrderTotals(ctx, orders.OrderFilter{From: from, To: to})
}
