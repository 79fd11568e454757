// Package checkout turns carts into orders and manages the order lifecycle.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

// Publisher receives domain events after their transaction has committed.
type Publisher interface {
	Publish(ctx context.Context, topic string, env orders.Envelope) error
}

// Locker guards against a user double-submitting checkout. Acquire returns
// orders.ErrCheckoutInProgress when the lock is already held.
type Locker interface {
	Acquire(ctx context.Context, userID string) (release func(), err error)
}

type Option func(*Service)

func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }
func WithLocker(l Locker) Option       { return func(s *Service) { s.locker = l } }
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}
func WithProducerName(name string) Option      { return func(s *Service) { s.producer = name } }
func WithLogger(log logrus.FieldLogger) Option { return func(s *Service) { s.log = log } }

type Service struct {
	store     orders.Store
	publisher Publisher
	locker    Locker
	producer  string
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewService(store orders.Store, opts ...Option) *Service {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	s := &Service{store: store, producer: "storefront-api", log: quiet, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Checkout converts the user's cart into a PENDING order in one transaction:
// every line is validated first, then stock is decremented, prices are frozen
// into order lines and the cart is deleted.
func (s *Service) Checkout(ctx context.Context, userID string) (orders.Order, error) {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, userID)
		if err != nil {
			return orders.Order{}, classify("checkout lock", err)
		}
		defer release()
	}

	var order orders.Order
	err := s.store.InTx(ctx, func(ctx context.Context, r orders.Repo) error {
		if _, err := r.FindUser(ctx, userID); err != nil {
			return notFound(err, orders.EntityUser, userID)
		}
		cart, err := r.FindCartByUser(ctx, userID)
		if err != nil {
			return notFound(err, orders.EntityCart, userID)
		}
		if cart.IsEmpty() {
			return orders.ErrEmptyCart
		}

		products, err := lockProducts(ctx, r, cartProductIDs(cart))
		if err != nil {
			return err
		}
		for _, l := range cart.Lines {
			p := products[l.ProductID]
			if p.Deleted {
				return &orders.ProductUnavailableError{ProductID: p.ID, ProductName: p.Name}
			}
			if p.Stock < l.Quantity {
				return &orders.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: l.Quantity, Available: p.Stock}
			}
		}

		now := s.now().UTC()
		order = orders.Order{
			ID:        uuid.NewString(),
			UserID:    userID,
			Status:    orders.StatusPending,
			Lines:     make([]orders.OrderLine, 0, len(cart.Lines)),
			CreatedAt: now,
			UpdatedAt: now,
		}
		for _, l := range cart.Lines {
			p := products[l.ProductID]
			order.Lines = append(order.Lines, orders.OrderLine{
				ProductID:       p.ID,
				ProductName:     p.Name,
				Quantity:        l.Quantity,
				PriceAtPurchase: p.Price,
			})
			if err := p.Reserve(l.Quantity); err != nil {
				return err
			}
			p.UpdatedAt = now
			if err := r.SaveProduct(ctx, &p); err != nil {
				return err
			}
			products[p.ID] = p
		}
		order.Total = order.CalculateTotal()

		if err := r.CreateOrder(ctx, &order); err != nil {
			return err
		}
		return r.DeleteCart(ctx, cart.ID)
	})
	if err != nil {
		return orders.Order{}, classify("checkout", err)
	}

	s.emit(ctx, orders.TopicOrderPlaced, orders.EventOrderPlaced, order.ID, orders.PlacedPayload(order))
	return order, nil
}

// Cancel deletes a PENDING order and puts its quantities back into stock.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	var cancelled orders.Order
	err := s.store.InTx(ctx, func(ctx context.Context, r orders.Repo) error {
		o, err := r.FindOrder(ctx, orderID)
		if err != nil {
			return notFound(err, orders.EntityOrder, orderID)
		}
		if !o.Status.Cancellable() {
			return &orders.IllegalStateError{OrderID: o.ID, Status: o.Status, Op: "cancel"}
		}

		qty := map[string]int{}
		for _, l := range o.Lines {
			qty[l.ProductID] += l.Quantity
		}
		ids := make([]string, 0, len(qty))
		for id := range qty {
			ids = append(ids, id)
		}
		products, err := lockProducts(ctx, r, ids)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		for _, id := range sortedKeys(products) {
			p := products[id]
			if err := p.Restore(qty[id]); err != nil {
				return err
			}
			p.UpdatedAt = now
			if err := r.SaveProduct(ctx, &p); err != nil {
				return err
			}
		}
		if err := r.DeleteOrder(ctx, o.ID); err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return classify("cancel", err)
	}

	s.emit(ctx, orders.TopicOrderCancelled, orders.EventOrderCancelled, cancelled.ID, orders.CancelledPayload(cancelled))
	return nil
}

// UpdateStatus moves an order one step forward (PENDING→SHIPPED→DELIVERED).
// Setting the current status again is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to orders.Status) (orders.Order, error) {
	if !to.Valid() {
		return orders.Order{}, fmt.Errorf("%w: %q", orders.ErrInvalidStatus, to)
	}
	var (
		out  orders.Order
		from orders.Status
	)
	err := s.store.InTx(ctx, func(ctx context.Context, r orders.Repo) error {
		o, err := r.FindOrder(ctx, orderID)
		if err != nil {
			return notFound(err, orders.EntityOrder, orderID)
		}
		from = o.Status
		if !orders.CanTransition(o.Status, to) {
			return &orders.IllegalStateError{OrderID: o.ID, Status: o.Status, Op: "move to " + string(to)}
		}
		if o.Status != to {
			o.Status = to
			o.UpdatedAt = s.now().UTC()
			if err := r.UpdateOrder(ctx, &o); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return orders.Order{}, classify("update status", err)
	}
	if from != to {
		s.emit(ctx, orders.TopicOrderStatusChanged, orders.EventOrderStatusChanged, out.ID,
			orders.OrderStatusChangedPayload{OrderID: out.ID, From: from, To: to})
	}
	return out, nil
}

func (s *Service) emit(ctx context.Context, topic, eventType, orderID string, payload any) {
	if s.publisher == nil {
		return
	}
	entry := s.log.WithFields(logrus.Fields{"topic": topic, "event_type": eventType, "order_id": orderID})
	env, err := orders.NewEnvelope(eventType, s.producer, orderID, s.now(), payload)
	if err != nil {
		entry.WithError(err).Error("build event")
		return
	}
	// the transaction is committed; a lost event never undoes it
	if err := s.publisher.Publish(ctx, topic, env); err != nil {
		entry.WithError(err).Warn("publish event")
	}
}

// lockProducts reads products in ascending id order so concurrent
// transactions acquire row locks in the same sequence.
func lockProducts(ctx context.Context, r orders.Repo, ids []string) (map[string]orders.Product, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := make(map[string]orders.Product, len(sorted))
	for _, id := range sorted {
		p, err := r.FindProduct(ctx, id)
		if err != nil {
			return nil, notFound(err, orders.EntityProduct, id)
		}
		out[id] = p
	}
	return out, nil
}

func cartProductIDs(c orders.Cart) []string {
	ids := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

func sortedKeys(m map[string]orders.Product) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, orders.ErrNotFound) {
		return &orders.NotFoundError{Entity: entity, ID: id}
	}
	return err
}

// classify passes business failures through untouched and reports anything
// else as a rolled-back transaction.
func classify(op string, err error) error {
	if orders.IsDomain(err) {
		return err
	}
	return &orders.TxFailedError{Op: op, Err: err}
}
