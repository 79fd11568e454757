package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront/internal/checkout"
	"github.com/ariefcatur/go-storefront/internal/memstore"
	"github.com/ariefcatur/go-storefront/internal/orders"
)

const user = "u-1"

type recorder struct {
	mu     sync.Mutex
	topics []string
	envs   []orders.Envelope
	err    error
}

func (r *recorder) Publish(_ context.Context, topic string, env orders.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.envs = append(r.envs, env)
	return r.err
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(), error) {
	return nil, orders.ErrCheckoutInProgress
}

type downLocker struct{}

func (downLocker) Acquire(context.Context, string) (func(), error) {
	return nil, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
}

type countingLocker struct{ acquired, released int }

func (l *countingLocker) Acquire(context.Context, string) (func(), error) {
	l.acquired++
	return func() { l.released++ }, nil
}

// faultyStore fails SaveProduct for one product inside transactions.
type faultyStore struct {
	*memstore.Store
	failOn string
}

func (f faultyStore) InTx(ctx context.Context, fn func(ctx context.Context, r orders.Repo) error) error {
	return f.Store.InTx(ctx, func(ctx context.Context, r orders.Repo) error {
		return fn(ctx, faultyRepo{Repo: r, failOn: f.failOn})
	})
}

type faultyRepo struct {
	orders.Repo
	failOn string
}

func (r faultyRepo) SaveProduct(ctx context.Context, p *orders.Product) error {
	if p.ID == r.failOn {
		return errors.New("disk full")
	}
	return r.Repo.SaveProduct(ctx, p)
}

type tick struct{ t time.Time }

func (c *tick) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newStore(t *testing.T, users ...orders.User) *memstore.Store {
	t.Helper()
	s := memstore.New()
	ctx := context.Background()
	if len(users) == 0 {
		users = []orders.User{{ID: user, Email: user + "@example.com", Role: orders.RoleUser}}
	}
	for i := range users {
		require.NoError(t, s.SaveUser(ctx, &users[i]))
	}
	return s
}

func product(t *testing.T, s *memstore.Store, id, price string, stock int) {
	t.Helper()
	require.NoError(t, s.SaveProduct(context.Background(), &orders.Product{
		ID: id, Name: "name " + id, Price: decimal.RequireFromString(price), Stock: stock, Category: orders.CategoryGaming,
	}))
}

func fillCart(t *testing.T, s *memstore.Store, userID string, lines map[string]int) {
	t.Helper()
	c := orders.Cart{ID: "cart-" + userID, UserID: userID}
	for _, id := range []string{"p-a", "p-b", "p-c", "p-x"} {
		if q, ok := lines[id]; ok {
			c.SetLine(id, q, time.Time{})
		}
	}
	require.NoError(t, s.SaveCart(context.Background(), &c))
}

func stock(t *testing.T, s orders.Repo, id string) int {
	t.Helper()
	p, err := s.FindProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestCheckout(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	product(t, s, "p-a", "50", 10)
	product(t, s, "p-b", "75", 4)
	fillCart(t, s, user, map[string]int{"p-a": 2, "p-b": 2})
	pub := &recorder{}
	svc := checkout.NewService(s, checkout.WithPublisher(pub))

	o, err := svc.Checkout(ctx, user)
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, "250.00", o.Total.StringFixed(2))
	require.Len(t, o.Lines, 2)
	assert.Equal(t, "name p-a", o.Lines[0].ProductName)
	assert.Equal(t, 8, stock(t, s, "p-a"))
	assert.Equal(t, 2, stock(t, s, "p-b"))

	_, err = s.FindCartByUser(ctx, user)
	assert.ErrorIs(t, err, orders.ErrNotFound, "cart is consumed")

	stored, err := s.FindOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(stored.CalculateTotal()))

	require.Len(t, pub.topics, 1)
	assert.Equal(t, orders.TopicOrderPlaced, pub.topics[0])
	assert.Equal(t, orders.EventOrderPlaced, pub.envs[0].EventType)
	assert.Equal(t, o.ID, pub.envs[0].CorrelationID)
}

func TestCheckoutFreezesPrices(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	product(t, s, "p-a", "19.99", 10)
	fillCart(t, s, user, map[string]int{"p-a": 3})
	svc := checkout.NewService(s)

	o, err := svc.Checkout(ctx, user)
	require.NoError(t, err)

	p, err := s.FindProduct(ctx, "p-a")
	require.NoError(t, err)
	p.Price = decimal.RequireFromString("5")
	require.NoError(t, s.SaveProduct(ctx, &p))

	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "19.99", got.Lines[0].PriceAtPurchase.StringFixed(2))
	assert.Equal(t, "59.97", got.Total.StringFixed(2))
}

func TestCheckoutRejects(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cart", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveCart(ctx, &orders.Cart{ID: "c", UserID: user}))
		_, err := checkout.NewService(s).Checkout(ctx, user)
		assert.ErrorIs(t, err, orders.ErrEmptyCart)
		n, err := s.CountOrders(ctx, orders.OrderFilter{})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
	t.Run("no cart", func(t *testing.T) {
		s := newStore(t)
		_, err := checkout.NewService(s).Checkout(ctx, user)
		var nf *orders.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, orders.EntityCart, nf.Entity)
	})
	t.Run("unknown user", func(t *testing.T) {
		s := newStore(t)
		_, err := checkout.NewService(s).Checkout(ctx, "ghost")
		var nf *orders.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, orders.EntityUser, nf.Entity)
	})
	t.Run("one line short leaves everything untouched", func(t *testing.T) {
		s := newStore(t)
		product(t, s, "p-a", "10", 5)
		product(t, s, "p-b", "10", 5)
		product(t, s, "p-c", "10", 1)
		fillCart(t, s, user, map[string]int{"p-a": 2, "p-b": 2, "p-c": 2})

		_, err := checkout.NewService(s).Checkout(ctx, user)
		var ins *orders.InsufficientStockError
		require.ErrorAs(t, err, &ins)
		assert.Equal(t, "p-c", ins.ProductID)
		assert.Equal(t, 1, ins.Available)

		assert.Equal(t, 5, stock(t, s, "p-a"))
		assert.Equal(t, 5, stock(t, s, "p-b"))
		assert.Equal(t, 1, stock(t, s, "p-c"))
		c, err := s.FindCartByUser(ctx, user)
		require.NoError(t, err)
		assert.Len(t, c.Lines, 3)
	})
	t.Run("deleted product", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveProduct(ctx, &orders.Product{ID: "p-x", Name: "Retired", Stock: 9, Deleted: true}))
		fillCart(t, s, user, map[string]int{"p-x": 1})

		_, err := checkout.NewService(s).Checkout(ctx, user)
		assert.Equal(t, orders.KindUnavailable, orders.KindOf(err))
	})
	t.Run("lock held", func(t *testing.T) {
		s := newStore(t)
		product(t, s, "p-a", "10", 5)
		fillCart(t, s, user, map[string]int{"p-a": 1})

		_, err := checkout.NewService(s, checkout.WithLocker(busyLocker{})).Checkout(ctx, user)
		assert.ErrorIs(t, err, orders.ErrCheckoutInProgress)
		assert.Equal(t, 5, stock(t, s, "p-a"))
	})
	t.Run("lock backend down", func(t *testing.T) {
		s := newStore(t)
		product(t, s, "p-a", "10", 5)
		fillCart(t, s, user, map[string]int{"p-a": 1})

		_, err := checkout.NewService(s, checkout.WithLocker(downLocker{})).Checkout(ctx, user)
		var tx *orders.TxFailedError
		require.ErrorAs(t, err, &tx)
		assert.Equal(t, orders.KindTxFailed, orders.KindOf(err))
		assert.Equal(t, 5, stock(t, s, "p-a"))
		_, err = s.FindCartByUser(ctx, user)
		assert.NoError(t, err)
	})
}

func TestCheckoutStorageFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	product(t, s, "p-a", "10", 5)
	product(t, s, "p-b", "10", 5)
	fillCart(t, s, user, map[string]int{"p-a": 1, "p-b": 1})
	pub := &recorder{}

	svc := checkout.NewService(faultyStore{Store: s, failOn: "p-b"}, checkout.WithPublisher(pub))
	_, err := svc.Checkout(ctx, user)

	var tx *orders.TxFailedError
	require.ErrorAs(t, err, &tx)
	assert.Equal(t, orders.KindTxFailed, orders.KindOf(err))
	assert.Equal(t, 5, stock(t, s, "p-a"), "earlier decrement rolled back")
	_, err = s.FindCartByUser(ctx, user)
	assert.NoError(t, err, "cart kept")
	assert.Empty(t, pub.topics)
}

func TestCheckoutReleasesLock(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	l := &countingLocker{}
	svc := checkout.NewService(s, checkout.WithLocker(l))

	_, err := svc.Checkout(ctx, user)
	require.Error(t, err)
	assert.Equal(t, 1, l.acquired)
	assert.Equal(t, 1, l.released)
}

func TestPublishFailureKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	product(t, s, "p-a", "10", 5)
	fillCart(t, s, user, map[string]int{"p-a": 1})
	log, hook := logtest.NewNullLogger()
	svc := checkout.NewService(s,
		checkout.WithPublisher(&recorder{err: errors.New("broker down")}),
		checkout.WithLogger(log))

	o, err := svc.Checkout(ctx, user)
	require.NoError(t, err)
	_, err = s.FindOrder(ctx, o.ID)
	assert.NoError(t, err)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "publish event", hook.LastEntry().Message)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, o.ID, hook.LastEntry().Data["order_id"])
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	ctx := context.Background()
	const buyers = 20
	users := make([]orders.User, buyers)
	for i := range users {
		id := fmt.Sprintf("u-%02d", i)
		users[i] = orders.User{ID: id, Email: id + "@example.com", Role: orders.RoleUser}
	}
	s := newStore(t, users...)
	product(t, s, "p-a", "10", 10)
	for _, u := range users {
		fillCart(t, s, u.ID, map[string]int{"p-a": 1})
	}
	svc := checkout.NewService(s)

	var (
		ok, short atomic.Int32
		wg        sync.WaitGroup
	)
	for _, u := range users {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Checkout(ctx, id)
			switch {
			case err == nil:
				ok.Add(1)
			case orders.KindOf(err) == orders.KindInsufficientStock:
				short.Add(1)
			}
		}(u.ID)
	}
	wg.Wait()

	assert.EqualValues(t, 10, ok.Load())
	assert.EqualValues(t, 10, short.Load())
	assert.Equal(t, 0, stock(t, s, "p-a"))
}

func placeOrder(t *testing.T, s *memstore.Store, svc *checkout.Service, userID string, lines map[string]int) orders.Order {
	t.Helper()
	fillCart(t, s, userID, lines)
	o, err := svc.Checkout(context.Background(), userID)
	require.NoError(t, err)
	return o
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	product(t, s, "p-a", "10", 10)
	product(t, s, "p-b", "10", 10)
	pub := &recorder{}
	svc := checkout.NewService(s, checkout.WithPublisher(pub))

	o := placeOrder(t, s, svc, user, map[string]int{"p-a": 2, "p-b": 3})
	require.Equal(t, 8, stock(t, s, "p-a"))
	require.Equal(t, 7, stock(t, s, "p-b"))

	require.NoError(t, svc.Cancel(ctx, o.ID))
	assert.Equal(t, 10, stock(t, s, "p-a"))
	assert.Equal(t, 10, stock(t, s, "p-b"))

	_, err := svc.Get(ctx, o.ID)
	assert.Equal(t, orders.KindNotFound, orders.KindOf(err), "cancelled orders are removed")

	err = svc.Cancel(ctx, o.ID)
	assert.Equal(t, orders.KindNotFound, orders.KindOf(err))
	assert.Equal(t, 10, stock(t, s, "p-a"), "second cancel restores nothing")

	assert.Equal(t, []string{orders.TopicOrderPlaced, orders.TopicOrderCancelled}, pub.topics)
}

func TestCancelAfterShipping(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	product(t, s, "p-a", "10", 10)
	svc := checkout.NewService(s)
	o := placeOrder(t, s, svc, user, map[string]int{"p-a": 4})

	for _, st := range []orders.Status{orders.StatusShipped, orders.StatusDelivered} {
		_, err := svc.UpdateStatus(ctx, o.ID, st)
		require.NoError(t, err)

		err = svc.Cancel(ctx, o.ID)
		var ill *orders.IllegalStateError
		require.ErrorAs(t, err, &ill)
		assert.Equal(t, st, ill.Status)
		assert.Equal(t, 6, stock(t, s, "p-a"))
	}

	got, err := svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, got.Status)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	product(t, s, "p-a", "10", 10)
	pub := &recorder{}
	svc := checkout.NewService(s, checkout.WithPublisher(pub))
	o := placeOrder(t, s, svc, user, map[string]int{"p-a": 1})

	_, err := svc.UpdateStatus(ctx, o.ID, orders.StatusDelivered)
	assert.Equal(t, orders.KindIllegalState, orders.KindOf(err), "cannot skip SHIPPED")

	_, err = svc.UpdateStatus(ctx, o.ID, orders.Status("LOST"))
	assert.ErrorIs(t, err, orders.ErrInvalidStatus)

	_, err = svc.UpdateStatus(ctx, "missing", orders.StatusShipped)
	assert.Equal(t, orders.KindNotFound, orders.KindOf(err))

	got, err := svc.UpdateStatus(ctx, o.ID, orders.StatusPending)
	require.NoError(t, err, "same status is a no-op")
	assert.Equal(t, orders.StatusPending, got.Status)

	got, err = svc.UpdateStatus(ctx, o.ID, orders.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, got.Status)

	_, err = svc.UpdateStatus(ctx, o.ID, orders.StatusPending)
	assert.Equal(t, orders.KindIllegalState, orders.KindOf(err), "no moving backwards")

	assert.Equal(t, []string{orders.TopicOrderPlaced, orders.TopicOrderStatusChanged}, pub.topics)
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	admin := orders.User{ID: "admin", Email: "admin@example.com", Role: orders.RoleAdmin}
	bob := orders.User{ID: "bob", Email: "bob@example.com", Role: orders.RoleUser}
	s := newStore(t, orders.User{ID: user, Email: "u1@example.com"}, bob, admin)
	product(t, s, "p-a", "10", 100)
	clk := &tick{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc := checkout.NewService(s, checkout.WithClock(clk.Now))

	first := placeOrder(t, s, svc, user, map[string]int{"p-a": 1})
	second := placeOrder(t, s, svc, user, map[string]int{"p-a": 2})
	bobs := placeOrder(t, s, svc, bob.ID, map[string]int{"p-a": 5})
	_, err := svc.UpdateStatus(ctx, second.ID, orders.StatusShipped)
	require.NoError(t, err)

	mine, err := svc.ListByUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID, "newest first")
	assert.Equal(t, first.ID, mine[1].ID)

	pending, err := svc.ListByStatus(ctx, orders.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	between, err := svc.ListBetween(ctx, first.CreatedAt, bobs.CreatedAt)
	require.NoError(t, err)
	assert.Len(t, between, 2, "upper bound is exclusive")

	counts, err := svc.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[orders.Status]int{orders.StatusPending: 2, orders.StatusShipped: 1, orders.StatusDelivered: 0}, counts)

	rev, err := svc.Revenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "80.00", rev.StringFixed(2))

	rev, err = svc.RevenueBetween(ctx, second.CreatedAt, bobs.CreatedAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "70.00", rev.StringFixed(2))

	t.Run("GetForUser", func(t *testing.T) {
		_, err := svc.GetForUser(ctx, orders.User{ID: user}, first.ID)
		assert.NoError(t, err)
		_, err = svc.GetForUser(ctx, bob, first.ID)
		assert.Equal(t, orders.KindNotFound, orders.KindOf(err))
		_, err = svc.GetForUser(ctx, admin, first.ID)
		assert.NoError(t, err)
	})
}
