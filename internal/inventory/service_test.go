package inventory_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/memstore"
	"github.com/ariefcatur/go-storefront/internal/orders"
)

type memSet map[string]bool

func (s memSet) Add(_ context.Context, ids ...string) error {
	for _, id := range ids {
		s[id] = true
	}
	return nil
}

func (s memSet) Remove(_ context.Context, ids ...string) error {
	for _, id := range ids {
		delete(s, id)
	}
	return nil
}

func (s memSet) members() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type memDedup map[string]bool

func (d memDedup) Claim(_ context.Context, id string) (bool, error) {
	if d[id] {
		return false, nil
	}
	d[id] = true
	return true, nil
}

func (d memDedup) Release(_ context.Context, id string) error {
	delete(d, id)
	return nil
}

// flakySet fails the first n Add calls.
type flakySet struct {
	memSet
	n int
}

func (s *flakySet) Add(ctx context.Context, ids ...string) error {
	if s.n > 0 {
		s.n--
		return errors.New("redis: connection refused")
	}
	return s.memSet.Add(ctx, ids...)
}

func message(t *testing.T, topic, eventType string, payload any) kafkago.Message {
	t.Helper()
	env, err := orders.NewEnvelope(eventType, "test", "o-1", time.Now(), payload)
	require.NoError(t, err)
	m, err := kafkax.EnvelopeMessage(topic, env)
	require.NoError(t, err)
	return m
}

func setup(t *testing.T) (*inventory.Service, *memstore.Store, memSet, *logtest.Hook) {
	t.Helper()
	store := memstore.New()
	ctx := context.Background()
	for id, stock := range map[string]int{"p-a": 2, "p-b": 30, "p-c": 4} {
		require.NoError(t, store.SaveProduct(ctx, &orders.Product{ID: id, Name: id, Price: decimal.NewFromInt(1), Stock: stock}))
	}
	log, hook := logtest.NewNullLogger()
	set := memSet{}
	return &inventory.Service{Products: store, LowStock: set, Dedup: memDedup{}, Threshold: 5, Log: log}, store, set, hook
}

func TestOrderPlacedRecordsLowStock(t *testing.T) {
	svc, _, set, hook := setup(t)
	ctx := context.Background()
	m := message(t, orders.TopicOrderPlaced, orders.EventOrderPlaced, orders.OrderPlacedPayload{
		OrderID: "o-1",
		Items:   []orders.ItemPrice{{ProductID: "p-a", Qty: 1}, {ProductID: "p-b", Qty: 1}, {ProductID: "p-c", Qty: 1}, {ProductID: "p-a", Qty: 1}},
	})

	require.NoError(t, svc.HandleOrderEvent(ctx, m))
	assert.Equal(t, []string{"p-a", "p-c"}, set.members())
	assert.Len(t, hook.AllEntries(), 2)
}

func TestRestockedProductLeavesSet(t *testing.T) {
	svc, store, set, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, svc.Refresh(ctx, "p-a", "p-c"))
	require.Equal(t, []string{"p-a", "p-c"}, set.members())

	p, err := store.FindProduct(ctx, "p-a")
	require.NoError(t, err)
	p.Stock = 50
	require.NoError(t, store.SaveProduct(ctx, &p))

	m := message(t, orders.TopicOrderCancelled, orders.EventOrderCancelled, orders.OrderCancelledPayload{
		OrderID:  "o-1",
		Restored: []orders.ItemQty{{ProductID: "p-a", Qty: 2}},
	})
	require.NoError(t, svc.HandleOrderEvent(ctx, m))
	assert.Equal(t, []string{"p-c"}, set.members())
}

func TestDuplicateEventIsIgnored(t *testing.T) {
	svc, _, set, hook := setup(t)
	ctx := context.Background()
	m := message(t, orders.TopicOrderPlaced, orders.EventOrderPlaced, orders.OrderPlacedPayload{
		Items: []orders.ItemPrice{{ProductID: "p-a", Qty: 1}},
	})

	require.NoError(t, svc.HandleOrderEvent(ctx, m))
	require.NoError(t, svc.HandleOrderEvent(ctx, m))
	assert.Equal(t, []string{"p-a"}, set.members())
	assert.Len(t, hook.AllEntries(), 1)
}

func TestIgnoredMessages(t *testing.T) {
	svc, _, set, hook := setup(t)
	ctx := context.Background()

	status := message(t, orders.TopicOrderStatusChanged, orders.EventOrderStatusChanged, orders.OrderStatusChangedPayload{OrderID: "o-1"})
	require.NoError(t, svc.HandleOrderEvent(ctx, status))

	require.NoError(t, svc.HandleOrderEvent(ctx, kafkago.Message{Value: []byte("not json")}))
	assert.Empty(t, set.members())
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "skip malformed event", hook.LastEntry().Message)
}

func TestMissingProductIsCleared(t *testing.T) {
	svc, _, set, _ := setup(t)
	set["gone"] = true
	require.NoError(t, svc.Refresh(context.Background(), "gone"))
	assert.Empty(t, set.members())
}

func TestFailedRefreshIsRetried(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := context.Background()
	set := &flakySet{memSet: memSet{}, n: 1}
	dedup := memDedup{}
	svc.LowStock = set
	svc.Dedup = dedup

	m := message(t, orders.TopicOrderPlaced, orders.EventOrderPlaced, orders.OrderPlacedPayload{
		Items: []orders.ItemPrice{{ProductID: "p-a", Qty: 1}},
	})

	require.Error(t, svc.HandleOrderEvent(ctx, m))
	assert.Empty(t, set.members())
	assert.Empty(t, dedup)

	require.NoError(t, svc.HandleOrderEvent(ctx, m))
	assert.Equal(t, []string{"p-a"}, set.members())
	assert.Len(t, dedup, 1)
}
