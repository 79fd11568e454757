package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
	fail   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker unavailable")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func nullLogger() (*logrus.Logger, *logtest.Hook) {
	return logtest.NewNullLogger()
}

func TestProducerFlushesOnClose(t *testing.T) {
	log, _ := nullLogger()
	w := &fakeWriter{}
	p := newProducer(w, 16, log)
	p.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Publish(context.Background(), kafka.Message{Topic: orders.TopicOrderPlaced, Value: []byte{byte(i)}}))
	}
	p.Close()
	p.Close()
	p.WaitClosed()

	assert.Len(t, w.written(), 5)
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), kafka.Message{Topic: "x"}), ErrProducerClosed)
}

func TestProducerStopsWithContext(t *testing.T) {
	log, _ := nullLogger()
	w := &fakeWriter{}
	p := newProducer(w, 4, log)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	require.NoError(t, p.Publish(ctx, kafka.Message{Topic: orders.TopicOrderCancelled}))
	cancel()

	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not stop")
	}
	assert.Len(t, w.written(), 1)
}

func TestProducerLogsWriteErrors(t *testing.T) {
	log, hook := nullLogger()
	p := newProducer(&fakeWriter{fail: true}, 1, log)
	p.Start(context.Background())
	require.NoError(t, p.Publish(context.Background(), kafka.Message{Topic: orders.TopicOrderPlaced, Key: []byte("o-1")}))
	p.Close()
	p.WaitClosed()

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "o-1", hook.LastEntry().Data["key"])
}

func TestEnvelopeRoundTrip(t *testing.T) {
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	o := orders.Order{ID: "o-9", UserID: "u-1"}
	env, err := orders.NewEnvelope(orders.EventOrderCancelled, "storefront-api", o.ID, at, orders.CancelledPayload(o))
	require.NoError(t, err)

	m, err := EnvelopeMessage(orders.TopicOrderCancelled, env)
	require.NoError(t, err)
	assert.Equal(t, orders.TopicOrderCancelled, m.Topic)
	assert.Equal(t, []byte("o-9"), m.Key)
	require.Len(t, m.Headers, 2)
	assert.Equal(t, orders.EventOrderCancelled, string(m.Headers[0].Value))
	assert.Equal(t, "1", string(m.Headers[1].Value))

	got, err := DecodeEnvelope(m.Value)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)
	assert.True(t, got.OccurredAt.Equal(at))

	payload, err := UnwrapPayload[orders.OrderCancelledPayload](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, "u-1", payload.UserID)

	_, err = DecodeEnvelope([]byte("{"))
	assert.Error(t, err)
}

func TestEventPublisher(t *testing.T) {
	log, _ := nullLogger()
	w := &fakeWriter{}
	p := newProducer(w, 4, log)
	p.Start(context.Background())
	pub := NewEventPublisher(p, log)

	env, err := orders.NewEnvelope(orders.EventOrderPlaced, "api", "o-1", time.Now(), map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), orders.TopicOrderPlaced, env))

	p.Close()
	p.WaitClosed()
	require.Len(t, w.written(), 1)
	assert.Equal(t, orders.TopicOrderPlaced, w.written()[0].Topic)

	assert.ErrorIs(t, pub.Publish(context.Background(), orders.TopicOrderPlaced, env), ErrProducerClosed)
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func queued(offsets ...int64) *fakeReader {
	r := &fakeReader{}
	for _, o := range offsets {
		r.queue = append(r.queue, kafka.Message{Partition: 0, Offset: o})
	}
	return r
}

// runConsumer runs c until stop reports true, then cancels and waits for Run.
func runConsumer(t *testing.T, c *Consumer, h Handler, stop func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, h) }()

	require.Eventually(t, stop, 2*time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

type callLog struct {
	mu    sync.Mutex
	calls []int64
}

func (l *callLog) record(o int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, o)
	n := 0
	for _, c := range l.calls {
		if c == o {
			n++
		}
	}
	return n
}

func (l *callLog) all() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int64(nil), l.calls...)
}

func TestConsumerRetriesBeforeAdvancing(t *testing.T) {
	log, _ := nullLogger()
	r := queued(0, 1, 2, 3)
	c := newConsumer(r, 3, log)
	c.backoff = time.Millisecond

	calls := &callLog{}
	h := func(_ context.Context, m kafka.Message) error {
		if calls.record(m.Offset) == 1 && m.Offset == 1 {
			return errors.New("redis: connection refused")
		}
		return nil
	}
	runConsumer(t, c, h, func() bool { return len(r.commits()) == 4 })

	assert.Equal(t, []int64{0, 1, 2, 3}, r.commits())
	assert.Equal(t, []int64{0, 1, 1, 2, 3}, calls.all())
	assert.True(t, r.closed)
}

func TestConsumerDropsAfterLastAttempt(t *testing.T) {
	log, hook := nullLogger()
	r := queued(0, 1, 2)
	c := newConsumer(r, 1, log)
	c.attempts = 3
	c.backoff = time.Millisecond

	calls := &callLog{}
	h := func(_ context.Context, m kafka.Message) error {
		calls.record(m.Offset)
		if m.Offset == 1 {
			return errors.New("poison")
		}
		return nil
	}
	runConsumer(t, c, h, func() bool { return len(r.commits()) == 3 })

	assert.Equal(t, []int64{0, 1, 1, 1, 2}, calls.all())
	var dropped *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "drop message" {
			dropped = e
		}
	}
	require.NotNil(t, dropped)
	assert.Equal(t, logrus.ErrorLevel, dropped.Level)
	assert.Equal(t, int64(1), dropped.Data["offset"])
	assert.Equal(t, 3, dropped.Data["attempts"])
}

func TestConsumerLeavesFailedMessageOnShutdown(t *testing.T) {
	log, _ := nullLogger()
	r := queued(0, 1)
	c := newConsumer(r, 1, log)
	c.backoff = time.Hour

	calls := &callLog{}
	h := func(_ context.Context, m kafka.Message) error {
		calls.record(m.Offset)
		return errors.New("db down")
	}
	runConsumer(t, c, h, func() bool { return len(calls.all()) == 1 })

	assert.Empty(t, r.commits())
	assert.Equal(t, []int64{0}, calls.all())
}

type brokenReader struct{ fakeReader }

func (r *brokenReader) FetchMessage(context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("connection reset")
}

func TestConsumerReturnsFetchErrors(t *testing.T) {
	log, _ := nullLogger()
	c := newConsumer(&brokenReader{}, 2, log)
	err := c.Run(context.Background(), func(context.Context, kafka.Message) error { return nil })
	assert.ErrorContains(t, err, "connection reset")
}
