package kafka

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultAttempts = 5
	defaultBackoff  = 200 * time.Millisecond
	maxBackoff      = 5 * time.Second
)

// Handler returns nil only when the message is fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r        messageReader
	workers  int
	attempts int
	backoff  time.Duration
	log      logrus.FieldLogger
}

func NewConsumer(brokers []string, group, topic string, workers int, log logrus.FieldLogger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // synchronous commits
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r messageReader, workers int, log logrus.FieldLogger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, attempts: defaultAttempts, backoff: defaultBackoff, log: log}
}

// Run fetches messages until ctx is done. Each partition is pinned to one
// worker, so its messages are handled and committed in offset order. A failed
// message is retried with backoff and blocks its partition meanwhile; after
// the last attempt it is logged as dropped and committed so the partition can
// advance. Cancellation during a retry leaves the message uncommitted.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	defer c.r.Close()

	g, ctx := errgroup.WithContext(ctx)
	lanes := make([]chan kafka.Message, c.workers)
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 1)
	}

	g.Go(func() error {
		defer func() {
			for _, l := range lanes {
				close(l)
			}
		}()
		for {
			m, err := c.r.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "fetch message")
			}
			select {
			case lanes[m.Partition%c.workers] <- m:
			case <-ctx.Done():
				return nil
			}
		}
	})

	for _, lane := range lanes {
		g.Go(func() error {
			for m := range lane {
				if ctx.Err() != nil {
					return nil
				}
				c.handle(ctx, h, m)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	entry := c.log.WithFields(logrus.Fields{
		"topic":     m.Topic,
		"partition": m.Partition,
		"offset":    m.Offset,
	})
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			break
		}
		if attempt >= c.attempts {
			entry.WithError(err).WithField("attempts", attempt).Error("drop message")
			break
		}
		entry.WithError(err).WithField("attempt", attempt).Warn("handle message")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
		wait = min(wait*2, maxBackoff)
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		entry.WithError(err).Warn("commit offset")
	}
}
