package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

var ErrProducerClosed = errors.New("kafka producer closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages in an inbox and writes them from one goroutine,
// so Publish never waits on the broker. The topic comes from each message.
type Producer struct {
	w     messageWriter
	log   logrus.FieldLogger
	inbox chan kafka.Message
	done  chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func NewProducer(brokers []string, buf int, log logrus.FieldLogger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}, buf, log)
}

func newProducer(w messageWriter, buf int, log logrus.FieldLogger) *Producer {
	if buf <= 0 {
		buf = 1
	}
	return &Producer{
		w:     w,
		log:   log,
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
}

// Start runs the write loop until Close is called or ctx is done; either way
// buffered messages are flushed before the writer is closed.
func (p *Producer) Start(ctx context.Context) {
	context.AfterFunc(ctx, p.Close)
	go p.run()
}

func (p *Producer) run() {
	defer close(p.done)
	for m := range p.inbox {
		if err := p.w.WriteMessages(context.Background(), m); err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{
				"topic": m.Topic,
				"key":   string(m.Key),
			}).Error("kafka write failed")
		}
	}
	if err := p.w.Close(); err != nil {
		p.log.WithError(err).Warn("kafka writer close")
	}
}

func (p *Producer) Publish(ctx context.Context, m kafka.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	select {
	case p.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages. Safe to call more than once.
func (p *Producer) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
}

// WaitClosed blocks until the write loop started by Start has flushed and exited.
func (p *Producer) WaitClosed() { <-p.done }
