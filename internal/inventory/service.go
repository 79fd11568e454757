// Package inventory watches placed orders and tracks which products are
// running low on stock.
package inventory

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/orders"
)

type ProductReader interface {
	FindProduct(ctx context.Context, id string) (orders.Product, error)
}

type LowStockRecorder interface {
	Add(ctx context.Context, productIDs ...string) error
	Remove(ctx context.Context, productIDs ...string) error
}

// Deduper claims event ids. Claim reports false when the id is already
// claimed; Release drops a claim so a redelivery is processed again.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type Service struct {
	Products  ProductReader
	LowStock  LowStockRecorder
	Dedup     Deduper
	Threshold int
	Log       logrus.FieldLogger
}

// HandleOrderEvent is installed as the consumer handler for order.placed and
// order.cancelled. Stock is re-read from the store; the event only says which
// products to look at.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// undecodable input will never succeed; commit and move on
		s.Log.WithError(err).WithField("offset", m.Offset).Warn("skip malformed event")
		return nil
	}

	var ids []string
	switch env.EventType {
	case orders.EventOrderPlaced:
		p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			return err
		}
		for _, it := range p.Items {
			ids = append(ids, it.ProductID)
		}
	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		for _, it := range p.Restored {
			ids = append(ids, it.ProductID)
		}
	default:
		return nil
	}

	if s.Dedup == nil {
		return s.Refresh(ctx, ids...)
	}
	first, err := s.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}
	if err := s.Refresh(ctx, ids...); err != nil {
		// the claim must not outlive a failed refresh or the redelivery is skipped
		if rerr := s.Dedup.Release(ctx, env.EventID); rerr != nil {
			s.Log.WithError(rerr).WithField("event_id", env.EventID).Error("release dedup claim")
		}
		return err
	}
	return nil
}

// Refresh re-evaluates the given products against the threshold.
func (s *Service) Refresh(ctx context.Context, productIDs ...string) error {
	var low, ok []string
	for _, id := range dedupe(productIDs) {
		p, err := s.Products.FindProduct(ctx, id)
		if errors.Is(err, orders.ErrNotFound) {
			ok = append(ok, id)
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "read product %s", id)
		}
		if !p.Deleted && p.Stock < s.Threshold {
			low = append(low, id)
			s.Log.WithFields(logrus.Fields{
				"product_id": p.ID,
				"product":    p.Name,
				"stock":      p.Stock,
				"threshold":  s.Threshold,
			}).Warn("low stock")
			continue
		}
		ok = append(ok, id)
	}
	if err := s.LowStock.Add(ctx, low...); err != nil {
		return err
	}
	return s.LowStock.Remove(ctx, ok...)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
