package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

// StatusCache keeps the latest known status of each order.
type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatusCache(rdb *redis.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = TTLStatusCache
	}
	return &StatusCache{rdb: rdb, ttl: ttl}
}

func (c *StatusCache) Set(ctx context.Context, s orders.StatusSnapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return errors.Wrap(c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, s.OrderID), b, c.ttl).Err(), "cache order status")
}

// Get reports ok=false on a cache miss.
func (c *StatusCache) Get(ctx context.Context, orderID string) (orders.StatusSnapshot, bool, error) {
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return orders.StatusSnapshot{}, false, nil
	}
	if err != nil {
		return orders.StatusSnapshot{}, false, errors.Wrap(err, "read order status")
	}
	var s orders.StatusSnapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return orders.StatusSnapshot{}, false, errors.Wrap(err, "decode order status")
	}
	return s, true, nil
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID string) error {
	return errors.Wrap(c.rdb.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err(), "invalidate order status")
}
