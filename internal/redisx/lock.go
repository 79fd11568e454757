package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// CheckoutLock rejects a second checkout for the same user while the first
// is still running. The TTL bounds how long a crashed holder blocks the user.
type CheckoutLock struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCheckoutLock(rdb *redis.Client, ttl time.Duration) *CheckoutLock {
	if ttl <= 0 {
		ttl = TTLCheckoutLock
	}
	return &CheckoutLock{rdb: rdb, ttl: ttl}
}

func (l *CheckoutLock) Acquire(ctx context.Context, userID string) (func(), error) {
	key := fmt.Sprintf(KeyCheckoutLock, userID)
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "acquire checkout lock")
	}
	if !ok {
		return nil, orders.ErrCheckoutInProgress
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
	}, nil
}
