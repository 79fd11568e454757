package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func New(ctx context.Context, addr string) (*redis.Client, error) {
	r := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}
	return r, nil
}

// Dedup claims event ids for one consuming service within TTLDedup.
type Dedup struct {
	rdb     *redis.Client
	service string
}

func NewDedup(rdb *redis.Client, service string) *Dedup {
	return &Dedup{rdb: rdb, service: service}
}

// Claim reports false when id was already claimed.
func (d *Dedup) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.key(id), "1", TTLDedup).Result()
	if err != nil {
		return false, errors.Wrap(err, "dedup claim")
	}
	return ok, nil
}

func (d *Dedup) Release(ctx context.Context, id string) error {
	return errors.Wrap(d.rdb.Del(ctx, d.key(id)).Err(), "dedup release")
}

func (d *Dedup) key(id string) string { return fmt.Sprintf(KeyDedup, d.service, id) }
