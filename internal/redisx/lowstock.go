package redisx

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// LowStockSet is the set of product ids currently under the stock threshold.
type LowStockSet struct{ rdb *redis.Client }

func NewLowStockSet(rdb *redis.Client) *LowStockSet { return &LowStockSet{rdb: rdb} }

func (s *LowStockSet) Add(ctx context.Context, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	return errors.Wrap(s.rdb.SAdd(ctx, KeyLowStock, toAny(productIDs)...).Err(), "add low stock")
}

func (s *LowStockSet) Remove(ctx context.Context, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	return errors.Wrap(s.rdb.SRem(ctx, KeyLowStock, toAny(productIDs)...).Err(), "remove low stock")
}

// Members returns the ids sorted.
func (s *LowStockSet) Members(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, KeyLowStock).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list low stock")
	}
	sort.Strings(ids)
	return ids, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
