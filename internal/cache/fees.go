// Package cache keeps read-mostly lookups in Redis.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/models"
	repo "github.com/baharkarakas/evtrade-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// kv is the part of *redis.Client the cache uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Fees caches commission rates in front of another repo.Fees. Redis errors
// fall through to the wrapped repository.
type Fees struct {
	rdb  kv
	next repo.Fees
	ttl  time.Duration
	log  *slog.Logger
}

var _ repo.Fees = (*Fees)(nil)

func NewFees(rdb kv, next repo.Fees, ttl time.Duration, log *slog.Logger) *Fees {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Fees{rdb: rdb, next: next, ttl: ttl, log: log}
}

func feeKey(t models.SaleType) string { return "fee:" + string(t) }

func (c *Fees) GetBySaleType(ctx context.Context, saleType models.SaleType) (models.Fee, error) {
	key := feeKey(saleType)
	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		pct, perr := decimal.NewFromString(val)
		if perr == nil {
			return models.Fee{SaleType: saleType, Percentage: pct}, nil
		}
		c.log.Warn("fee cache: bad value", "key", key, "err", perr)
	case !errors.Is(err, redis.Nil):
		c.log.Warn("fee cache: get", "key", key, "err", err)
	}

	fee, err := c.next.GetBySaleType(ctx, saleType)
	if err != nil {
		return models.Fee{}, err
	}
	if err := c.rdb.Set(ctx, key, fee.Percentage.String(), c.ttl).Err(); err != nil {
		c.log.Warn("fee cache: set", "key", key, "err", err)
	}
	return fee, nil
}
