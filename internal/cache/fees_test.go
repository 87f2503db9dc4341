package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/baharkarakas/evtrade-backend/internal/apperr"
	"github.com/baharkarakas/evtrade-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockKV struct{ mock.Mock }

func (m *mockKV) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return redis.NewStringResult(args.String(0), args.Error(1))
}

func (m *mockKV) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	return redis.NewStatusResult("OK", args.Error(0))
}

type mockFees struct{ mock.Mock }

func (m *mockFees) GetBySaleType(ctx context.Context, t models.SaleType) (models.Fee, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(models.Fee), args.Error(1)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestFees_GetBySaleType(t *testing.T) {
	ctx := context.Background()
	regular := models.Fee{SaleType: models.SaleRegular, Percentage: decimal.RequireFromString("5")}

	t.Run("hit", func(t *testing.T) {
		kv, next := &mockKV{}, &mockFees{}
		kv.On("Get", ctx, "fee:REGULAR_SALE").Return("7.5", nil)

		fee, err := NewFees(kv, next, time.Minute, discard()).GetBySaleType(ctx, models.SaleRegular)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("7.5").Equal(fee.Percentage))
		next.AssertNotCalled(t, "GetBySaleType", mock.Anything, mock.Anything)
	})

	t.Run("miss fills cache", func(t *testing.T) {
		kv, next := &mockKV{}, &mockFees{}
		kv.On("Get", ctx, "fee:REGULAR_SALE").Return("", redis.Nil)
		kv.On("Set", ctx, "fee:REGULAR_SALE", "5", time.Minute).Return(nil)
		next.On("GetBySaleType", ctx, models.SaleRegular).Return(regular, nil)

		fee, err := NewFees(kv, next, time.Minute, discard()).GetBySaleType(ctx, models.SaleRegular)
		require.NoError(t, err)
		assert.Equal(t, regular, fee)
		kv.AssertExpectations(t)
	})

	t.Run("redis down falls through", func(t *testing.T) {
		kv, next := &mockKV{}, &mockFees{}
		kv.On("Get", ctx, "fee:REGULAR_SALE").Return("", errors.New("connection refused"))
		kv.On("Set", ctx, "fee:REGULAR_SALE", "5", time.Minute).Return(errors.New("connection refused"))
		next.On("GetBySaleType", ctx, models.SaleRegular).Return(regular, nil)

		fee, err := NewFees(kv, next, time.Minute, discard()).GetBySaleType(ctx, models.SaleRegular)
		require.NoError(t, err)
		assert.Equal(t, regular, fee)
	})

	t.Run("missing fee not cached", func(t *testing.T) {
		kv, next := &mockKV{}, &mockFees{}
		kv.On("Get", ctx, "fee:AUCTION_SALE").Return("", redis.Nil)
		next.On("GetBySaleType", ctx, models.SaleAuction).Return(models.Fee{}, apperr.NotFound("fee not found"))

		_, err := NewFees(kv, next, time.Minute, discard()).GetBySaleType(ctx, models.SaleAuction)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
		kv.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
