package inventory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/insulate/badminton-booking-sub002/internal/apperr"
	"github.com/insulate/badminton-booking-sub002/internal/clock"
	"github.com/insulate/badminton-booking-sub002/internal/testutil"
)

func setupLedger(t *testing.T, stock int64) (*Ledger, *Product) {
	t.Helper()

	clk := clock.NewManual(time.Date(2025, time.January, 18, 10, 0, 0, 0, time.UTC))
	ledger, err := NewLedger(testutil.NewTestDB(t), clk, nil)
	require.NoError(t, err)

	product, err := ledger.CreateProduct(context.Background(), NewProduct{
		SKU:   "SHUTTLE-12",
		Name:  "Shuttlecock tube",
		Price: decimal.RequireFromString("350.00"),
		Stock: stock,
	})
	require.NoError(t, err)
	return ledger, product
}

func TestReserveDecrementsStock(t *testing.T) {
	ledger, product := setupLedger(t, 5)
	ctx := context.Background()

	remaining, err := ledger.Reserve(ctx, product.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), remaining)

	loaded, err := ledger.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), loaded.Stock)
	assert.True(t, decimal.RequireFromString("350").Equal(loaded.Price))
}

func TestReserveFailures(t *testing.T) {
	ledger, product := setupLedger(t, 3)
	ctx := context.Background()

	cases := []struct {
		name      string
		productID string
		quantity  int64
		wantKind  apperr.Kind
	}{
		{name: "more than available", productID: product.ID, quantity: 4, wantKind: apperr.KindInsufficientStock},
		{name: "zero quantity", productID: product.ID, quantity: 0, wantKind: apperr.KindPreconditionFailed},
		{name: "unknown product", productID: "missing", quantity: 1, wantKind: apperr.KindNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ledger.Reserve(ctx, tc.productID, tc.quantity)
			require.Error(t, err)
			assert.Equal(t, tc.wantKind, apperr.KindOf(err))
		})
	}

	loaded, err := ledger.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), loaded.Stock, "failed reservations leave stock untouched")
}

func TestReserveInsufficientNamesProduct(t *testing.T) {
	ledger, product := setupLedger(t, 1)

	_, err := ledger.Reserve(context.Background(), product.ID, 2)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, product.ID, appErr.ID)
}

func TestReserveInactiveProduct(t *testing.T) {
	ledger, product := setupLedger(t, 10)
	ctx := context.Background()
	require.NoError(t, ledger.SetStatus(ctx, product.ID, StatusInactive))

	_, err := ledger.Reserve(ctx, product.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReleaseRestoresStock(t *testing.T) {
	ledger, product := setupLedger(t, 5)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, product.ID, 4)
	require.NoError(t, err)
	require.NoError(t, ledger.Release(ctx, product.ID, 4))

	loaded, err := ledger.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), loaded.Stock)

	assert.ErrorIs(t, ledger.Release(ctx, "missing", 1), apperr.ErrNotFound)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	const initial = 25
	ledger, product := setupLedger(t, initial)
	ctx := context.Background()

	var reserved, insufficient atomic.Int64
	var g errgroup.Group
	for i := 0; i < 40; i++ {
		qty := int64(i%3 + 1)
		g.Go(func() error {
			_, err := ledger.Reserve(ctx, product.ID, qty)
			switch {
			case err == nil:
				reserved.Add(qty)
			case errors.Is(err, apperr.ErrInsufficientStock):
				insufficient.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	loaded, err := ledger.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, reserved.Load(), int64(initial))
	assert.Equal(t, int64(initial)-reserved.Load(), loaded.Stock)
	assert.GreaterOrEqual(t, loaded.Stock, int64(0))
	assert.Positive(t, insufficient.Load())
}

func TestTwoConcurrentReservationsOfFourFromFive(t *testing.T) {
	ledger, product := setupLedger(t, 5)
	ctx := context.Background()

	errs := make([]error, 2)
	var g errgroup.Group
	for i := range errs {
		g.Go(func() error {
			_, errs[i] = ledger.Reserve(ctx, product.ID, 4)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)

	loaded, err := ledger.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Stock)
}
