package sales

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/insulate/badminton-booking-sub002/internal/apperr"
	"github.com/insulate/badminton-booking-sub002/internal/clock"
	"github.com/insulate/badminton-booking-sub002/internal/db"
	"github.com/insulate/badminton-booking-sub002/internal/inventory"
	"github.com/insulate/badminton-booking-sub002/internal/metrics"
	"github.com/insulate/badminton-booking-sub002/internal/sequence"
	"github.com/insulate/badminton-booking-sub002/internal/testutil"
)

type salesFixture struct {
	db      *db.DB
	ledger  *inventory.Ledger
	service *Service
	metrics *metrics.Service
}

func setupSales(t *testing.T) *salesFixture {
	t.Helper()

	database := testutil.NewTestDB(t)
	clk := clock.NewManual(time.Date(2025, time.January, 18, 14, 30, 0, 0, time.UTC))
	recorder := metrics.NewService(prometheus.NewRegistry())

	ledger, err := inventory.NewLedger(database, clk, recorder)
	require.NoError(t, err)
	allocator, err := sequence.NewAllocator(database, recorder)
	require.NoError(t, err)
	service, err := NewService(database, ledger, allocator, WithClock(clk), WithMetrics(recorder))
	require.NoError(t, err)

	return &salesFixture{db: database, ledger: ledger, service: service, metrics: recorder}
}

func (f *salesFixture) product(t *testing.T, sku, price string, stock int64) *inventory.Product {
	t.Helper()
	p, err := f.ledger.CreateProduct(context.Background(), inventory.NewProduct{
		SKU:   sku,
		Name:  sku,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	})
	require.NoError(t, err)
	return p
}

func (f *salesFixture) stock(t *testing.T, productID string) int64 {
	t.Helper()
	p, err := f.ledger.Get(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func TestCreateSaleReservesAndPersists(t *testing.T) {
	f := setupSales(t)
	ctx := context.Background()
	shuttle := f.product(t, "SHUTTLE", "350.00", 10)
	water := f.product(t, "WATER", "15.50", 20)

	sale, err := f.service.CreateSale(ctx, CreateSaleRequest{Items: []LineItem{
		{ProductID: shuttle.ID, Quantity: 2},
		{ProductID: water.ID, Quantity: 3},
	}})
	require.NoError(t, err)

	assert.Equal(t, "SL20250118-0001", sale.SaleCode)
	assert.True(t, decimal.RequireFromString("746.50").Equal(sale.Total), "total %s", sale.Total)
	assert.Equal(t, int64(8), f.stock(t, shuttle.ID))
	assert.Equal(t, int64(17), f.stock(t, water.ID))

	loaded, err := f.service.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.SaleCode, loaded.SaleCode)
	require.Len(t, loaded.Items, 2)
	assert.True(t, decimal.RequireFromString("46.50").Equal(loaded.Items[1].Subtotal))

	next, err := f.service.CreateSale(ctx, CreateSaleRequest{Items: []LineItem{{ProductID: water.ID, Quantity: 1}}})
	require.NoError(t, err)
	assert.Equal(t, "SL20250118-0002", next.SaleCode)
}

func TestCreateSaleReleasesEarlierItemsWhenLaterItemIsShort(t *testing.T) {
	f := setupSales(t)
	ctx := context.Background()
	racket := f.product(t, "RACKET", "1200", 5)
	grip := f.product(t, "GRIP", "80", 4)
	shuttle := f.product(t, "SHUTTLE", "350", 1)

	_, err := f.service.CreateSale(ctx, CreateSaleRequest{Items: []LineItem{
		{ProductID: racket.ID, Quantity: 2},
		{ProductID: grip.ID, Quantity: 4},
		{ProductID: shuttle.ID, Quantity: 2},
	}})
	require.Error(t, err)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindInsufficientStock, appErr.Kind)
	assert.Equal(t, shuttle.ID, appErr.ID)

	assert.Equal(t, int64(5), f.stock(t, racket.ID))
	assert.Equal(t, int64(4), f.stock(t, grip.ID))
	assert.Equal(t, int64(1), f.stock(t, shuttle.ID))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(f.metrics.StockReleases))

	var sales int
	require.NoError(t, f.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sales").Scan(&sales))
	assert.Zero(t, sales)
}

func TestCreateSaleReleasesEverythingWhenPersistFails(t *testing.T) {
	f := setupSales(t)
	ctx := context.Background()
	racket := f.product(t, "RACKET", "1200", 5)
	grip := f.product(t, "GRIP", "80", 4)

	f.service.persist = func(context.Context, *Sale) error {
		return apperr.Store("persist sale", errors.New("disk full"))
	}

	_, err := f.service.CreateSale(ctx, CreateSaleRequest{Items: []LineItem{
		{ProductID: racket.ID, Quantity: 1},
		{ProductID: grip.ID, Quantity: 2},
	}})
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	assert.Equal(t, int64(5), f.stock(t, racket.ID))
	assert.Equal(t, int64(4), f.stock(t, grip.ID))
}

type failingCodes struct{}

func (failingCodes) NextCode(context.Context, string, string, time.Time) (string, error) {
	return "", apperr.Store("allocate sequence", errors.New("connection refused"))
}

func TestCreateSaleReleasesWhenCodeAllocationFails(t *testing.T) {
	f := setupSales(t)
	ctx := context.Background()
	grip := f.product(t, "GRIP", "80", 4)

	service, err := NewService(f.db, f.ledger, failingCodes{})
	require.NoError(t, err)

	_, err = service.CreateSale(ctx, CreateSaleRequest{Items: []LineItem{{ProductID: grip.ID, Quantity: 3}}})
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	assert.Equal(t, int64(4), f.stock(t, grip.ID))
}

type brokenReleaseLedger struct {
	*inventory.Ledger
}

func (brokenReleaseLedger) Release(context.Context, string, int64) error {
	return apperr.Store("release stock", errors.New("database is locked"))
}

func TestCreateSaleCountsFailedCompensation(t *testing.T) {
	f := setupSales(t)
	ctx := context.Background()
	racket := f.product(t, "RACKET", "1200", 5)
	shuttle := f.product(t, "SHUTTLE", "350", 0)

	allocator, err := sequence.NewAllocator(f.db, nil)
	require.NoError(t, err)
	service, err := NewService(f.db, brokenReleaseLedger{f.ledger}, allocator, WithMetrics(f.metrics))
	require.NoError(t, err)

	_, err = service.CreateSale(ctx, CreateSaleRequest{Items: []LineItem{
		{ProductID: racket.ID, Quantity: 1},
		{ProductID: shuttle.ID, Quantity: 1},
	}})
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(f.metrics.CompensationFailed))
	assert.Equal(t, int64(4), f.stock(t, racket.ID), "the unreleased unit stays decremented until reconciled")
}

func TestCreateSaleValidation(t *testing.T) {
	f := setupSales(t)
	grip := f.product(t, "GRIP", "80", 4)

	cases := []struct {
		name     string
		req      CreateSaleRequest
		wantKind apperr.Kind
	}{
		{name: "no items", req: CreateSaleRequest{}, wantKind: apperr.KindPreconditionFailed},
		{name: "zero quantity", req: CreateSaleRequest{Items: []LineItem{{ProductID: grip.ID}}}, wantKind: apperr.KindPreconditionFailed},
		{name: "unknown product", req: CreateSaleRequest{Items: []LineItem{{ProductID: "nope", Quantity: 1}}}, wantKind: apperr.KindNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.CreateSale(context.Background(), tc.req)
			assert.Equal(t, tc.wantKind, apperr.KindOf(err))
		})
	}
}

func TestConcurrentSalesOfFourFromFiveOnlyOneWins(t *testing.T) {
	f := setupSales(t)
	ctx := context.Background()
	shuttle := f.product(t, "SHUTTLE", "350", 5)

	results := make([]*Sale, 2)
	errs := make([]error, 2)
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			results[i], errs[i] = f.service.CreateSale(ctx, CreateSaleRequest{Items: []LineItem{{ProductID: shuttle.ID, Quantity: 4}}})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for i := range errs {
		if errs[i] == nil {
			wins++
			assert.NotEmpty(t, results[i].SaleCode)
			continue
		}
		assert.ErrorIs(t, errs[i], apperr.ErrInsufficientStock)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, int64(1), f.stock(t, shuttle.ID))
}

func TestConcurrentSalesGetDistinctCodes(t *testing.T) {
	f := setupSales(t)
	ctx := context.Background()
	water := f.product(t, "WATER", "15", 100)

	const n = 12
	codes := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			sale, err := f.service.CreateSale(ctx, CreateSaleRequest{Items: []LineItem{{ProductID: water.ID, Quantity: 1}}})
			if err != nil {
				return err
			}
			codes[i] = sale.SaleCode
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]struct{}, n)
	for _, code := range codes {
		_, dup := seen[code]
		assert.False(t, dup, "duplicate sale code %s", code)
		seen[code] = struct{}{}
	}
	assert.Equal(t, int64(100-n), f.stock(t, water.ID))
}
