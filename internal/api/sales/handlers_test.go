package sales

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insulate/badminton-booking-sub002/internal/api/apiutil"
	"github.com/insulate/badminton-booking-sub002/internal/clock"
	"github.com/insulate/badminton-booking-sub002/internal/inventory"
	"github.com/insulate/badminton-booking-sub002/internal/metrics"
	salessvc "github.com/insulate/badminton-booking-sub002/internal/sales"
	"github.com/insulate/badminton-booking-sub002/internal/sequence"
	"github.com/insulate/badminton-booking-sub002/internal/testutil"
)

func newTestMux(t *testing.T) (*http.ServeMux, *inventory.Ledger) {
	t.Helper()

	database := testutil.NewTestDB(t)
	clk := clock.NewManual(time.Date(2025, time.January, 18, 14, 30, 0, 0, time.UTC))
	recorder := metrics.NewService(prometheus.NewRegistry())

	ledger, err := inventory.NewLedger(database, clk, recorder)
	require.NoError(t, err)
	allocator, err := sequence.NewAllocator(database, recorder)
	require.NoError(t, err)
	svc, err := salessvc.NewService(database, ledger, allocator, salessvc.WithClock(clk), salessvc.WithMetrics(recorder))
	require.NoError(t, err)

	InitHandlers(svc)
	t.Cleanup(func() { InitHandlers(nil) })

	mux := http.NewServeMux()
	RegisterRoutes(mux)
	return mux, ledger
}

func post(t *testing.T, mux http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sales", strings.NewReader(body)))
	return rec
}

func TestCreateSaleAndFetch(t *testing.T) {
	mux, ledger := newTestMux(t)
	p, err := ledger.CreateProduct(context.Background(), inventory.NewProduct{
		SKU: "YONEX-AS30", Name: "Yonex AS-30", Price: decimal.RequireFromString("95.50"), Stock: 10,
	})
	require.NoError(t, err)

	rec := post(t, mux, fmt.Sprintf(`{"items":[{"product_id":%q,"quantity":3}]}`, p.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sale salessvc.Sale
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	assert.Equal(t, "SL20250118-0001", sale.SaleCode)
	assert.True(t, decimal.RequireFromString("286.50").Equal(sale.Total), "total %s", sale.Total)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sales/"+sale.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sales/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSaleInsufficientStock(t *testing.T) {
	mux, ledger := newTestMux(t)
	p, err := ledger.CreateProduct(context.Background(), inventory.NewProduct{
		SKU: "WATER", Name: "Water", Price: decimal.NewFromInt(15), Stock: 1,
	})
	require.NoError(t, err)

	rec := post(t, mux, fmt.Sprintf(`{"items":[{"product_id":%q,"quantity":2}]}`, p.ID))
	assert.Equal(t, http.StatusConflict, rec.Code)
	var body apiutil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "insufficient_stock", body.Error)
	assert.Equal(t, p.ID, body.ID)

	after, err := ledger.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.Stock)
}

func TestCreateSaleRejectsBadBody(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := post(t, mux, `{"items":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, mux, `{"lines":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
