package bookings

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insulate/badminton-booking-sub002/internal/api/apiutil"
	"github.com/insulate/badminton-booking-sub002/internal/booking"
	"github.com/insulate/badminton-booking-sub002/internal/clock"
	"github.com/insulate/badminton-booking-sub002/internal/metrics"
	"github.com/insulate/badminton-booking-sub002/internal/sequence"
	"github.com/insulate/badminton-booking-sub002/internal/testutil"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	database := testutil.NewTestDB(t)
	testutil.SeedCourt(t, database, "court-1", "Court 1")

	recorder := metrics.NewService(prometheus.NewRegistry())
	allocator, err := sequence.NewAllocator(database, recorder)
	require.NoError(t, err)
	clk := clock.NewManual(time.Date(2025, time.January, 18, 9, 0, 0, 0, time.UTC))
	res, err := booking.NewResolver(database, allocator, booking.WithClock(clk), booking.WithMetrics(recorder))
	require.NoError(t, err)

	InitHandlers(res)
	t.Cleanup(func() { InitHandlers(nil) })

	mux := http.NewServeMux()
	RegisterRoutes(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBooking(t *testing.T, rec *httptest.ResponseRecorder) booking.Booking {
	t.Helper()
	var b booking.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return b
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiutil.ErrorResponse {
	t.Helper()
	var body apiutil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const createBody = `{"court_id":"court-1","date":"2025-01-18","time_slot":"18:00-19:00","customer_name":"Somchai"}`

func TestCreateAndOverlap(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/api/v1/bookings", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBooking(t, rec)
	assert.Equal(t, "BK20250118-0001", created.BookingCode)
	assert.Equal(t, booking.StatusPaymentPending, created.Status)

	rec = do(t, mux, http.MethodPost, "/api/v1/bookings",
		`{"court_id":"court-1","date":"2025-01-18","time_slot":"18:30-19:30","customer_name":"Niran"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "slot_unavailable", body.Error)
	assert.Equal(t, "court-1", body.ID)

	rec = do(t, mux, http.MethodGet, "/api/v1/bookings/availability?court_id=court-1&date=2025-01-18&time_slot=19:00-20:00", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var avail availabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &avail))
	require.NotNil(t, avail.Available)
	assert.True(t, *avail.Available)
	assert.Len(t, avail.Bookings, 1)
}

func TestCreateValidation(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/api/v1/bookings", `{"date":"2025-01-18"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "court_id", decodeError(t, rec).ID)

	rec = do(t, mux, http.MethodPost, "/api/v1/bookings", `{"court_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/api/v1/bookings",
		`{"court_id":"court-9","date":"2025-01-18","time_slot":"18:00-19:00","customer_name":"Somchai"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, mux, http.MethodGet, "/api/v1/bookings/availability?court_id=court-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "date", decodeError(t, rec).ID)
}

func TestTransitionStatusCodes(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/api/v1/bookings", createBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBooking(t, rec).ID

	rec = do(t, mux, http.MethodPost, "/api/v1/bookings/"+id+"/status", `{"status":"completed"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "invalid_transition", body.Error)
	assert.Equal(t, "payment_pending", body.From)
	assert.Equal(t, "completed", body.To)

	rec = do(t, mux, http.MethodPost, "/api/v1/bookings/"+id+"/status", `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	confirmed := decodeBooking(t, rec)
	assert.Equal(t, booking.StatusConfirmed, confirmed.Status)
	assert.Equal(t, booking.PaymentPaid, confirmed.PaymentStatus)

	rec = do(t, mux, http.MethodPost, "/api/v1/bookings/missing/status", `{"status":"confirmed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRescheduleAndDelete(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/api/v1/bookings", createBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBooking(t, rec).ID

	rec = do(t, mux, http.MethodPut, "/api/v1/bookings/"+id+"/slot",
		`{"court_id":"court-1","date":"2025-01-18","time_slot":"20:00-21:00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "20:00-21:00", decodeBooking(t, rec).TimeSlot)

	rec = do(t, mux, http.MethodPut, "/api/v1/bookings/"+id+"/slot",
		`{"court_id":"court-1","date":"2025-01-18","time_slot":"late"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodDelete, "/api/v1/bookings/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, mux, http.MethodPost, "/api/v1/bookings", createBody)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestUninitializedResolver(t *testing.T) {
	InitHandlers(nil)
	mux := http.NewServeMux()
	RegisterRoutes(mux)

	rec := do(t, mux, http.MethodGet, "/api/v1/bookings/anything", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
