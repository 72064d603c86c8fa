package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insulate/badminton-booking-sub002/internal/booking"
	"github.com/insulate/badminton-booking-sub002/internal/clock"
	"github.com/insulate/badminton-booking-sub002/internal/metrics"
	"github.com/insulate/badminton-booking-sub002/internal/sequence"
	"github.com/insulate/badminton-booking-sub002/internal/testutil"
)

func setupReaper(t *testing.T) (*ExpiryReaper, *booking.Resolver, *clock.Manual, *metrics.Service) {
	t.Helper()

	database := testutil.NewTestDB(t)
	testutil.SeedCourt(t, database, "court-1", "Court 1")

	clk := clock.NewManual(time.Date(2025, time.January, 18, 9, 0, 0, 0, time.UTC))
	recorder := metrics.NewService(prometheus.NewRegistry())
	allocator, err := sequence.NewAllocator(database, nil)
	require.NoError(t, err)
	resolver, err := booking.NewResolver(database, allocator, booking.WithClock(clk))
	require.NoError(t, err)

	reaper, err := NewExpiryReaper(nil, resolver, clk, recorder)
	require.NoError(t, err)
	return reaper, resolver, clk, recorder
}

func pendingBooking(t *testing.T, r *booking.Resolver, slot string) *booking.Booking {
	t.Helper()
	b, err := r.Create(context.Background(), booking.CreateRequest{
		CourtID:  "court-1",
		Date:     "2025-01-18",
		TimeSlot: slot,
	})
	require.NoError(t, err)
	return b
}

func TestRunOnceCancelsEachExpiredBookingOnce(t *testing.T) {
	reaper, resolver, clk, recorder := setupReaper(t)
	ctx := context.Background()

	first := pendingBooking(t, resolver, "10:00-11:00")
	second := pendingBooking(t, resolver, "11:00-12:00")
	paidLater := pendingBooking(t, resolver, "12:00-13:00")

	clk.Advance(20 * time.Minute)
	result, err := reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.CancelledCount)

	result, err = reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.CancelledCount)

	for _, id := range []string{first.ID, second.ID, paidLater.ID} {
		b, err := resolver.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, booking.StatusCancelled, b.Status)
		assert.Equal(t, booking.ExpiredReason, b.CancellationReason)
	}

	assert.Equal(t, 3.0, promtestutil.ToFloat64(recorder.ExpiryCancelled))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(recorder.ExpiryRuns.WithLabelValues("ok")))
}

func TestRunOnceSparesBookingPaidBetweenRuns(t *testing.T) {
	reaper, resolver, clk, _ := setupReaper(t)
	ctx := context.Background()

	early := pendingBooking(t, resolver, "10:00-11:00")
	clk.Advance(10 * time.Minute)
	late := pendingBooking(t, resolver, "11:00-12:00")

	clk.Advance(6 * time.Minute)
	result, err := reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.CancelledCount)

	_, err = resolver.Transition(ctx, late.ID, booking.StatusConfirmed)
	require.NoError(t, err)

	clk.Advance(30 * time.Minute)
	result, err = reaper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.CancelledCount)

	kept, err := resolver.Get(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, kept.Status)

	gone, err := resolver.Get(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, gone.Status)

	// Expired bookings no longer hold their slot.
	slot, err := booking.ParseTimeSlot("10:00-11:00")
	require.NoError(t, err)
	available, err := resolver.CheckAvailable(ctx, "court-1", "2025-01-18", slot)
	require.NoError(t, err)
	assert.True(t, available)
}

type failingExpirer struct{}

func (failingExpirer) ExpirePending(context.Context, time.Time) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestRunOnceReportsStoreFailure(t *testing.T) {
	recorder := metrics.NewService(prometheus.NewRegistry())
	reaper, err := NewExpiryReaper(nil, failingExpirer{}, nil, recorder)
	require.NoError(t, err)

	_, err = reaper.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(recorder.ExpiryRuns.WithLabelValues("error")))
}

type countingExpirer struct {
	calls atomic.Int64
}

func (c *countingExpirer) ExpirePending(context.Context, time.Time) (int64, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestStartEveryRunsSweepOnSchedule(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Stop() })

	expirer := &countingExpirer{}
	reaper, err := NewExpiryReaper(sched, expirer, nil, nil)
	require.NoError(t, err)

	require.NoError(t, reaper.StartEvery(20*time.Millisecond))
	assert.Len(t, sched.Jobs(), 1)
	sched.Start()

	require.Eventually(t, func() bool {
		return expirer.calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartPeriodicValidation(t *testing.T) {
	reaper, err := NewExpiryReaper(nil, &countingExpirer{}, nil, nil)
	require.NoError(t, err)

	assert.Error(t, reaper.StartPeriodic(0))
	assert.ErrorIs(t, reaper.StartPeriodic(1), ErrNotInitialized)
	assert.ErrorIs(t, reaper.StartCron("*/5 * * * *"), ErrNotInitialized)

	_, err = NewExpiryReaper(nil, nil, nil, nil)
	assert.Error(t, err)
}
