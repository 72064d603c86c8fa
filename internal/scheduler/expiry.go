package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"github.com/insulate/badminton-booking-sub002/internal/clock"
	"github.com/insulate/badminton-booking-sub002/internal/metrics"
)

const (
	expiryJobName    = "booking_payment_expiry"
	expiryRunTimeout = time.Minute
)

// PendingExpirer cancels pending-payment bookings whose deadline is before now.
type PendingExpirer interface {
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

type ExpiryResult struct {
	CancelledCount int64 `json:"cancelled_count"`
}

// ExpiryReaper sweeps bookings left unpaid past their deadline. Each sweep is
// one conditional bulk update, so overlapping sweeps from several processes
// cancel each booking at most once.
type ExpiryReaper struct {
	bookings PendingExpirer
	clock    clock.Clock
	metrics  *metrics.Service
	sched    *Service
}

func NewExpiryReaper(sched *Service, bookings PendingExpirer, clk clock.Clock, recorder *metrics.Service) (*ExpiryReaper, error) {
	if bookings == nil {
		return nil, errors.New("expiry reaper requires a booking store")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &ExpiryReaper{bookings: bookings, clock: clk, metrics: recorder, sched: sched}, nil
}

// RunOnce performs a single sweep.
func (r *ExpiryReaper) RunOnce(ctx context.Context) (ExpiryResult, error) {
	now := r.clock.Now()
	n, err := r.bookings.ExpirePending(ctx, now)
	if err != nil {
		r.metrics.IncExpiryRun("error")
		return ExpiryResult{}, fmt.Errorf("expire pending bookings: %w", err)
	}

	r.metrics.IncExpiryRun("ok")
	r.metrics.AddExpiryCancelled(n)
	event := log.Ctx(ctx).Debug()
	if n > 0 {
		event = log.Ctx(ctx).Info()
	}
	event.Int64("cancelled_count", n).Time("now", now).Msg("Expired pending bookings")
	return ExpiryResult{CancelledCount: n}, nil
}

// StartPeriodic schedules a sweep every intervalMinutes minutes.
func (r *ExpiryReaper) StartPeriodic(intervalMinutes int) error {
	if intervalMinutes <= 0 {
		return fmt.Errorf("expiry interval must be at least one minute, got %d", intervalMinutes)
	}
	return r.StartEvery(time.Duration(intervalMinutes) * time.Minute)
}

// StartEvery schedules a sweep at the given interval.
func (r *ExpiryReaper) StartEvery(every time.Duration) error {
	if r.sched == nil {
		return ErrNotInitialized
	}
	_, err := r.sched.AddIntervalJob(expiryJobName, every, r.runJob, gocron.WithSingletonMode(gocron.LimitModeReschedule))
	if err != nil {
		return fmt.Errorf("add booking expiry job: %w", err)
	}
	return nil
}

// StartCron schedules the sweep on a cron expression instead of an interval.
func (r *ExpiryReaper) StartCron(cronExpr string) error {
	if r.sched == nil {
		return ErrNotInitialized
	}
	_, err := r.sched.AddJob(expiryJobName, cronExpr, r.runJob, gocron.WithSingletonMode(gocron.LimitModeReschedule))
	if err != nil {
		return fmt.Errorf("add booking expiry job: %w", err)
	}
	return nil
}

func (r *ExpiryReaper) runJob() {
	jobLogger := log.With().Str("component", "booking_expiry_job").Str("job_name", expiryJobName).Logger()
	ctx, cancel := context.WithTimeout(context.Background(), expiryRunTimeout)
	defer cancel()
	ctx = jobLogger.WithContext(ctx)

	if _, err := r.RunOnce(ctx); err != nil {
		// The next tick retries; nothing is lost by skipping this one.
		jobLogger.Error().Err(err).Msg("Booking expiry sweep failed")
	}
}
