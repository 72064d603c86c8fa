// Package booking guards court slots. Every write that can create a clash is a
// single conditional statement whose predicate re-checks the slot, so the
// availability pre-check only saves a code allocation on obvious conflicts.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/insulate/badminton-booking-sub002/internal/apperr"
	"github.com/insulate/badminton-booking-sub002/internal/clock"
	"github.com/insulate/badminton-booking-sub002/internal/db"
	"github.com/insulate/badminton-booking-sub002/internal/metrics"
)

const (
	bookingSequenceScope = "booking"
	DefaultCodePrefix    = "BK"
	DefaultPaymentWindow = 15 * time.Minute

	// ExpiredReason is recorded on bookings cancelled by the expiry sweep.
	ExpiredReason = "payment_expired"

	maxTransitionAttempts = 3
)

// blockingClause matches live bookings on the same court and day whose
// interval overlaps [?start, ?end).
const blockingClause = `
court_id = @court AND booking_date = @date AND deleted_at IS NULL
AND booking_status IN ('payment_pending', 'confirmed', 'checked-in')
AND start_minute < @end AND end_minute > @start`

const insertBookingSQL = `
INSERT INTO bookings (
    id, booking_code, court_id, booking_date, time_slot, start_minute, end_minute,
    duration_minutes, customer_name, customer_phone, booking_status, payment_status,
    payment_deadline, created_at, updated_at
)
SELECT @id, @code, @court, @date, @slot, @start, @end, @duration, @name, @phone,
    @status, @payment, @deadline, @now, @now
WHERE NOT EXISTS (SELECT 1 FROM bookings WHERE` + blockingClause + `)`

const rescheduleSQL = `
UPDATE bookings
SET court_id = @court, booking_date = @date, time_slot = @slot, start_minute = @start,
    end_minute = @end, duration_minutes = @duration, updated_at = @now
WHERE id = @id AND deleted_at IS NULL AND booking_status IN ('payment_pending', 'confirmed')
AND NOT EXISTS (SELECT 1 FROM bookings WHERE id <> @id AND` + blockingClause + `)`

const expirePendingSQL = `
UPDATE bookings
SET booking_status = 'cancelled', cancelled_at = @now, cancellation_reason = @reason,
    deleted_at = @now, updated_at = @now
WHERE booking_status = 'payment_pending' AND payment_deadline < @now AND deleted_at IS NULL`

const bookingColumns = `id, booking_code, court_id, booking_date, time_slot, start_minute, end_minute,
    duration_minutes, customer_name, customer_phone, booking_status, payment_status,
    payment_deadline, cancelled_at, cancellation_reason, deleted_at, created_at, updated_at`

type Booking struct {
	ID                 string     `json:"id"`
	BookingCode        string     `json:"booking_code"`
	CourtID            string     `json:"court_id"`
	Date               string     `json:"date"`
	TimeSlot           string     `json:"time_slot"`
	Slot               TimeSlot   `json:"-"`
	DurationMinutes    int        `json:"duration_minutes"`
	CustomerName       string     `json:"customer_name"`
	CustomerPhone      string     `json:"customer_phone"`
	Status             Status     `json:"booking_status"`
	PaymentStatus      string     `json:"payment_status"`
	PaymentDeadline    *time.Time `json:"payment_deadline,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type CreateRequest struct {
	CourtID       string `json:"court_id"`
	Date          string `json:"date"`
	TimeSlot      string `json:"time_slot"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	// Paid creates the booking already confirmed, as a counter booking paid in cash.
	Paid bool `json:"paid"`
}

type CodeAllocator interface {
	NextCode(ctx context.Context, scope, prefix string, day time.Time) (string, error)
}

type Resolver struct {
	db            *db.DB
	codes         CodeAllocator
	clock         clock.Clock
	metrics       *metrics.Service
	codePrefix    string
	paymentWindow time.Duration
}

type Option func(*Resolver)

func WithCodePrefix(prefix string) Option {
	return func(r *Resolver) {
		if prefix != "" {
			r.codePrefix = prefix
		}
	}
}

func WithPaymentWindow(window time.Duration) Option {
	return func(r *Resolver) {
		if window > 0 {
			r.paymentWindow = window
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(r *Resolver) {
		if clk != nil {
			r.clock = clk
		}
	}
}

func WithMetrics(recorder *metrics.Service) Option {
	return func(r *Resolver) {
		r.metrics = recorder
	}
}

func NewResolver(database *db.DB, codes CodeAllocator, opts ...Option) (*Resolver, error) {
	if database == nil || codes == nil {
		return nil, errors.New("booking resolver requires a database and code allocator")
	}
	r := &Resolver{
		db:            database,
		codes:         codes,
		clock:         clock.Real{},
		codePrefix:    DefaultCodePrefix,
		paymentWindow: DefaultPaymentWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// CheckAvailable reports whether no live booking on the court and day
// overlaps slot. The answer can be stale by the time a write happens.
func (r *Resolver) CheckAvailable(ctx context.Context, courtID, date string, slot TimeSlot) (bool, error) {
	var taken bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM bookings WHERE"+blockingClause+")",
		sql.Named("court", courtID),
		sql.Named("date", date),
		sql.Named("start", slot.Start),
		sql.Named("end", slot.End),
	).Scan(&taken)
	if err != nil {
		return false, apperr.Store("check availability", err)
	}
	return !taken, nil
}

func (r *Resolver) Create(ctx context.Context, req CreateRequest) (*Booking, error) {
	date, err := ParseDate(req.Date)
	if err != nil {
		return nil, apperr.PreconditionFailed(req.CourtID, "%v", err)
	}
	slot, err := ParseTimeSlot(req.TimeSlot)
	if err != nil {
		return nil, apperr.PreconditionFailed(req.CourtID, "%v", err)
	}
	if err := r.ensureCourt(ctx, req.CourtID); err != nil {
		return nil, err
	}

	logger := log.Ctx(ctx).With().
		Str("component", "booking").
		Str("court_id", req.CourtID).
		Str("date", date).
		Str("time_slot", slot.String()).
		Logger()

	available, err := r.CheckAvailable(ctx, req.CourtID, date, slot)
	if err != nil {
		return nil, err
	}
	if !available {
		r.metrics.IncBookingConflict()
		logger.Info().Msg("Court slot already booked")
		return nil, apperr.SlotUnavailable(req.CourtID, date, slot.String())
	}

	now := r.clock.Now()
	code, err := r.codes.NextCode(ctx, bookingSequenceScope, r.codePrefix, now)
	if err != nil {
		return nil, fmt.Errorf("allocate booking code: %w", err)
	}

	b := &Booking{
		ID:              uuid.NewString(),
		BookingCode:     code,
		CourtID:         req.CourtID,
		Date:            date,
		TimeSlot:        slot.String(),
		Slot:            slot,
		DurationMinutes: slot.Duration(),
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		Status:          StatusPaymentPending,
		PaymentStatus:   PaymentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Paid {
		b.Status = StatusConfirmed
		b.PaymentStatus = PaymentPaid
	} else {
		deadline := now.Add(r.paymentWindow)
		b.PaymentDeadline = &deadline
	}

	result, err := r.db.ExecContext(ctx, insertBookingSQL,
		sql.Named("id", b.ID),
		sql.Named("code", b.BookingCode),
		sql.Named("court", b.CourtID),
		sql.Named("date", b.Date),
		sql.Named("slot", b.TimeSlot),
		sql.Named("start", slot.Start),
		sql.Named("end", slot.End),
		sql.Named("duration", b.DurationMinutes),
		sql.Named("name", b.CustomerName),
		sql.Named("phone", b.CustomerPhone),
		sql.Named("status", string(b.Status)),
		sql.Named("payment", b.PaymentStatus),
		sql.Named("deadline", nullTime(b.PaymentDeadline)),
		sql.Named("now", now),
	)
	if err != nil {
		logger.Error().Err(err).Str("booking_code", code).Msg("Failed to insert booking")
		return nil, apperr.Store("create booking", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, apperr.Store("create booking", err)
	} else if n == 0 {
		// A concurrent writer took the slot between the check and the insert.
		// The allocated code is left as a gap.
		r.metrics.IncBookingConflict()
		logger.Info().Str("booking_code", code).Msg("Court slot taken by a concurrent booking")
		return nil, apperr.SlotUnavailable(req.CourtID, date, slot.String())
	}

	r.metrics.IncBookingCreated(string(b.Status))
	logger.Info().
		Str("booking_id", b.ID).
		Str("booking_code", b.BookingCode).
		Str("booking_status", string(b.Status)).
		Msg("Created booking")
	return b, nil
}

// Transition moves a booking along one edge of the state machine. The write
// is conditional on the status that was read, so a concurrent change makes
// the edge be re-evaluated against the new status.
func (r *Resolver) Transition(ctx context.Context, id string, to Status) (*Booking, error) {
	if !to.Valid() {
		return nil, apperr.PreconditionFailed(id, "unknown booking status %q", to)
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		current, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.DeletedAt != nil {
			return nil, apperr.NotFound("booking", id)
		}
		if !CanTransition(current.Status, to) {
			return nil, apperr.InvalidTransition(id, string(current.Status), string(to))
		}

		now := r.clock.Now()
		query := "UPDATE bookings SET booking_status = @to, updated_at = @now"
		switch to {
		case StatusConfirmed:
			query += ", payment_status = 'paid'"
		case StatusCancelled:
			query += ", cancelled_at = @now"
		}
		query += " WHERE id = @id AND booking_status = @from AND deleted_at IS NULL"

		result, err := r.db.ExecContext(ctx, query,
			sql.Named("to", string(to)),
			sql.Named("now", now),
			sql.Named("id", id),
			sql.Named("from", string(current.Status)),
		)
		if err != nil {
			return nil, apperr.Store("transition booking", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, apperr.Store("transition booking", err)
		}
		if n == 0 {
			log.Ctx(ctx).Debug().
				Str("booking_id", id).
				Str("from", string(current.Status)).
				Msg("Booking status changed concurrently, re-evaluating")
			continue
		}

		r.metrics.IncBookingTransition(string(to))
		log.Ctx(ctx).Info().
			Str("component", "booking").
			Str("booking_id", id).
			Str("from", string(current.Status)).
			Str("to", string(to)).
			Msg("Booking status changed")
		return r.Get(ctx, id)
	}

	latest, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, apperr.InvalidTransition(id, string(latest.Status), string(to))
}

// Reschedule moves a live booking to another court, day or slot. The target
// is checked against every other live booking in the same statement.
func (r *Resolver) Reschedule(ctx context.Context, id, courtID, date string, slot TimeSlot) (*Booking, error) {
	date, err := ParseDate(date)
	if err != nil {
		return nil, apperr.PreconditionFailed(id, "%v", err)
	}
	if err := slot.validate(); err != nil {
		return nil, apperr.PreconditionFailed(id, "%v", err)
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.DeletedAt != nil {
		return nil, apperr.NotFound("booking", id)
	}
	if current.Status != StatusPaymentPending && current.Status != StatusConfirmed {
		return nil, apperr.PreconditionFailed(id, "a %s booking cannot be rescheduled", current.Status)
	}
	if err := r.ensureCourt(ctx, courtID); err != nil {
		return nil, err
	}

	result, err := r.db.ExecContext(ctx, rescheduleSQL,
		sql.Named("id", id),
		sql.Named("court", courtID),
		sql.Named("date", date),
		sql.Named("slot", slot.String()),
		sql.Named("start", slot.Start),
		sql.Named("end", slot.End),
		sql.Named("duration", slot.Duration()),
		sql.Named("now", r.clock.Now()),
	)
	if err != nil {
		return nil, apperr.Store("reschedule booking", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, apperr.Store("reschedule booking", err)
	}
	if n == 0 {
		// Either the slot is taken or the booking left a reschedulable state.
		latest, getErr := r.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if latest.Status != current.Status || latest.DeletedAt != nil {
			return nil, apperr.PreconditionFailed(id, "booking changed to %s while rescheduling", latest.Status)
		}
		r.metrics.IncBookingConflict()
		return nil, apperr.SlotUnavailable(courtID, date, slot.String())
	}

	log.Ctx(ctx).Info().
		Str("component", "booking").
		Str("booking_id", id).
		Str("court_id", courtID).
		Str("date", date).
		Str("time_slot", slot.String()).
		Msg("Rescheduled booking")
	return r.Get(ctx, id)
}

// SoftDelete hides a booking from availability and listings. Deleting twice
// is not an error.
func (r *Resolver) SoftDelete(ctx context.Context, id string) error {
	now := r.clock.Now()
	result, err := r.db.ExecContext(ctx,
		"UPDATE bookings SET deleted_at = COALESCE(deleted_at, ?), updated_at = ? WHERE id = ?",
		now, now, id,
	)
	if err != nil {
		return apperr.Store("delete booking", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("booking", id)
	}
	return nil
}

// ExpirePending cancels every pending booking whose payment deadline is
// before now, in one statement. A booking confirmed in the meantime no
// longer matches the predicate and is left alone.
func (r *Resolver) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, expirePendingSQL,
		sql.Named("now", now),
		sql.Named("reason", ExpiredReason),
	)
	if err != nil {
		return 0, apperr.Store("expire pending bookings", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apperr.Store("expire pending bookings", err)
	}
	return n, nil
}

func (r *Resolver) Get(ctx context.Context, id string) (*Booking, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("booking", id)
		}
		return nil, apperr.Store("load booking", err)
	}
	return b, nil
}

// ListForDay returns the live bookings of a court on a day, ordered by start.
func (r *Resolver) ListForDay(ctx context.Context, courtID, date string) ([]Booking, error) {
	date, err := ParseDate(date)
	if err != nil {
		return nil, apperr.PreconditionFailed(courtID, "%v", err)
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+bookingColumns+` FROM bookings
		WHERE court_id = ? AND booking_date = ? AND deleted_at IS NULL
		AND booking_status IN ('payment_pending', 'confirmed', 'checked-in')
		ORDER BY start_minute`,
		courtID, date,
	)
	if err != nil {
		return nil, apperr.Store("list bookings", err)
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, apperr.Store("scan booking", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list bookings", err)
	}
	return bookings, nil
}

func (r *Resolver) ensureCourt(ctx context.Context, courtID string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM courts WHERE id = ?)", courtID,
	).Scan(&exists); err != nil {
		return apperr.Store("load court", err)
	}
	if !exists {
		return apperr.NotFound("court", courtID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*Booking, error) {
	var b Booking
	var status string
	var deadline, cancelled, deletedAt sql.NullTime
	var reason sql.NullString
	if err := row.Scan(
		&b.ID, &b.BookingCode, &b.CourtID, &b.Date, &b.TimeSlot, &b.Slot.Start, &b.Slot.End,
		&b.DurationMinutes, &b.CustomerName, &b.CustomerPhone, &status, &b.PaymentStatus,
		&deadline, &cancelled, &reason, &deletedAt, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Status = Status(status)
	b.PaymentDeadline = timePtr(deadline)
	b.CancelledAt = timePtr(cancelled)
	b.DeletedAt = timePtr(deletedAt)
	b.CancellationReason = reason.String
	return &b, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
