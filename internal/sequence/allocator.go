// Package sequence mints strictly increasing integers per scoped key. Each
// value comes from one upsert-and-return statement, so concurrent callers on
// any number of processes never observe the same number.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/insulate/badminton-booking-sub002/internal/apperr"
	"github.com/insulate/badminton-booking-sub002/internal/db"
	"github.com/insulate/badminton-booking-sub002/internal/metrics"
)

const codeDateLayout = "20060102"

const nextValueSQL = `
INSERT INTO sequence_counters (key, value, updated_at)
VALUES (?, 1, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET
    value = sequence_counters.value + 1,
    updated_at = CURRENT_TIMESTAMP
RETURNING value`

var ErrEmptyKey = errors.New("sequence key is required")

type Allocator struct {
	db      *db.DB
	metrics *metrics.Service
}

func NewAllocator(database *db.DB, recorder *metrics.Service) (*Allocator, error) {
	if database == nil {
		return nil, errors.New("sequence allocator requires a database")
	}
	return &Allocator{db: database, metrics: recorder}, nil
}

// NextValue returns the next value for key, starting at 1. A store failure is
// returned as-is; no value is ever synthesized locally.
func (a *Allocator) NextValue(ctx context.Context, key string) (int64, error) {
	if strings.TrimSpace(key) == "" {
		return 0, ErrEmptyKey
	}

	var value int64
	if err := a.db.QueryRowContext(ctx, nextValueSQL, key).Scan(&value); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("sequence_key", key).Msg("Failed to allocate sequence value")
		return 0, apperr.Store("allocate sequence "+key, err)
	}

	a.metrics.IncSequenceAllocation(scopeLabel(key))
	return value, nil
}

// NextCode allocates from the key scoped by scope and day and formats the
// human-readable code, e.g. NextCode(ctx, "sale", "SL", day) -> "SL20250118-0007".
func (a *Allocator) NextCode(ctx context.Context, scope, prefix string, day time.Time) (string, error) {
	n, err := a.NextValue(ctx, ScopedKey(scope+"-"+prefix, day))
	if err != nil {
		return "", err
	}
	return FormatCode(prefix, day, n), nil
}

// ScopedKey combines a scope with a calendar day so the sequence restarts daily.
func ScopedKey(scope string, day time.Time) string {
	return scope + day.Format(codeDateLayout)
}

func FormatCode(prefix string, day time.Time, n int64) string {
	return fmt.Sprintf("%s%s-%04d", prefix, day.Format(codeDateLayout), n)
}

func scopeLabel(key string) string {
	if i := strings.Index(key, "-"); i > 0 {
		return key[:i]
	}
	return key
}
