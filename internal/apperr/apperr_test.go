package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsMatchByKind(t *testing.T) {
	err := fmt.Errorf("create sale: %w", InsufficientStock("prod-1", 4, 1))

	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.False(t, errors.Is(err, ErrSlotUnavailable))
	assert.Equal(t, KindInsufficientStock, KindOf(err))

	var appErr *Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "prod-1", appErr.ID)
}

func TestInvalidTransitionNamesBothStates(t *testing.T) {
	err := InvalidTransition("bk-1", "confirmed", "completed")

	assert.Equal(t, "confirmed", err.From)
	assert.Equal(t, "completed", err.To)
	assert.Contains(t, err.Error(), "from confirmed to completed")
	assert.Contains(t, err.Error(), "bk-1")
}

func TestStoreKeepsContextErrorReachable(t *testing.T) {
	err := Store("reserve stock", context.DeadlineExceeded)

	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "outcome unknown")

	plain := Store("reserve stock", errors.New("disk I/O error"))
	assert.Contains(t, plain.Error(), "reserve stock failed")
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
}
