// Package apperr defines the error kinds returned by the allocation layer.
// Every error carries its kind and the identifier it concerns so handlers can
// render a precise message and clients can tell conflicts from server faults.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindInsufficientStock  Kind = "insufficient_stock"
	KindSlotUnavailable    Kind = "slot_unavailable"
	KindInvalidTransition  Kind = "invalid_transition"
	KindPreconditionFailed Kind = "precondition_failed"
	KindNotFound           Kind = "not_found"
	KindStoreUnavailable   Kind = "store_unavailable"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInsufficientStock  = &Error{Kind: KindInsufficientStock}
	ErrSlotUnavailable    = &Error{Kind: KindSlotUnavailable}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrPreconditionFailed = &Error{Kind: KindPreconditionFailed}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrStoreUnavailable   = &Error{Kind: KindStoreUnavailable}
)

type Error struct {
	Kind    Kind
	ID      string
	From    string
	To      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.ID != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.ID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.ID == "" && t.Err == nil
}

func InsufficientStock(productID string, requested, available int64) *Error {
	return &Error{
		Kind:    KindInsufficientStock,
		ID:      productID,
		Message: fmt.Sprintf("insufficient stock: requested %d, available %d", requested, available),
	}
}

func SlotUnavailable(courtID, date, slot string) *Error {
	return &Error{
		Kind:    KindSlotUnavailable,
		ID:      courtID,
		Message: fmt.Sprintf("court slot %s %s is already booked", date, slot),
	}
}

func InvalidTransition(bookingID, from, to string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		ID:      bookingID,
		From:    from,
		To:      to,
		Message: fmt.Sprintf("cannot move booking from %s to %s", from, to),
	}
}

func PreconditionFailed(id, format string, args ...any) *Error {
	return &Error{
		Kind:    KindPreconditionFailed,
		ID:      id,
		Message: fmt.Sprintf(format, args...),
	}
}

func NotFound(entity, id string) *Error {
	return &Error{
		Kind:    KindNotFound,
		ID:      id,
		Message: entity + " not found",
	}
}

// Store wraps a failed store round trip. A deadline or cancellation that
// surfaces here means the outcome is unknown: re-query before retrying.
func Store(op string, err error) *Error {
	msg := op + " failed"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		msg = op + " outcome unknown"
	}
	return &Error{
		Kind:    KindStoreUnavailable,
		Message: msg,
		Err:     err,
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
