package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/cinema-booking/internal/model"
)

// Sentinels matched with errors.Is.  The typed errors below match their
// sentinel so handlers never need errors.As unless they want the details.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("seats unavailable")
	ErrInvalidState      = errors.New("invalid booking state")
	ErrPersistence       = errors.New("persistence failure")
	ErrPaymentInProgress = errors.New("payment already in progress")
	ErrScheduleOverlap   = errors.New("showtime overlaps another on the same screen")
)

// ConflictError lists the requested seats that could not be claimed.  The
// customer is expected to pick other seats.
type ConflictError struct {
	ShowtimeID uint64
	SeatIDs    []uint64
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.SeatIDs))
	for _, id := range e.SeatIDs {
		ids = append(ids, fmt.Sprint(id))
	}
	return fmt.Sprintf("seats unavailable for showtime %d: [%s]", e.ShowtimeID, strings.Join(ids, ","))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// InvalidStateError reports a transition attempted from the wrong status.
// It usually means two flows raced on the same booking and must not be
// retried blindly.
type InvalidStateError struct {
	BookingID uint64
	Status    model.BookingStatus
	Op        string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s booking %d in status %s", e.Op, e.BookingID, e.Status)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// PersistenceError wraps a storage failure.  Every mutating operation is
// all-or-nothing, so retrying the whole operation is safe.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
