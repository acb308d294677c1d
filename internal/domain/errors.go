package domain

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Errors shared by the ledger, admission and booking layers. Handlers map them to HTTP codes.
var (
	// ErrQuotaExceeded is a business rejection: the request is larger than what remains.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrNotFound is returned for unknown quota keys, reservations or orders.
	ErrNotFound = errors.New("not found")
	// ErrAmountMismatch means a release named a quantity other than the one reserved.
	ErrAmountMismatch = errors.New("release amount does not match reservation")
	// ErrStorageUnavailable wraps faults of the backing store. It is never a quota decision.
	ErrStorageUnavailable = errors.New("quota storage unavailable")
	ErrInvalidQuantity    = errors.New("quantity must be a positive number")
	// ErrDateClosed rejects reservations against a business date that has already rolled over.
	ErrDateClosed          = errors.New("business date is closed for new reservations")
	ErrReservationReleased = errors.New("reservation already released")
	ErrInconsistentLedger  = errors.New("quota ledger is inconsistent")

	ErrInvalidSource  = errors.New("order source must be dealer or tso")
	ErrEmptyOrder     = errors.New("order must contain at least one line")
	ErrOrderCancelled = errors.New("order is cancelled")
	// ErrConcurrentUpdate rejects a change that lost a race with another change to the same order line.
	ErrConcurrentUpdate = errors.New("order line was changed concurrently, reload and retry")
	ErrInvalidDate      = errors.New("date must be formatted as YYYY-MM-DD")
	ErrInvalidInput     = errors.New("invalid input")
	// ErrReconciliationRequired means quota could not be returned and an operator (or the sweeper) must settle it.
	ErrReconciliationRequired = errors.New("order requires quota reconciliation")
)

// QuotaExceededError carries the remaining amount at rejection time so callers can resubmit.
type QuotaExceededError struct {
	Key       QuotaKey
	Requested int64
	Remaining int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: requested %d, remaining %d", e.Key, e.Requested, e.Remaining)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// WrapStorage classifies an error coming from gorm. Record-not-found becomes ErrNotFound,
// context errors pass through, anything else is reported as ErrStorageUnavailable.
func WrapStorage(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrStorageUnavailable), isDomainError(err):
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

var domainErrors = []error{
	ErrQuotaExceeded, ErrNotFound, ErrAmountMismatch, ErrInvalidQuantity,
	ErrDateClosed, ErrReservationReleased, ErrInconsistentLedger,
	ErrInvalidSource, ErrEmptyOrder, ErrOrderCancelled, ErrConcurrentUpdate, ErrInvalidDate, ErrInvalidInput, ErrReconciliationRequired,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
