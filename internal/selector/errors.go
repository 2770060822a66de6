package selector

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySelection = errors.New("select at least one slot")
	ErrNotSelecting   = errors.New("session is not accepting changes in its current phase")
	ErrNothingToRetry = errors.New("session has no failed slots to retry")
	ErrCancelled      = errors.New("booking session cancelled")
	ErrInvalidQuota   = errors.New("package quota must be positive")
	ErrInvalidSlot    = errors.New("slot id is required")
)

// QuotaExceededError is returned when a selection would exceed the package quota.
type QuotaExceededError struct {
	Quota int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("you can only select %d slots for this package", e.Quota)
}

// BookingFailedError records why the booking of one slot failed.
type BookingFailedError struct {
	SlotID string
	Reason error
}

func (e *BookingFailedError) Error() string {
	return fmt.Sprintf("booking slot %s failed: %v", e.SlotID, e.Reason)
}

func (e *BookingFailedError) Unwrap() error {
	return e.Reason
}
