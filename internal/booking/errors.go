package booking

import (
	"errors"
	"fmt"
)

var (
	ErrFlowNotFound         = errors.New("booking flow not found")
	ErrInvalidRequest       = errors.New("invalid booking request")
	ErrUnknownUser          = errors.New("please log in to book a session")
	ErrGroupSessionNotFound = errors.New("group session not found")
	ErrGroupFull            = errors.New("this group session is already full")
	ErrAlreadyBooked        = errors.New("you have already booked this group session")
	ErrInsufficientBalance  = errors.New("insufficient coin balance")
)

// InsufficientBalanceError carries the price and the balance that fell short.
type InsufficientBalanceError struct {
	Need float64
	Have float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient coins: you need %g but have %g", e.Need, e.Have)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}
