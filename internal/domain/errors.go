package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition: the requested edge does not exist from the
	// booking's current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInsufficientInventory: more units requested than available.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	// ErrExpired: the trip has departed, the action can never succeed.
	ErrExpired = errors.New("trip expired")
	// ErrUnreachable: the store could not be reached or did not answer in
	// time. The outcome of a mutation is unknown.
	ErrUnreachable = errors.New("booking store unreachable")

	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrValidation       = errors.New("validation failed")
	ErrMutationInFlight = errors.New("another change to this booking is in progress")
	// ErrNotEligible: the booking's current state does not offer the action.
	ErrNotEligible = errors.New("action not available for this booking")
)

// TransitionError describes a rejected state change.
type TransitionError struct {
	From  BookingStatus
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s a %s booking", ErrInvalidTransition, e.Event, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
