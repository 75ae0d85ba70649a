// Package lifecycle holds the booking state machine and the pure rules
// derived from it: expiry, action eligibility and pricing. It also provides
// Manager, the client-side coordinator that issues transitions against a
// remote booking store.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/Domenick1991/ticketbari/internal/domain"
)

// Event is something that asks a booking to change state.
type Event uint8

const (
	EventAccept Event = iota + 1
	EventReject
	EventCancel
	EventPay
)

// Events lists every event, for exhaustive checks.
var Events = []Event{EventAccept, EventReject, EventCancel, EventPay}

func (e Event) String() string {
	switch e {
	case EventAccept:
		return "accept"
	case EventReject:
		return "reject"
	case EventCancel:
		return "cancel"
	case EventPay:
		return "pay"
	}
	return "unknown"
}

// EventForStatus maps a status requested by a vendor or admin onto the
// event that produces it. Only approved and rejected can be requested
// directly.
func EventForStatus(target domain.BookingStatus) (Event, error) {
	switch target {
	case domain.BookingStatusApproved:
		return EventAccept, nil
	case domain.BookingStatusRejected:
		return EventReject, nil
	}
	return 0, fmt.Errorf("%w: status %s cannot be set directly", domain.ErrInvalidTransition, target)
}

// Outcome is the result of a permitted transition.
type Outcome struct {
	Status  domain.BookingStatus
	Deleted bool
	// NoOp is set when the booking is already where the event would take
	// it; nothing needs to be written.
	NoOp bool
}

type edge struct {
	to      domain.BookingStatus
	deleted bool
	noop    bool
	// departureGuard requires now < departureAt.
	departureGuard bool
}

var transitions = map[domain.BookingStatus]map[Event]edge{
	domain.BookingStatusPending: {
		EventAccept: {to: domain.BookingStatusApproved},
		EventReject: {to: domain.BookingStatusRejected},
		EventCancel: {deleted: true},
	},
	domain.BookingStatusApproved: {
		EventAccept: {to: domain.BookingStatusApproved, noop: true},
		EventPay:    {to: domain.BookingStatusPaid, departureGuard: true},
	},
}

// Transition applies event to a booking in status from. It never mutates
// anything; callers persist the returned outcome.
func Transition(from domain.BookingStatus, event Event, departureAt, now time.Time) (Outcome, error) {
	e, ok := transitions[from][event]
	if !ok {
		return Outcome{Status: from}, &domain.TransitionError{From: from, Event: event.String()}
	}
	if e.departureGuard && IsExpired(departureAt, now) {
		return Outcome{Status: from}, fmt.Errorf("%w: departed at %s", domain.ErrExpired, departureAt.UTC().Format(time.RFC3339))
	}
	if e.deleted {
		return Outcome{Status: from, Deleted: true}, nil
	}
	return Outcome{Status: e.to, NoOp: e.noop}, nil
}
