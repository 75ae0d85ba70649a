package lifecycle

import (
	"time"

	"github.com/Domenick1991/ticketbari/internal/domain"
)

// Action is something the presentation layer may offer for a booking.
type Action string

const (
	ActionCancel         Action = "cancel"
	ActionPay            Action = "pay"
	ActionDownloadTicket Action = "download-ticket"
)

const (
	NoticeAwaitingApproval = "awaiting approval"
	NoticeTripExpired      = "trip expired"
	NoticeRejected         = "rejected"
	NoticePaymentComplete  = "payment complete"
)

// Eligibility is advice only: the store still enforces every rule.
type Eligibility struct {
	Actions []Action `json:"actions"`
	Notice  string   `json:"notice,omitempty"`
}

func (e Eligibility) Allows(action Action) bool {
	for _, a := range e.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Eligible returns the actions allowed for a booking in status, given
// whether its trip has departed. It is defined for every input; unknown
// statuses allow nothing.
func Eligible(status domain.BookingStatus, expired bool) Eligibility {
	switch status {
	case domain.BookingStatusPending:
		return Eligibility{Actions: []Action{ActionCancel}, Notice: NoticeAwaitingApproval}
	case domain.BookingStatusApproved:
		if expired {
			return Eligibility{Actions: []Action{}, Notice: NoticeTripExpired}
		}
		return Eligibility{Actions: []Action{ActionPay}}
	case domain.BookingStatusRejected:
		return Eligibility{Actions: []Action{}, Notice: NoticeRejected}
	case domain.BookingStatusPaid:
		return Eligibility{Actions: []Action{ActionDownloadTicket}, Notice: NoticePaymentComplete}
	}
	return Eligibility{Actions: []Action{}}
}

// EligibleAt is Eligible for a booking sampled at now.
func EligibleAt(booking domain.Booking, now time.Time) Eligibility {
	return Eligible(booking.Status, IsExpired(booking.DepartureAt, now))
}
