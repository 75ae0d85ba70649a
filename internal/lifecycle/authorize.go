package lifecycle

import (
	"fmt"
	"strings"

	"github.com/Domenick1991/ticketbari/internal/domain"
)

// Authorize checks that actor may fire event on booking. Vendors moderate
// bookings on their own tickets, admins moderate everything, buyers pay and
// cancel their own bookings. Admins may also cancel.
func Authorize(actor domain.Actor, event Event, booking domain.Booking) error {
	switch event {
	case EventAccept, EventReject:
		if actor.Role == domain.RoleAdmin {
			return nil
		}
		if actor.Role == domain.RoleVendor && sameEmail(actor.Email, booking.VendorEmail) {
			return nil
		}
	case EventCancel:
		if actor.Role == domain.RoleAdmin || sameEmail(actor.Email, booking.BuyerEmail) {
			return nil
		}
	case EventPay:
		if sameEmail(actor.Email, booking.BuyerEmail) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s may not %s booking %s", domain.ErrForbidden, actor.Role, actor.Email, event, booking.ID)
}

// CanView reports whether actor may read booking.
func CanView(actor domain.Actor, booking domain.Booking) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleVendor:
		if sameEmail(actor.Email, booking.VendorEmail) {
			return true
		}
	}
	return sameEmail(actor.Email, booking.BuyerEmail)
}

func sameEmail(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
